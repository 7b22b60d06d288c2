package tracegc

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/hupe1980/tracegc/codec"
	"github.com/hupe1980/tracegc/internal/compress"
	"github.com/hupe1980/tracegc/resource"
)

const (
	dumpMagic   = "TGCD"
	dumpVersion = 1
)

// ErrInvalidDump is returned by ReadDump for malformed input.
var ErrInvalidDump = errors.New("tracegc: invalid heap dump")

// Compression selects the block compression of a heap dump.
type Compression = compress.Type

// Dump compression types.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// Dump is a point-in-time view of a heap's object graph.
type Dump struct {
	Heap        uint32       `json:"heap"`
	Epoch       bool         `json:"epoch"`
	Collections uint64       `json:"collections"`
	LiveBytes   uintptr      `json:"live_bytes"`
	Objects     []ObjectInfo `json:"objects"`
	Handles     []HandleInfo `json:"handles"`
}

// ObjectInfo describes one managed object.
type ObjectInfo struct {
	Addr      uintptr   `json:"addr"`
	Size      uintptr   `json:"size"`
	Type      string    `json:"type,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Marked    bool      `json:"marked"`
	Finalizer bool      `json:"finalizer"`
	Bound     int       `json:"bound"`
	Edges     []uintptr `json:"edges,omitempty"` // targets of handles stored in the object
}

// HandleInfo describes one live handle.
type HandleInfo struct {
	ID     uint32  `json:"id"`
	Slot   uintptr `json:"slot"`
	Target uintptr `json:"target"`
	Root   bool    `json:"root"`
	Owner  uintptr `json:"owner,omitempty"` // object the handle is stored in, if any
}

// Object returns the object at addr, if present.
func (d *Dump) Object(addr uintptr) (ObjectInfo, bool) {
	i, ok := slices.BinarySearchFunc(d.Objects, addr, func(o ObjectInfo, a uintptr) int {
		return cmp.Compare(o.Addr, a)
	})
	if !ok {
		return ObjectInfo{}, false
	}
	return d.Objects[i], true
}

// Snapshot captures the current object graph. Objects are ordered by address.
func (h *Heap) Snapshot() *Dump {
	d := &Dump{
		Heap:        h.id,
		Epoch:       h.epoch,
		Collections: h.cycles,
		LiveBytes:   h.live,
		Objects:     make([]ObjectInfo, 0, len(h.objects)),
	}

	for _, rec := range h.objects {
		d.Objects = append(d.Objects, ObjectInfo{
			Addr:      rec.addr,
			Size:      rec.size,
			Type:      rec.typ,
			Tag:       rec.tag,
			Marked:    rec.mark == h.epoch,
			Finalizer: rec.destroy != nil,
			Bound:     int(rec.bound.GetCardinality()), //nolint:gosec // bounded by live handles
		})
	}
	slices.SortFunc(d.Objects, func(a, b ObjectInfo) int {
		return cmp.Compare(a.Addr, b.Addr)
	})

	h.handles.each(func(id uint32, e *handleEntry) {
		info := HandleInfo{ID: id, Slot: e.slot, Target: e.target, Root: e.root}
		if i := d.objectContaining(e.slot); i >= 0 {
			info.Owner = d.Objects[i].Addr
			if e.target != 0 {
				d.Objects[i].Edges = append(d.Objects[i].Edges, e.target)
			}
		}
		d.Handles = append(d.Handles, info)
	})

	return d
}

func (d *Dump) objectContaining(addr uintptr) int {
	i, found := slices.BinarySearchFunc(d.Objects, addr, func(o ObjectInfo, a uintptr) int {
		return cmp.Compare(o.Addr, a)
	})
	if found {
		return i
	}
	if i == 0 {
		return -1
	}
	if o := d.Objects[i-1]; addr < o.Addr+o.Size {
		return i - 1
	}
	return -1
}

type dumpOptions struct {
	compression Compression
	codec       codec.Codec
}

// DumpOption configures WriteDump.
type DumpOption func(*dumpOptions)

// WithDumpCompression sets the dump compression. The default is ZSTD.
func WithDumpCompression(c Compression) DumpOption {
	return func(o *dumpOptions) {
		o.compression = c
	}
}

// WithDumpCodec sets the codec used to encode the dump body.
func WithDumpCodec(c codec.Codec) DumpOption {
	return func(o *dumpOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WriteDump writes a Snapshot of the heap to w.
func (h *Heap) WriteDump(w io.Writer, optFns ...DumpOption) error {
	return h.WriteDumpContext(context.Background(), w, optFns...)
}

// WriteDumpContext is like WriteDump. Writes are paced by the heap's
// resource controller when it has an IO limit.
func (h *Heap) WriteDumpContext(ctx context.Context, w io.Writer, optFns ...DumpOption) error {
	if h.closed {
		return ErrHeapClosed
	}

	o := dumpOptions{
		compression: CompressionZSTD,
		codec:       codec.Default,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	name := o.codec.Name()
	if _, ok := codec.ByName(name); !ok || len(name) > 255 {
		return fmt.Errorf("tracegc: dump codec %q is not a built-in codec", name)
	}

	body, err := o.codec.Marshal(h.Snapshot())
	if err != nil {
		return fmt.Errorf("tracegc: encode dump: %w", err)
	}
	block, err := compress.Encode(body, o.compression)
	if err != nil {
		return fmt.Errorf("tracegc: compress dump: %w", err)
	}

	if h.resource != nil {
		w = resource.NewRateLimitedWriter(ctx, w, h.resource)
	}
	bw := bufio.NewWriter(w)

	hdr := make([]byte, 0, len(dumpMagic)+3+len(name))
	hdr = append(hdr, dumpMagic...)
	hdr = append(hdr, dumpVersion, byte(o.compression), byte(len(name)))
	hdr = append(hdr, name...)

	if _, err := bw.Write(hdr); err != nil {
		return err
	}
	if _, err := bw.Write(block); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	h.logger.Debug("heap dump written",
		"objects", h.LiveObjects(),
		"handles", h.LiveHandles(),
		"bytes", len(hdr)+len(block),
		"compression", o.compression.String(),
	)
	return nil
}

// ReadDump decodes a dump written by WriteDump.
func ReadDump(r io.Reader) (*Dump, error) {
	return ReadDumpContext(context.Background(), r, nil)
}

// ReadDumpContext is like ReadDump, but paces reads through the IO limit of
// rc. A nil rc reads unthrottled.
func ReadDumpContext(ctx context.Context, r io.Reader, rc *resource.Controller) (*Dump, error) {
	if rc != nil {
		r = resource.NewRateLimitedReader(ctx, r, rc)
	}
	br := bufio.NewReader(r)

	fixed := make([]byte, len(dumpMagic)+3)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidDump, err)
	}
	if string(fixed[:len(dumpMagic)]) != dumpMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidDump)
	}
	if v := fixed[4]; v != dumpVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidDump, v)
	}
	comp := Compression(fixed[5])

	name := make([]byte, fixed[6])
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, fmt.Errorf("%w: codec name: %w", ErrInvalidDump, err)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidDump, name)
	}

	block, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	body, err := compress.Decode(block, comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDump, err)
	}

	d := new(Dump)
	if err := c.Unmarshal(body, d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDump, err)
	}
	return d, nil
}
