package arena

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"unsafe"

	"github.com/hupe1980/tracegc/internal/conv"
	"github.com/hupe1980/tracegc/internal/mmap"
)

// MemoryAcquirer is an interface for acquiring memory.
// resource.Controller satisfies it.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrInvalidSize is returned when an allocation size is not positive.
	ErrInvalidSize = errors.New("arena: invalid allocation size")
	// ErrMaxChunksExceeded is returned when the arena exceeds the maximum number of chunks.
	ErrMaxChunksExceeded = errors.New("arena: max chunks exceeded")
	// ErrForeignAddress is returned when an address does not belong to the arena.
	ErrForeignAddress = errors.New("arena: address not owned by arena")
	// ErrNotBlockStart is returned when an address is inside the arena but is not
	// the start of a block payload.
	ErrNotBlockStart = errors.New("arena: address is not the start of a block")
	// ErrDoubleFree is returned when a block is freed twice.
	ErrDoubleFree = errors.New("arena: double free")
	// ErrClosed is returned when the arena has been closed.
	ErrClosed = errors.New("arena: closed")
)

const (
	// DefaultChunkSize is the default size of a chunk (1MB).
	DefaultChunkSize = 1024 * 1024
	// MinChunkSize is the smallest accepted chunk size.
	MinChunkSize = 4096
	// Alignment is the payload alignment in bytes.
	Alignment = 16
	// MaxChunks limits the number of chunks to prevent runaway memory usage.
	MaxChunks = 65536

	headerSize    = 16
	minClassShift = 5 // 32-byte blocks
	largeClass    = 0xFF

	stateAllocated uint32 = 0xA110C8ED
	stateFree      uint32 = 0xF4EEF4EE
)

// header precedes every block payload.
type header struct {
	state uint32
	class uint32
	size  uint64 // requested payload size
}

// Stats tracks arena memory usage metrics.
//
// Note on semantics:
//   - BytesReserved: total memory currently mapped
//   - BytesUsed: payload bytes requested by live allocations
//   - BytesWasted: header and size-class padding of live allocations
//   - ActiveChunks: number of chunks currently held
//   - LargeBlocks: number of live dedicated mappings
type Stats struct {
	ChunksAllocated uint64 // Historical: total chunks ever created
	BytesReserved   uint64
	BytesUsed       uint64
	BytesWasted     uint64
	ActiveChunks    uint64
	LargeBlocks     uint64
	TotalAllocs     uint64 // Historical
	TotalFrees      uint64 // Historical
}

type chunk struct {
	mapping *mmap.Mapping
	base    uintptr
	offset  int // bump offset of the next never-used block
}

// Arena is a size-class allocator over anonymous mappings.
type Arena struct {
	chunkSize int
	maxClass  int
	chunks    []*chunk // sorted by base address
	current   *chunk
	free      [][]uintptr // per-class free payload addresses
	large     map[uintptr]*mmap.Mapping
	stats     Stats
	acquirer  MemoryAcquirer
	closed    bool
}

type noopAcquirer struct{}

func (noopAcquirer) AcquireMemory(int64) error { return nil }
func (noopAcquirer) ReleaseMemory(int64)       {}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithMemoryAcquirer sets the memory acquirer for the arena.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(a *Arena) {
		if acquirer != nil {
			a.acquirer = acquirer
		}
	}
}

// New creates a new Arena with the given chunk size.
// Non-positive sizes select DefaultChunkSize; other sizes are rounded up to a
// power of two and to at least MinChunkSize.
func New(chunkSize int, opts ...Option) *Arena {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}

	// Round up to next power of 2 so size classes tile a chunk exactly.
	chunkBits := bits.Len(uint(chunkSize - 1)) //nolint:gosec // chunkSize > 0
	chunkSize = 1 << chunkBits

	// The largest class is half a chunk; everything above is a large block.
	maxClass := chunkBits - 1 - minClassShift

	a := &Arena{
		chunkSize: chunkSize,
		maxClass:  maxClass,
		free:      make([][]uintptr, maxClass+1),
		large:     make(map[uintptr]*mmap.Mapping),
		acquirer:  noopAcquirer{},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// ChunkSize returns the effective chunk size.
func (a *Arena) ChunkSize() int {
	return a.chunkSize
}

// classFor returns the size class for a block of total bytes, or largeClass.
func (a *Arena) classFor(total int) int {
	class := bits.Len(uint(total-1)) - minClassShift //nolint:gosec // total > 0
	if class < 0 {
		class = 0
	}
	if class > a.maxClass {
		return largeClass
	}
	return class
}

func classSize(class int) int {
	return 1 << (class + minClassShift)
}

// Alloc allocates size bytes and returns the payload address.
// The payload is zeroed.
func (a *Arena) Alloc(size int) (uintptr, error) {
	if a.closed {
		return 0, ErrClosed
	}
	if size <= 0 {
		return 0, ErrInvalidSize
	}

	total := size + headerSize
	class := a.classFor(total)
	if class == largeClass {
		return a.allocLarge(size)
	}

	var payload uintptr
	if n := len(a.free[class]); n > 0 {
		payload = a.free[class][n-1]
		a.free[class] = a.free[class][:n-1]
	} else {
		block, err := a.bump(classSize(class))
		if err != nil {
			return 0, err
		}
		payload = block + headerSize
	}

	h := headerAt(payload)
	h.state = stateAllocated
	h.class = uint32(class) //nolint:gosec // class <= maxClass
	h.size = uint64(size)   //nolint:gosec // size > 0

	clear(unsafe.Slice((*byte)(a.pointer(payload)), size))

	a.recordAlloc(size, classSize(class))
	return payload, nil
}

func (a *Arena) bump(blockSize int) (uintptr, error) {
	if a.current == nil || a.current.offset+blockSize > a.chunkSize {
		if a.current != nil {
			wasted, _ := conv.IntToUint64(a.chunkSize - a.current.offset)
			a.stats.BytesWasted += wasted
		}
		if err := a.allocateChunk(); err != nil {
			return 0, err
		}
	}
	block := a.current.base + uintptr(a.current.offset) //nolint:gosec // offset < chunkSize
	a.current.offset += blockSize
	return block, nil
}

func (a *Arena) allocateChunk() error {
	if len(a.chunks) >= MaxChunks {
		return ErrMaxChunksExceeded
	}

	if err := a.acquirer.AcquireMemory(int64(a.chunkSize)); err != nil {
		return err
	}

	// Use off-heap anonymous mapping so managed objects are invisible to the Go GC.
	mapping, err := mmap.MapAnon(a.chunkSize)
	if err != nil {
		a.acquirer.ReleaseMemory(int64(a.chunkSize))
		return fmt.Errorf("failed to map anonymous memory for chunk: %w", err)
	}

	c := &chunk{mapping: mapping, base: mapping.Addr()}
	idx, _ := slices.BinarySearchFunc(a.chunks, c.base, func(e *chunk, base uintptr) int {
		return cmpAddr(e.base, base)
	})
	a.chunks = slices.Insert(a.chunks, idx, c)
	a.current = c

	chunkSizeU64, _ := conv.IntToUint64(a.chunkSize)
	a.stats.ChunksAllocated++
	a.stats.ActiveChunks++
	a.stats.BytesReserved += chunkSizeU64
	return nil
}

func (a *Arena) allocLarge(size int) (uintptr, error) {
	total := size + headerSize
	if err := a.acquirer.AcquireMemory(int64(total)); err != nil {
		return 0, err
	}
	mapping, err := mmap.MapAnon(total)
	if err != nil {
		a.acquirer.ReleaseMemory(int64(total))
		return 0, fmt.Errorf("failed to map anonymous memory for large block: %w", err)
	}

	payload := mapping.Addr() + headerSize
	a.large[payload] = mapping

	h := headerAt(payload)
	h.state = stateAllocated
	h.class = largeClass
	h.size = uint64(size) //nolint:gosec // size > 0

	totalU64, _ := conv.IntToUint64(total)
	a.stats.BytesReserved += totalU64
	a.stats.LargeBlocks++
	a.recordAlloc(size, total)
	return payload, nil
}

func (a *Arena) recordAlloc(size, blockSize int) {
	sizeU64, _ := conv.IntToUint64(size)
	wastedU64, _ := conv.IntToUint64(blockSize - size)
	a.stats.BytesUsed += sizeU64
	a.stats.BytesWasted += wastedU64
	a.stats.TotalAllocs++
}

func (a *Arena) recordFree(size, blockSize int) {
	sizeU64, _ := conv.IntToUint64(size)
	wastedU64, _ := conv.IntToUint64(blockSize - size)
	a.stats.BytesUsed -= sizeU64
	a.stats.BytesWasted -= wastedU64
	a.stats.TotalFrees++
}

// Free releases the block whose payload starts at addr.
func (a *Arena) Free(addr uintptr) error {
	if a.closed {
		return ErrClosed
	}

	if mapping, ok := a.large[addr]; ok {
		h := headerAt(addr)
		size, _ := conv.Uint64ToInt(h.size)
		total := mapping.Size()
		delete(a.large, addr)
		if err := mapping.Close(); err != nil {
			return fmt.Errorf("failed to unmap large block: %w", err)
		}
		a.acquirer.ReleaseMemory(int64(total))

		totalU64, _ := conv.IntToUint64(total)
		a.stats.BytesReserved -= totalU64
		a.stats.LargeBlocks--
		a.recordFree(size, total)
		return nil
	}

	h, err := a.blockHeader(addr)
	if err != nil {
		return err
	}
	if h.state == stateFree {
		return ErrDoubleFree
	}

	class := int(h.class)
	size, _ := conv.Uint64ToInt(h.size)
	h.state = stateFree
	a.free[class] = append(a.free[class], addr)
	a.recordFree(size, classSize(class))
	return nil
}

// blockHeader validates that addr is a block payload inside a chunk.
func (a *Arena) blockHeader(addr uintptr) (*header, error) {
	c := a.chunkOf(addr)
	if c == nil {
		return nil, ErrForeignAddress
	}
	if addr < c.base+headerSize || addr >= c.base+uintptr(c.offset) || (addr-c.base)%Alignment != 0 { //nolint:gosec // offset < chunkSize
		return nil, ErrNotBlockStart
	}
	h := headerAt(addr)
	if h.state != stateAllocated && h.state != stateFree {
		return nil, ErrNotBlockStart
	}
	return h, nil
}

func (a *Arena) chunkOf(addr uintptr) *chunk {
	// Find the last chunk whose base is <= addr.
	idx, found := slices.BinarySearchFunc(a.chunks, addr, func(e *chunk, t uintptr) int {
		return cmpAddr(e.base, t)
	})
	if !found {
		idx--
	}
	if idx < 0 {
		return nil
	}
	c := a.chunks[idx]
	if !c.mapping.Contains(addr) {
		return nil
	}
	return c
}

// Owns reports whether addr is the payload address of a live block.
func (a *Arena) Owns(addr uintptr) bool {
	if a.closed {
		return false
	}
	if _, ok := a.large[addr]; ok {
		return true
	}
	h, err := a.blockHeader(addr)
	return err == nil && h.state == stateAllocated
}

// Contains reports whether addr falls anywhere inside arena memory.
func (a *Arena) Contains(addr uintptr) bool {
	if a.closed {
		return false
	}
	if a.chunkOf(addr) != nil {
		return true
	}
	for _, m := range a.large {
		if m.Contains(addr) {
			return true
		}
	}
	return false
}

// SizeOf returns the requested size of the live block at addr.
func (a *Arena) SizeOf(addr uintptr) (int, error) {
	if a.closed {
		return 0, ErrClosed
	}
	if _, ok := a.large[addr]; !ok {
		h, err := a.blockHeader(addr)
		if err != nil {
			return 0, err
		}
		if h.state != stateAllocated {
			return 0, ErrDoubleFree
		}
	}
	return conv.Uint64ToInt(headerAt(addr).size)
}

// Pointer converts a payload address into an unsafe.Pointer.
// It performs no validation; callers pass addresses returned by Alloc.
func (a *Arena) Pointer(addr uintptr) unsafe.Pointer {
	return a.pointer(addr)
}

func (a *Arena) pointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet,gosec // off-heap memory, never moved by the Go GC
}

func headerAt(payload uintptr) *header {
	return (*header)(unsafe.Pointer(payload - headerSize)) //nolint:govet,gosec // off-heap memory
}

func cmpAddr(a, b uintptr) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	return a.stats
}

// Close unmaps every chunk and large block. All addresses handed out by the
// arena become invalid. Close is idempotent.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for _, c := range a.chunks {
		if err := c.mapping.Close(); err != nil {
			errs = append(errs, err)
		}
		a.acquirer.ReleaseMemory(int64(a.chunkSize))
	}
	for _, m := range a.large {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		a.acquirer.ReleaseMemory(int64(m.Size()))
	}
	a.chunks = nil
	a.current = nil
	a.large = nil
	for i := range a.free {
		a.free[i] = nil
	}

	a.stats.ActiveChunks = 0
	a.stats.LargeBlocks = 0
	a.stats.BytesReserved = 0
	a.stats.BytesUsed = 0
	a.stats.BytesWasted = 0
	return errors.Join(errs...)
}

// Usage returns the memory usage percentage.
func (a *Arena) Usage() float64 {
	if a.stats.BytesReserved == 0 {
		return 0
	}
	return float64(a.stats.BytesUsed) / float64(a.stats.BytesReserved) * 100
}

func (a *Arena) String() string {
	return fmt.Sprintf(
		"Arena{chunks: %d, large: %d, reserved: %.2f MB, used: %.2f MB, wasted: %.2f KB, usage: %.1f%%, allocs: %d, frees: %d}",
		a.stats.ActiveChunks,
		a.stats.LargeBlocks,
		float64(a.stats.BytesReserved)/(1024*1024),
		float64(a.stats.BytesUsed)/(1024*1024),
		float64(a.stats.BytesWasted)/1024,
		a.Usage(),
		a.stats.TotalAllocs,
		a.stats.TotalFrees,
	)
}
