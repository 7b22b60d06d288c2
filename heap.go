package tracegc

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/tracegc/internal/arena"
	"github.com/hupe1980/tracegc/internal/fs"
	"github.com/hupe1980/tracegc/resource"
)

// Handles live inside off-heap memory and therefore cannot hold a *Heap.
// They name their heap by id instead.
var (
	heapSeq atomic.Uint32
	heaps   sync.Map // uint32 -> *Heap
)

func lookupHeap(id uint32) *Heap {
	if id == 0 {
		return nil
	}
	v, ok := heaps.Load(id)
	if !ok {
		return nil
	}
	return v.(*Heap)
}

// Heap is a collected heap: an arena of managed objects, the registry of
// their records, and the registry of every live handle.
//
// A Heap is owned by one goroutine. Distinct heaps are independent.
type Heap struct {
	id       uint32
	arena    *arena.Arena
	objects  map[uintptr]*record
	handles  handleTable
	epoch    bool
	live     uintptr // bytes held by registered objects
	cycles   uint64
	inFinal  bool // a finalizer is running
	closed   bool
	logger   *Logger
	metrics  MetricsCollector
	resource *resource.Controller
	fs       fs.FileSystem
}

// Stats is a snapshot of heap state.
type Stats struct {
	Objects     int
	LiveBytes   uintptr
	Handles     int
	Roots       int
	Collections uint64
	Epoch       bool
	Arena       arena.Stats
}

// NewHeap creates an empty heap.
func NewHeap(optFns ...Option) (*Heap, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	rc := o.controller
	if rc == nil && o.memoryLimit > 0 {
		rc = resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit})
	}

	var arenaOpts []arena.Option
	if rc != nil {
		arenaOpts = append(arenaOpts, arena.WithMemoryAcquirer(rc))
	}

	h := &Heap{
		id:       heapSeq.Add(1),
		arena:    arena.New(o.chunkSize, arenaOpts...),
		objects:  make(map[uintptr]*record),
		handles:  newHandleTable(),
		epoch:    true,
		metrics:  o.metricsCollector,
		resource: rc,
		fs:       o.fileSystem,
	}
	h.logger = o.logger.WithHeap(h.id)
	heaps.Store(h.id, h)

	h.logger.Debug("heap created", "chunk_size", h.arena.ChunkSize())
	return h, nil
}

// ID returns the process-unique heap id.
func (h *Heap) ID() uint32 {
	return h.id
}

// LiveBytes returns the bytes held by registered objects.
func (h *Heap) LiveBytes() uintptr {
	return h.live
}

// LiveObjects returns the number of registered objects.
func (h *Heap) LiveObjects() int {
	return len(h.objects)
}

// LiveHandles returns the number of constructed, not yet released handles.
func (h *Heap) LiveHandles() int {
	return h.handles.len()
}

// Contains reports whether addr is the address of a registered object.
func (h *Heap) Contains(addr uintptr) bool {
	_, ok := h.lookup(addr)
	return ok
}

// Stats returns a snapshot of heap state.
func (h *Heap) Stats() Stats {
	roots := 0
	h.handles.each(func(_ uint32, e *handleEntry) {
		if e.root {
			roots++
		}
	})
	return Stats{
		Objects:     len(h.objects),
		LiveBytes:   h.live,
		Handles:     h.handles.len(),
		Roots:       roots,
		Collections: h.cycles,
		Epoch:       h.epoch,
		Arena:       h.arena.Stats(),
	}
}

// Close releases all heap memory without running finalizers. Every handle
// of the heap becomes invalid. Close is idempotent. Calling it from a
// finalizer returns ErrReentrant.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	if h.inFinal {
		return ErrReentrant
	}
	h.closed = true
	heaps.Delete(h.id)

	h.handles.each(func(_ uint32, e *handleEntry) {
		e.target, e.rec = 0, nil
	})
	h.handles = newHandleTable()
	h.objects = make(map[uintptr]*record)
	h.live = 0

	err := h.arena.Close()
	h.logger.Debug("heap closed", "error", err)
	return err
}

func (h *Heap) checkUsable() error {
	if h.closed {
		return ErrHeapClosed
	}
	if h.inFinal {
		return ErrReentrant
	}
	return nil
}
