package tracegc

import (
	"path/filepath"
	"runtime"
	"strconv"
	"unsafe"
)

// Allocate returns size bytes of zeroed, managed storage. The object is
// registered but has no finalizer until a typed handle points at it; it is
// reclaimed by the next Collect unless a Root reaches it by then.
func (h *Heap) Allocate(size int, tag string) (uintptr, error) {
	if err := h.checkUsable(); err != nil {
		return 0, err
	}
	rec, err := h.allocate(size, tag)
	if err != nil {
		return 0, err
	}
	return rec.addr, nil
}

// New allocates a zeroed T with its finalizer bound. T must not contain Go
// pointers; handles are allowed.
func New[T any](h *Heap) (*T, error) {
	l := layoutOf[T]()
	if l.err != nil {
		return nil, l.err
	}
	if l.size == 0 {
		return nil, ErrInvalidSize
	}
	if err := h.checkUsable(); err != nil {
		return nil, err
	}

	rec, err := h.allocate(int(l.size), callerTag(2)) //nolint:gosec // type sizes fit int
	if err != nil {
		return nil, err
	}
	rec.bindFinalizer(destroy[T], l.name)
	return (*T)(h.arena.Pointer(rec.addr)), nil
}

// AllocateUnmanaged returns size bytes of zeroed storage the collector does
// not track. Release it with Free, which also releases any handles still
// stored in it.
func (h *Heap) AllocateUnmanaged(size int) (uintptr, error) {
	if err := h.checkUsable(); err != nil {
		return 0, err
	}
	if size <= 0 {
		h.metrics.RecordAlloc(size, ErrInvalidSize)
		return 0, ErrInvalidSize
	}
	addr, err := h.arena.Alloc(size)
	err = translateError(err)
	h.logger.LogAlloc(addr, size, "unmanaged", err)
	h.metrics.RecordAlloc(size, err)
	if err != nil {
		return 0, err
	}
	return addr, nil
}

func (h *Heap) allocate(size int, tag string) (*record, error) {
	if size <= 0 {
		h.metrics.RecordAlloc(size, ErrInvalidSize)
		return nil, ErrInvalidSize
	}

	addr, err := h.arena.Alloc(size)
	if err != nil {
		err = translateError(err)
		h.logger.LogAlloc(0, size, tag, err)
		h.metrics.RecordAlloc(size, err)
		return nil, err
	}

	rec := h.register(addr, uintptr(size), tag)
	h.logger.LogAlloc(addr, size, tag, nil)
	h.metrics.RecordAlloc(size, nil)
	return rec, nil
}

// Free releases the object at addr. A managed object is finalized, the
// handles stored in it are released and every handle pointing at it becomes
// invalid. Unmanaged storage has no finalizer, but handles stored in it are
// released as well. Free(0) is a no-op.
func (h *Heap) Free(addr uintptr) error {
	if addr == 0 {
		return nil
	}
	if err := h.checkUsable(); err != nil {
		return err
	}

	var size uintptr
	rec, managed := h.lookup(addr)
	if managed {
		size = rec.size
		h.reclaim(rec)
	} else if n, err := h.arena.SizeOf(addr); err == nil {
		h.releaseEmbedded(&record{addr: addr, size: uintptr(n)}) //nolint:gosec // block sizes are positive
	}

	err := translateError(h.arena.Free(addr))
	h.logger.LogFree(addr, size, managed, err)
	h.metrics.RecordFree(size, err)
	return err
}

// FreeObject frees p, which must come from New or Allocate on h.
func FreeObject[T any](h *Heap, p *T) error {
	return h.Free(uintptr(unsafe.Pointer(p)))
}

// reclaim tears down a registered object: finalizer, embedded handles, then
// the record itself. Storage is released by the caller.
func (h *Heap) reclaim(rec *record) {
	h.finalize(rec)
	h.releaseEmbedded(rec)
	h.remove(rec.addr)
}

func (h *Heap) finalize(rec *record) {
	if rec.destroy == nil {
		return
	}
	h.inFinal = true
	defer func() { h.inFinal = false }()
	rec.destroy(h.arena.Pointer(rec.addr))
}

func callerTag(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
