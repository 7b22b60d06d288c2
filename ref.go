package tracegc

import (
	"unsafe"
)

// Finalizer is implemented by types that need teardown when the heap
// reclaims them, either through Free or a collection.
//
// Finalize runs before the handles stored in the object are released, so it
// may still read them. Objects reclaimed in the same collection are torn down
// in address order; a handle to one of them may already be invalid.
// Finalize must not allocate, free, collect or close the same heap; those
// calls return ErrReentrant.
type Finalizer interface {
	Finalize()
}

func destroy[T any](p unsafe.Pointer) {
	if f, ok := any((*T)(p)).(Finalizer); ok {
		f.Finalize()
	}
}

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Ref is a reference handle to a T on a Heap.
//
// A Ref registers its own storage address with the heap. A Ref stored inside
// a managed object is an edge of the object graph: the collector finds it by
// scanning the object's address range. A Ref stored anywhere else is not
// traced and keeps nothing alive; use a Root for that.
//
// The zero Ref is not constructed. Refs must not be copied; use InitCopy or
// Set. A Ref must be released with Release unless it lives inside an object
// the heap reclaims, which releases it automatically.
type Ref[T any] struct {
	_    noCopy
	heap uint32
	id   uint32
}

func (r *Ref[T]) slot() uintptr {
	return uintptr(unsafe.Pointer(r))
}

func (r *Ref[T]) owner() *Heap {
	return lookupHeap(r.heap)
}

func (r *Ref[T]) entry() *handleEntry {
	h := r.owner()
	if h == nil {
		return nil
	}
	return h.handles.get(r.id)
}

func (r *Ref[T]) init(h *Heap, root bool) *Heap {
	if h == nil || h.closed {
		panic("tracegc: handle initialised on a nil or closed heap")
	}
	if r.id != 0 {
		if r.heap == h.id && r.entry() != nil {
			return h
		}
		r.Release()
	}
	r.heap = h.id
	r.id = h.newHandle(r.slot(), root)
	return h
}

func (r *Ref[T]) mustOwner(op string) *Heap {
	h := r.owner()
	if h == nil || r.entry() == nil {
		panic("tracegc: " + op + " on an uninitialised handle")
	}
	return h
}

func (r *Ref[T]) bind(h *Heap, addr uintptr) {
	l := layoutOf[T]()
	h.bindAddr(r.id, addr, destroy[T], l.name)
}

func (r *Ref[T]) set(src *Ref[T], root bool) {
	if r == src {
		return
	}
	if src == nil || src.entry() == nil {
		if r.entry() != nil {
			r.Clear()
			return
		}
		panic("tracegc: Set between uninitialised handles")
	}
	h := src.owner()
	if r.entry() == nil {
		r.init(h, root)
	} else if r.heap != src.heap {
		panic("tracegc: Set across heaps")
	}
	l := layoutOf[T]()
	h.bindCopy(r.id, src.id, destroy[T], l.name)
}

// Init constructs an empty Ref. Init on a Ref already constructed on h is a
// no-op; a Ref constructed on another heap is released first.
func (r *Ref[T]) Init(h *Heap) {
	r.init(h, false)
}

// InitAt constructs a Ref pointing at p.
func (r *Ref[T]) InitAt(h *Heap, p *T) {
	r.InitAddr(h, uintptr(unsafe.Pointer(p)))
}

// InitAddr constructs a Ref pointing at addr. A managed addr binds the Ref
// to its object and gives the object T's finalizer if it has none. Any other
// addr is kept as an untracked target.
func (r *Ref[T]) InitAddr(h *Heap, addr uintptr) {
	r.bind(r.init(h, false), addr)
}

// InitCopy constructs a Ref pointing where src points.
func (r *Ref[T]) InitCopy(src *Ref[T]) {
	if src == nil || src.entry() == nil {
		panic("tracegc: InitCopy from an uninitialised handle")
	}
	r.init(src.owner(), false)
	r.set(src, false)
}

// Set points r where src points. A zero r is constructed on src's heap.
func (r *Ref[T]) Set(src *Ref[T]) {
	r.set(src, false)
}

// SetPtr points r at p.
func (r *Ref[T]) SetPtr(p *T) {
	r.SetAddr(uintptr(unsafe.Pointer(p)))
}

// SetAddr points r at addr, with the same binding rules as InitAddr.
func (r *Ref[T]) SetAddr(addr uintptr) {
	r.bind(r.mustOwner("SetAddr"), addr)
}

// Clear empties r. The handle stays registered.
func (r *Ref[T]) Clear() {
	if e := r.entry(); e != nil {
		r.owner().unbind(r.id, e)
	}
}

// Release unbinds and deregisters r, leaving it zero. Releasing a zero Ref
// is a no-op.
func (r *Ref[T]) Release() {
	if h := r.owner(); h != nil {
		h.releaseHandle(r.id)
	}
	r.heap, r.id = 0, 0
}

// Valid reports whether r has a target. It turns false when the target
// object is freed or collected.
func (r *Ref[T]) Valid() bool {
	e := r.entry()
	return e != nil && e.target != 0
}

// Get returns the target, or nil if r is not valid.
func (r *Ref[T]) Get() *T {
	e := r.entry()
	if e == nil || e.target == 0 {
		return nil
	}
	return (*T)(r.owner().arena.Pointer(e.target))
}

// Addr returns the target address, or 0.
func (r *Ref[T]) Addr() uintptr {
	if e := r.entry(); e != nil {
		return e.target
	}
	return 0
}

// IsRoot reports whether r is a collection root.
func (r *Ref[T]) IsRoot() bool {
	e := r.entry()
	return e != nil && e.root
}

// Heap returns the heap r is registered with, or nil.
func (r *Ref[T]) Heap() *Heap {
	if r.entry() == nil {
		return nil
	}
	return r.owner()
}

// Root is a Ref that is a collection root: everything reachable from a live
// Root survives Collect. Roots belong to Go code, not to heap objects.
type Root[T any] struct {
	ref Ref[T]
}

// NewRoot returns a Root pointing at p.
func NewRoot[T any](h *Heap, p *T) *Root[T] {
	return NewRootAddr[T](h, uintptr(unsafe.Pointer(p)))
}

// NewRootAddr returns a Root pointing at addr.
func NewRootAddr[T any](h *Heap, addr uintptr) *Root[T] {
	r := new(Root[T])
	r.InitAddr(h, addr)
	return r
}

// RootOf returns a Root pointing where src points.
func RootOf[T any](src *Ref[T]) *Root[T] {
	r := new(Root[T])
	r.Set(src)
	return r
}

// Init constructs an empty Root.
func (r *Root[T]) Init(h *Heap) {
	r.ref.init(h, true)
}

// InitAt constructs a Root pointing at p.
func (r *Root[T]) InitAt(h *Heap, p *T) {
	r.InitAddr(h, uintptr(unsafe.Pointer(p)))
}

// InitAddr constructs a Root pointing at addr.
func (r *Root[T]) InitAddr(h *Heap, addr uintptr) {
	r.ref.bind(r.ref.init(h, true), addr)
}

// Set points r where src points. A zero r is constructed on src's heap.
func (r *Root[T]) Set(src *Ref[T]) { r.ref.set(src, true) }

// SetPtr points r at p.
func (r *Root[T]) SetPtr(p *T) { r.ref.SetPtr(p) }

// SetAddr points r at addr.
func (r *Root[T]) SetAddr(addr uintptr) { r.ref.SetAddr(addr) }

// Clear empties r.
func (r *Root[T]) Clear() { r.ref.Clear() }

// Release deregisters r.
func (r *Root[T]) Release() { r.ref.Release() }

// Valid reports whether r has a target.
func (r *Root[T]) Valid() bool { return r.ref.Valid() }

// Get returns the target, or nil.
func (r *Root[T]) Get() *T { return r.ref.Get() }

// Addr returns the target address, or 0.
func (r *Root[T]) Addr() uintptr { return r.ref.Addr() }

// IsRoot reports true for any constructed Root.
func (r *Root[T]) IsRoot() bool { return r.ref.IsRoot() }

// Heap returns the heap r is registered with, or nil.
func (r *Root[T]) Heap() *Heap { return r.ref.Heap() }

// Ref exposes the underlying handle, for use as the source of Set or
// InitCopy.
func (r *Root[T]) Ref() *Ref[T] { return &r.ref }
