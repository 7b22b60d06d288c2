package tracegc

import (
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
)

// record is the registry entry of one managed allocation.
type record struct {
	addr    uintptr
	size    uintptr
	mark    bool
	destroy func(unsafe.Pointer) // nil until bound
	typ     string
	tag     string
	bound   *roaring.Bitmap // ids of handles bound to this record
}

func (r *record) contains(addr uintptr) bool {
	return addr >= r.addr && addr < r.addr+r.size
}

// register records a new allocation with the current epoch. A fresh object
// is therefore not marked for the next collection: it survives only if a
// root reaches it by then.
func (h *Heap) register(addr, size uintptr, tag string) *record {
	rec := &record{
		addr:  addr,
		size:  size,
		mark:  h.epoch,
		tag:   tag,
		bound: roaring.New(),
	}
	h.objects[addr] = rec
	h.live += size
	return rec
}

func (h *Heap) lookup(addr uintptr) (*record, bool) {
	rec, ok := h.objects[addr]
	return rec, ok
}

// remove deletes the record for addr and invalidates every handle bound to
// it. Unknown addresses are ignored.
func (h *Heap) remove(addr uintptr) {
	rec, ok := h.objects[addr]
	if !ok {
		return
	}
	delete(h.objects, addr)
	h.live -= rec.size

	it := rec.bound.Iterator()
	for it.HasNext() {
		if e := h.handles.get(it.Next()); e != nil {
			e.target, e.rec = 0, nil
		}
	}
	rec.bound.Clear()
}

// bindFinalizer sets the record's teardown if it has none yet.
func (rec *record) bindFinalizer(destroy func(unsafe.Pointer), typ string) {
	if rec.destroy == nil && destroy != nil {
		rec.destroy = destroy
		rec.typ = typ
	}
}
