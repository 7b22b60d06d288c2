package tracegc

import (
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/tracegc/internal/conv"
)

// handleEntry is the registry-side state of one Ref or Root.
type handleEntry struct {
	slot   uintptr // storage address of the handle itself
	target uintptr
	rec    *record
	root   bool
}

// handleTable is the registry of every live handle. Ids are dense and
// reused; id 0 is never issued so a zero Ref reads as "not constructed".
type handleTable struct {
	entries []*handleEntry
	live    *roaring.Bitmap
	free    []uint32
}

func newHandleTable() handleTable {
	return handleTable{
		entries: []*handleEntry{nil},
		live:    roaring.New(),
	}
}

func (t *handleTable) add(slot uintptr, root bool) uint32 {
	e := &handleEntry{slot: slot, root: root}

	var id uint32
	if n := len(t.free); n > 0 {
		id = t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[id] = e
	} else {
		next, err := conv.IntToUint32(len(t.entries))
		if err != nil {
			panic("tracegc: handle ids exhausted")
		}
		id = next
		t.entries = append(t.entries, e)
	}
	t.live.Add(id)
	return id
}

func (t *handleTable) get(id uint32) *handleEntry {
	if id == 0 || int(id) >= len(t.entries) {
		return nil
	}
	return t.entries[id]
}

// remove deregisters id. Removing an absent id is a no-op.
func (t *handleTable) remove(id uint32) {
	if t.get(id) == nil {
		return
	}
	t.entries[id] = nil
	t.live.Remove(id)
	t.free = append(t.free, id)
}

func (t *handleTable) len() int {
	n, _ := conv.Uint64ToInt(t.live.GetCardinality())
	return n
}

// each visits live handles in id order. fn must not add or remove handles.
func (t *handleTable) each(fn func(id uint32, e *handleEntry)) {
	it := t.live.Iterator()
	for it.HasNext() {
		id := it.Next()
		fn(id, t.entries[id])
	}
}

// embeddedIn returns the ids of handles whose storage lies in rec.
func (t *handleTable) embeddedIn(rec *record) []uint32 {
	var ids []uint32
	t.each(func(id uint32, e *handleEntry) {
		if rec.contains(e.slot) {
			ids = append(ids, id)
		}
	})
	return ids
}

// newHandle registers a handle stored at slot.
func (h *Heap) newHandle(slot uintptr, root bool) uint32 {
	return h.handles.add(slot, root)
}

// unbind detaches handle id from its record, if any, and clears its target.
func (h *Heap) unbind(id uint32, e *handleEntry) {
	if e.rec != nil {
		e.rec.bound.Remove(id)
	}
	e.target, e.rec = 0, nil
}

// bindAddr points handle id at addr. A managed addr binds the handle to its
// record and, if the record has no finalizer yet, installs destroy. An
// unmanaged addr leaves the handle dangling: target set, no record.
func (h *Heap) bindAddr(id uint32, addr uintptr, destroy func(unsafe.Pointer), typ string) {
	e := h.handles.get(id)
	if e == nil {
		return
	}
	h.unbind(id, e)
	if addr == 0 {
		return
	}
	e.target = addr
	if rec, ok := h.lookup(addr); ok {
		e.rec = rec
		rec.bound.Add(id)
		rec.bindFinalizer(destroy, typ)
	}
}

// bindCopy points handle id at whatever src points at.
func (h *Heap) bindCopy(id, src uint32, destroy func(unsafe.Pointer), typ string) {
	if id == src {
		return
	}
	e := h.handles.get(id)
	s := h.handles.get(src)
	if e == nil {
		return
	}
	h.unbind(id, e)
	if s == nil {
		return
	}
	e.target, e.rec = s.target, s.rec
	if e.rec != nil {
		e.rec.bound.Add(id)
		e.rec.bindFinalizer(destroy, typ)
	}
}

// releaseHandle unbinds and deregisters handle id.
func (h *Heap) releaseHandle(id uint32) {
	e := h.handles.get(id)
	if e == nil {
		return
	}
	h.unbind(id, e)
	h.handles.remove(id)
}

// releaseEmbedded releases every handle stored inside rec's memory, the way
// destroying an object destroys its fields.
func (h *Heap) releaseEmbedded(rec *record) {
	for _, id := range h.handles.embeddedIn(rec) {
		h.releaseHandle(id)
	}
}
