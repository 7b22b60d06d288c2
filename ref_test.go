package tracegc_test

import (
	"testing"
	"unsafe"

	"github.com/hupe1980/tracegc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_Empty(t *testing.T) {
	h := newHeap(t)

	var r tracegc.Ref[node]
	assert.False(t, r.Valid())
	assert.Nil(t, r.Heap())
	assert.Equal(t, 0, h.LiveHandles())

	r.Init(h)
	assert.False(t, r.Valid())
	assert.Nil(t, r.Get())
	assert.Equal(t, uintptr(0), r.Addr())
	assert.False(t, r.IsRoot())
	assert.Same(t, h, r.Heap())
	assert.Equal(t, 1, h.LiveHandles())

	r.Init(h)
	assert.Equal(t, 1, h.LiveHandles())

	r.Release()
	assert.Equal(t, 0, h.LiveHandles())
	assert.Nil(t, r.Heap())

	r.Release()
	assert.Equal(t, 0, h.LiveHandles())
}

func TestRef_InitAt(t *testing.T) {
	h := newHeap(t)
	n := newNode(t, h, 1)

	var r tracegc.Ref[node]
	r.InitAt(h, n)
	defer r.Release()

	assert.True(t, r.Valid())
	assert.Same(t, n, r.Get())
	assert.Equal(t, addrOf(n), r.Addr())
	assert.Equal(t, int64(1), r.Get().ID)
}

func TestRef_OutsideHeapDoesNotRetain(t *testing.T) {
	h := newHeap(t)
	n := newNode(t, h, 1)

	var r tracegc.Ref[node]
	r.InitAt(h, n)

	stats := h.MustCollect()
	assert.Equal(t, 1, stats.Freed)
	assert.False(t, r.Valid())
	assert.Nil(t, r.Get())
	assert.Equal(t, 1, h.LiveHandles())

	r.Release()
	assert.Equal(t, 0, h.LiveHandles())
}

func TestRef_InvalidatedOnFree(t *testing.T) {
	h := newHeap(t)
	n := newNode(t, h, 1)

	var r1, r2 tracegc.Ref[node]
	r1.InitAt(h, n)
	r2.InitCopy(&r1)
	root := tracegc.RootOf(&r1)
	defer func() {
		r1.Release()
		r2.Release()
		root.Release()
	}()

	require.NoError(t, tracegc.FreeObject(h, n))

	assert.False(t, r1.Valid())
	assert.False(t, r2.Valid())
	assert.False(t, root.Valid())
	assert.Nil(t, root.Get())
	assert.Equal(t, []int64{1}, finalized)
	assert.Equal(t, 3, h.LiveHandles())
}

func TestRef_Set(t *testing.T) {
	h := newHeap(t)
	a := newNode(t, h, 1)
	b := newNode(t, h, 2)

	var r, s tracegc.Ref[node]
	r.InitAt(h, a)
	defer r.Release()
	defer s.Release()

	t.Run("self", func(t *testing.T) {
		r.Set(&r)
		assert.Same(t, a, r.Get())
	})

	t.Run("zero destination takes source heap", func(t *testing.T) {
		s.Set(&r)
		assert.Same(t, h, s.Heap())
		assert.Same(t, a, s.Get())
		assert.Equal(t, 2, h.LiveHandles())
	})

	t.Run("rebind", func(t *testing.T) {
		s.SetPtr(b)
		assert.Same(t, b, s.Get())
		assert.Same(t, a, r.Get())
	})

	t.Run("clear keeps registration", func(t *testing.T) {
		s.Clear()
		assert.False(t, s.Valid())
		assert.Equal(t, 2, h.LiveHandles())
	})

	t.Run("set from uninitialised clears", func(t *testing.T) {
		var empty tracegc.Ref[node]
		s.SetPtr(b)
		s.Set(&empty)
		assert.False(t, s.Valid())
	})
}

func TestRef_Misuse(t *testing.T) {
	h := newHeap(t)
	n := newNode(t, h, 1)

	t.Run("SetPtr on uninitialised", func(t *testing.T) {
		var r tracegc.Ref[node]
		assert.Panics(t, func() { r.SetPtr(n) })
	})

	t.Run("Set between uninitialised", func(t *testing.T) {
		var r, s tracegc.Ref[node]
		assert.Panics(t, func() { r.Set(&s) })
	})

	t.Run("InitCopy from uninitialised", func(t *testing.T) {
		var r, s tracegc.Ref[node]
		assert.Panics(t, func() { r.InitCopy(&s) })
	})

	t.Run("across heaps", func(t *testing.T) {
		other := newHeap(t)

		var r, s tracegc.Ref[node]
		r.Init(h)
		s.Init(other)
		defer r.Release()
		defer s.Release()

		assert.Panics(t, func() { r.Set(&s) })
	})

	t.Run("closed heap", func(t *testing.T) {
		closed := newHeap(t)
		require.NoError(t, closed.Close())

		var r tracegc.Ref[node]
		assert.Panics(t, func() { r.Init(closed) })
		assert.Panics(t, func() { r.Init(nil) })
	})
}

func TestRef_Unmanaged(t *testing.T) {
	h := newHeap(t)

	addr, err := h.AllocateUnmanaged(64)
	require.NoError(t, err)
	assert.False(t, h.Contains(addr))

	root := tracegc.NewRootAddr[node](h, addr)
	defer root.Release()

	assert.True(t, root.Valid())
	assert.Equal(t, addr, root.Addr())

	root.Get().ID = 42

	stats := h.MustCollect()
	assert.Equal(t, 0, stats.Marked)
	assert.Equal(t, 0, stats.Freed)
	assert.Equal(t, int64(42), root.Get().ID)

	require.NoError(t, h.Free(addr))
	// Unmanaged storage carries no handle bookkeeping.
	assert.True(t, root.Valid())
}

func TestRoot(t *testing.T) {
	h := newHeap(t)
	n := newNode(t, h, 1)

	root := tracegc.NewRoot(h, n)
	assert.True(t, root.IsRoot())
	assert.Same(t, h, root.Heap())

	var r tracegc.Ref[node]
	r.InitCopy(root.Ref())
	assert.False(t, r.IsRoot())
	assert.Same(t, n, r.Get())

	var empty tracegc.Root[node]
	empty.Init(h)
	assert.True(t, empty.IsRoot())
	assert.False(t, empty.Valid())
	empty.Set(&r)
	assert.Same(t, n, empty.Get())
	empty.SetAddr(0)
	assert.False(t, empty.Valid())
	assert.Equal(t, 3, h.LiveHandles())

	r.Release()
	empty.Release()

	stats := h.MustCollect()
	assert.Equal(t, 1, stats.Roots)
	assert.Equal(t, 0, stats.Freed)

	root.Release()
	stats = h.MustCollect()
	assert.Equal(t, 0, stats.Roots)
	assert.Equal(t, 1, stats.Freed)
}

func TestRef_CloseInvalidates(t *testing.T) {
	h := newHeap(t)
	n := newNode(t, h, 1)

	root := tracegc.NewRoot(h, n)
	require.NoError(t, h.Close())

	assert.False(t, root.Valid())
	assert.Nil(t, root.Heap())
	assert.Empty(t, finalized)

	root.Release()
	require.NoError(t, h.Close())
}

func TestRef_FreeUnmanagedReleasesHandles(t *testing.T) {
	h := newHeap(t)
	victim := newNode(t, h, 1)

	addr, err := h.AllocateUnmanaged(int(unsafe.Sizeof(node{})))
	require.NoError(t, err)

	holder := tracegc.NewRootAddr[node](h, addr)
	holder.Get().Refs[0].InitAt(h, victim)
	holder.Release()
	require.Equal(t, 1, h.LiveHandles())

	require.NoError(t, h.Free(addr))
	assert.Equal(t, 0, h.LiveHandles())

	// A managed object reusing the block must not inherit the old edge.
	reused := newNode(t, h, 2)
	root := tracegc.NewRoot(h, reused)
	defer root.Release()

	stats := h.MustCollect()
	assert.Equal(t, 1, stats.Freed)
	assert.False(t, h.Contains(addrOf(victim)))
	assert.Equal(t, []int64{1}, finalized)
}
