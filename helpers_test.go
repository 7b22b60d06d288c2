package tracegc_test

import (
	"testing"
	"unsafe"

	"github.com/hupe1980/tracegc"
	"github.com/stretchr/testify/require"
)

type node struct {
	ID   int64
	Refs [2]tracegc.Ref[node]
}

// finalized records node IDs in finalization order. Tests in this package
// do not run in parallel.
var finalized []int64

func (n *node) Finalize() {
	finalized = append(finalized, n.ID)
}

func newHeap(t *testing.T, opts ...tracegc.Option) *tracegc.Heap {
	t.Helper()
	finalized = nil

	opts = append([]tracegc.Option{tracegc.WithChunkSize(64 * 1024)}, opts...)
	h, err := tracegc.NewHeap(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newNode(t *testing.T, h *tracegc.Heap, id int64) *node {
	t.Helper()
	n, err := tracegc.New[node](h)
	require.NoError(t, err)
	n.ID = id
	return n
}

func addrOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}
