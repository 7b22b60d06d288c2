package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph(t *testing.T) {
	rng := NewRNG(4711)

	g := rng.Graph(32, 3)

	require.Equal(t, 32, g.N)
	require.Len(t, g.Edges, 32)
	for _, edges := range g.Edges {
		assert.Len(t, edges, 3)
		for _, m := range edges {
			assert.GreaterOrEqual(t, m, -1)
			assert.Less(t, m, 32)
		}
	}
}

func TestRoots(t *testing.T) {
	rng := NewRNG(4711)

	roots := rng.Roots(10, 4)
	assert.Len(t, roots, 4)

	seen := map[int]bool{}
	for _, r := range roots {
		assert.False(t, seen[r])
		seen[r] = true
	}

	assert.Len(t, rng.Roots(3, 10), 3)
}

func TestReachable(t *testing.T) {
	// 0 -> 1 -> 2 -> 1 (cycle), 3 -> 4, 5 isolated
	g := &Graph{
		N: 6,
		Edges: [][]int{
			{1, -1},
			{2, -1},
			{1, -1},
			{4, -1},
			{-1, -1},
			{-1, -1},
		},
	}

	assert.Equal(t, []bool{true, true, true, false, false, false}, g.Reachable([]int{0}))
	assert.Equal(t, []bool{true, true, true, true, true, false}, g.Reachable([]int{0, 3}))
	assert.Equal(t, make([]bool, 6), g.Reachable(nil))
}

func TestDeterministic(t *testing.T) {
	a, b := NewRNG(42), NewRNG(42)

	assert.Equal(t, a.Graph(8, 2), b.Graph(8, 2))
	assert.Equal(t, a.Roots(8, 3), b.Roots(8, 3))
}
