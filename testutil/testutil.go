package testutil

import (
	"math/rand"
	"sync"
)

// RNG is a seeded, thread-safe source of random test graphs.
type RNG struct {
	rand *rand.Rand
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
	}
}

// Graph is a directed graph over nodes 0..N-1. Edges[i] holds the targets
// of node i, at most one per out-slot; -1 marks an empty slot.
type Graph struct {
	N     int
	Edges [][]int
}

// Graph returns a random graph with n nodes and the given number of out-slots
// per node. Roughly one slot in four is left empty, and self-loops and
// cycles occur naturally.
func (r *RNG) Graph(n, slots int) *Graph {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Graph{N: n, Edges: make([][]int, n)}
	for i := range g.Edges {
		g.Edges[i] = make([]int, slots)
		for j := range g.Edges[i] {
			if r.rand.Intn(4) == 0 {
				g.Edges[i][j] = -1
				continue
			}
			g.Edges[i][j] = r.rand.Intn(n)
		}
	}
	return g
}

// Roots returns k distinct nodes out of n.
func (r *RNG) Roots(n, k int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	perm := r.rand.Perm(n)
	return perm[:min(k, n)]
}

// Reachable computes exact reachability from roots.
func (g *Graph) Reachable(roots []int) []bool {
	seen := make([]bool, g.N)
	stack := make([]int, 0, len(roots))
	for _, root := range roots {
		if !seen[root] {
			seen[root] = true
			stack = append(stack, root)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range g.Edges[n] {
			if m >= 0 && !seen[m] {
				seen[m] = true
				stack = append(stack, m)
			}
		}
	}
	return seen
}
