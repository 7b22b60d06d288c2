// Package testutil provides testing utilities for tracegc.
//
// This package is intended for use in tests and benchmarks only.
// It generates random object graphs and computes their exact reachability,
// the ground truth a collection must agree with.
//
// # Random Graphs
//
//	rng := testutil.NewRNG(seed)
//	g := rng.Graph(64, 2)          // 64 nodes, up to 2 out-edges each
//	roots := rng.Roots(64, 4)      // 4 distinct root nodes
//
// # Ground Truth
//
//	live := g.Reachable(roots)     // live[i] reports whether node i survives
package testutil
