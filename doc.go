// Package tracegc provides a tracing mark-and-sweep collector for objects
// allocated in off-heap memory.
//
// Objects live in mmap'd arenas outside the Go heap and refer to each other
// through registered handles. The collector does not know object layouts:
// an object's references are the handles whose own storage lies inside the
// object's address range. Cycles are reclaimed.
//
// # Quick Start
//
//	type Node struct {
//	    Value int64
//	    Next  tracegc.Ref[Node]
//	}
//
//	h, _ := tracegc.NewHeap()
//	defer h.Close()
//
//	a, _ := tracegc.New[Node](h)
//	b, _ := tracegc.New[Node](h)
//	a.Next.InitAt(h, b)  // edge a -> b
//	b.Next.InitAt(h, a)  // edge b -> a, a cycle
//
//	root := tracegc.NewRoot(h, a)
//	h.Collect()      // a and b survive
//	root.Release()
//	h.Collect()      // a and b are reclaimed
//
// # Handles
//
// Ref[T] is a handle that becomes an edge when stored in a managed object.
// Root[T] is a handle that keeps its target alive from Go code. Both are
// plain integers, so they can be stored in off-heap memory, and both must
// be released explicitly unless the object holding them is reclaimed.
//
// When an object is freed or collected, every handle pointing at it becomes
// invalid: Valid reports false and Get returns nil.
//
// # Allocation
//
//   - New[T] allocates a typed object with its finalizer bound.
//   - Allocate returns raw managed bytes; the first typed handle to point at
//     them binds the finalizer.
//   - AllocateUnmanaged returns bytes the collector ignores.
//   - Free releases any of them immediately.
//
// A freshly allocated object must be reached from a Root before the next
// Collect, or it is reclaimed.
//
// # Concurrency
//
// A Heap is owned by a single goroutine. Distinct heaps may be used from
// distinct goroutines.
package tracegc
