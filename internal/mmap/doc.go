// Package mmap provides anonymous memory mappings for off-heap allocation.
//
// # Overview
//
// Memory returned by MapAnon lives outside the Go garbage collector's view.
// The arena allocator carves managed objects out of these mappings so that
// object addresses are stable for their whole lifetime and never move.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT
//
// # Safety
//
// Go pointers must never be stored in a mapping: the Go collector does not
// scan it, so the pointee may be freed while the mapping still refers to it.
// Close is idempotent. Callers must not touch Bytes() after Close returns.
package mmap
