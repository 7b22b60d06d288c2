// Package resource implements the Controller for heap memory budgets and dump IO.
//
// A Controller can be shared by several heaps so that they draw from one
// common memory budget:
//
//	┌──────────────────────────────────────────────┐
//	│                 Controller                   │
//	├──────────────────────┬───────────────────────┤
//	│  Memory Limit        │  IO Rate Limiter      │
//	│  (fail-fast, sem)    │  (token bucket)       │
//	├──────────────────────┼───────────────────────┤
//	│  AcquireMemory       │  AcquireIO            │
//	│  ReleaseMemory       │  RateLimitedWriter    │
//	│  MemoryUsage         │  RateLimitedReader    │
//	└──────────────────────┴───────────────────────┘
//
// # Memory Management
//
// Heaps acquire memory per arena chunk, not per object. AcquireMemory is
// non-blocking and returns ErrMemoryLimitExceeded immediately:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//	h, _ := tracegc.NewHeap(tracegc.WithResourceController(rc))
//
// # IO Rate Limiting
//
// Heap dumps can be large. Writing them through a RateLimitedWriter keeps a
// diagnostic dump from saturating the disk:
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//	_ = h.WriteDump(w)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
