// Package arena provides the off-heap raw storage behind a managed heap.
//
// The arena hands out blocks carved from mmap-backed chunks. Every block is
// preceded by a small header recording its size class, requested size and
// state, so a block can be released by address alone and a second release of
// the same block is detected.
//
// # Layout
//
//	chunk (DefaultChunkSize, power of two)
//	┌──────────┬─────────────┬──────────┬─────────────┬─────
//	│ header   │ payload ... │ header   │ payload ... │ ...
//	│ 16 bytes │             │ 16 bytes │             │
//	└──────────┴─────────────┴──────────┴─────────────┴─────
//
// Block sizes (header included) are powers of two from 32 bytes up to half a
// chunk. Freed blocks go to a per-class free list and are reused by the next
// allocation of that class. Larger requests get a dedicated mapping that is
// unmapped as soon as the block is freed.
//
// # Guarantees
//
//   - Addresses are stable: blocks never move.
//   - Payloads are 16-byte aligned and zeroed on allocation.
//   - Free on an address outside the arena returns ErrForeignAddress.
//   - Free on an already freed block returns ErrDoubleFree.
//
// # Concurrency
//
// Arena is NOT safe for concurrent use. It is owned by exactly one heap.
package arena
