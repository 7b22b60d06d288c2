package arena

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAcquirer struct {
	limit int64
	used  int64
}

var errBudget = errors.New("budget exhausted")

func (c *countingAcquirer) AcquireMemory(n int64) error {
	if c.limit > 0 && c.used+n > c.limit {
		return errBudget
	}
	c.used += n
	return nil
}

func (c *countingAcquirer) ReleaseMemory(n int64) { c.used -= n }

func TestArena_New(t *testing.T) {
	t.Run("default chunk size", func(t *testing.T) {
		a := New(0)
		defer a.Close()

		if a.ChunkSize() != DefaultChunkSize {
			t.Errorf("expected chunkSize=%d, got %d", DefaultChunkSize, a.ChunkSize())
		}
		if a.Stats().ActiveChunks != 0 {
			t.Error("chunks should be mapped lazily")
		}
	})

	t.Run("rounds up to power of two", func(t *testing.T) {
		a := New(5000)
		defer a.Close()
		assert.Equal(t, 8192, a.ChunkSize())
	})

	t.Run("minimum chunk size", func(t *testing.T) {
		a := New(100)
		defer a.Close()
		assert.Equal(t, MinChunkSize, a.ChunkSize())
	})
}

func TestArena_Alloc(t *testing.T) {
	t.Run("basic allocation", func(t *testing.T) {
		a := New(4096)
		defer a.Close()

		addr, err := a.Alloc(100)
		require.NoError(t, err)
		require.NotZero(t, addr)
		assert.True(t, a.Owns(addr))

		size, err := a.SizeOf(addr)
		require.NoError(t, err)
		assert.Equal(t, 100, size)
	})

	t.Run("invalid size", func(t *testing.T) {
		a := New(4096)
		defer a.Close()

		_, err := a.Alloc(0)
		assert.ErrorIs(t, err, ErrInvalidSize)
		_, err = a.Alloc(-3)
		assert.ErrorIs(t, err, ErrInvalidSize)
	})

	t.Run("alignment", func(t *testing.T) {
		a := New(4096)
		defer a.Close()

		for _, size := range []int{1, 3, 5, 7, 9, 15, 17, 33, 100} {
			addr, err := a.Alloc(size)
			require.NoError(t, err)
			if addr%Alignment != 0 {
				t.Errorf("size=%d addr=%x not aligned", size, addr)
			}
		}
	})

	t.Run("multiple chunks", func(t *testing.T) {
		a := New(4096)
		defer a.Close()

		for i := 0; i < 64; i++ {
			_, err := a.Alloc(200)
			require.NoError(t, err)
		}
		assert.Greater(t, a.Stats().ChunksAllocated, uint64(1))
	})

	t.Run("distinct blocks do not overlap", func(t *testing.T) {
		a := New(4096)
		defer a.Close()

		const size = 40
		seen := make(map[uintptr]bool)
		var prev []uintptr
		for i := 0; i < 50; i++ {
			addr, err := a.Alloc(size)
			require.NoError(t, err)
			assert.False(t, seen[addr])
			seen[addr] = true
			for _, p := range prev {
				if addr < p+size && p < addr+size {
					t.Fatalf("block %x overlaps %x", addr, p)
				}
			}
			prev = append(prev, addr)
		}
	})
}

func TestArena_FreeAndReuse(t *testing.T) {
	a := New(4096)
	defer a.Close()

	addr, err := a.Alloc(64)
	require.NoError(t, err)

	buf := unsafe.Slice((*byte)(a.Pointer(addr)), 64)
	for i := range buf {
		buf[i] = 0xFF
	}

	require.NoError(t, a.Free(addr))
	assert.False(t, a.Owns(addr))

	// Same class is served from the free list and comes back zeroed.
	again, err := a.Alloc(60)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	buf = unsafe.Slice((*byte)(a.Pointer(again)), 60)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}

	stats := a.Stats()
	assert.Equal(t, uint64(2), stats.TotalAllocs)
	assert.Equal(t, uint64(1), stats.TotalFrees)
	assert.Equal(t, uint64(60), stats.BytesUsed)
}

func TestArena_FreeErrors(t *testing.T) {
	a := New(4096)
	defer a.Close()

	addr, err := a.Alloc(32)
	require.NoError(t, err)

	t.Run("double free", func(t *testing.T) {
		require.NoError(t, a.Free(addr))
		assert.ErrorIs(t, a.Free(addr), ErrDoubleFree)
	})

	t.Run("foreign address", func(t *testing.T) {
		var local int
		assert.ErrorIs(t, a.Free(uintptr(unsafe.Pointer(&local))), ErrForeignAddress)
	})

	t.Run("interior address", func(t *testing.T) {
		other, err := a.Alloc(128)
		require.NoError(t, err)
		assert.ErrorIs(t, a.Free(other+8), ErrNotBlockStart)
		assert.True(t, a.Contains(other+8))
		assert.False(t, a.Owns(other+8))
	})
}

func TestArena_LargeBlocks(t *testing.T) {
	a := New(4096)
	defer a.Close()

	addr, err := a.Alloc(10000)
	require.NoError(t, err)
	assert.True(t, a.Owns(addr))
	assert.True(t, a.Contains(addr+9999))
	assert.Equal(t, uint64(1), a.Stats().LargeBlocks)

	size, err := a.SizeOf(addr)
	require.NoError(t, err)
	assert.Equal(t, 10000, size)

	require.NoError(t, a.Free(addr))
	assert.False(t, a.Owns(addr))
	assert.Equal(t, uint64(0), a.Stats().LargeBlocks)
}

func TestArena_MemoryAcquirer(t *testing.T) {
	acq := &countingAcquirer{limit: 8192}
	a := New(4096, WithMemoryAcquirer(acq))

	_, err := a.Alloc(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), acq.used)

	// Larger than a chunk: needs its own mapping and exceeds the budget.
	_, err = a.Alloc(8000)
	assert.ErrorIs(t, err, errBudget)
	assert.Equal(t, int64(4096), acq.used)

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), acq.used)
}

func TestArena_Close(t *testing.T) {
	a := New(4096)
	_, err := a.Alloc(16)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Alloc(16)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, uint64(0), a.Stats().BytesReserved)
	assert.Contains(t, a.String(), "chunks: 0")
}
