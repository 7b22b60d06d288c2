package tracegc

import (
	"errors"
	"fmt"

	"github.com/hupe1980/tracegc/internal/arena"
	"github.com/hupe1980/tracegc/resource"
)

var (
	// ErrHeapClosed is returned when operating on a closed heap.
	ErrHeapClosed = errors.New("tracegc: heap is closed")

	// ErrInvalidSize is returned when an allocation size is not positive.
	ErrInvalidSize = errors.New("tracegc: invalid allocation size")

	// ErrOutOfMemory is returned when the heap cannot obtain more storage,
	// either because the memory budget is exhausted or the OS refused a mapping.
	ErrOutOfMemory = errors.New("tracegc: out of memory")

	// ErrDoubleFree is returned when the same block is freed twice.
	ErrDoubleFree = errors.New("tracegc: double free")

	// ErrForeignAddress is returned when an address was not obtained from the heap.
	ErrForeignAddress = errors.New("tracegc: address not owned by heap")

	// ErrReentrant is returned when a finalizer allocates, frees or collects on
	// the heap that is running it.
	ErrReentrant = errors.New("tracegc: heap re-entered from a finalizer")

	// ErrRegistryInconsistent classifies fatal bookkeeping defects.
	// Use errors.Is to test for it; the concrete error is *ErrUnboundFinalizer.
	ErrRegistryInconsistent = errors.New("tracegc: registry inconsistency")
)

// ErrUnboundFinalizer reports an unreachable object that has no finalizer.
//
// This happens when raw memory from Allocate is never attached to a typed
// handle: the collector cannot know how to tear the object down. Collection
// stops before reclaiming anything; the object stays registered.
type ErrUnboundFinalizer struct {
	Addr  uintptr
	Size  uintptr
	Tag   string
	Count int // unreachable objects without a finalizer in this cycle
}

func (e *ErrUnboundFinalizer) Error() string {
	return fmt.Sprintf("tracegc: unreachable object 0x%x (%d bytes, %s) has no finalizer (%d such objects)",
		e.Addr, e.Size, e.Tag, e.Count)
}

// Is makes errors.Is(err, ErrRegistryInconsistent) match.
func (e *ErrUnboundFinalizer) Is(target error) bool {
	return target == ErrRegistryInconsistent
}

// ErrPointerType indicates that a type cannot live in off-heap memory because
// it contains Go pointers the Go garbage collector would not see.
type ErrPointerType struct {
	Type  string
	Field string
}

func (e *ErrPointerType) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("tracegc: type %s contains Go pointers", e.Type)
	}
	return fmt.Sprintf("tracegc: type %s contains Go pointers (field %s)", e.Type, e.Field)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, arena.ErrDoubleFree):
		return fmt.Errorf("%w: %w", ErrDoubleFree, err)
	case errors.Is(err, arena.ErrForeignAddress), errors.Is(err, arena.ErrNotBlockStart):
		return fmt.Errorf("%w: %w", ErrForeignAddress, err)
	case errors.Is(err, arena.ErrInvalidSize):
		return fmt.Errorf("%w: %w", ErrInvalidSize, err)
	case errors.Is(err, arena.ErrClosed):
		return fmt.Errorf("%w: %w", ErrHeapClosed, err)
	case errors.Is(err, resource.ErrMemoryLimitExceeded), errors.Is(err, arena.ErrMaxChunksExceeded):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	return err
}
