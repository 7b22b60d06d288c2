package tracegc

import (
	"cmp"
	"errors"
	"slices"
	"time"
)

// CollectStats describes one collection cycle.
type CollectStats struct {
	Cycle       uint64
	Epoch       bool
	Roots       int
	Marked      int
	Freed       int
	FreedBytes  uintptr
	LiveObjects int
	LiveBytes   uintptr
	Duration    time.Duration
}

// Collect reclaims every object not reachable from a live Root.
//
// Reachability is conservative over handles: an object references every
// object that a handle stored within its address range points at.
//
// If an unreachable object has no finalizer, Collect returns an
// *ErrUnboundFinalizer and reclaims nothing.
func (h *Heap) Collect() (CollectStats, error) {
	if err := h.checkUsable(); err != nil {
		return CollectStats{}, err
	}

	start := time.Now()
	h.cycles++
	h.epoch = !h.epoch

	stats := CollectStats{
		Cycle: h.cycles,
		Epoch: h.epoch,
	}
	stats.Roots, stats.Marked = h.mark()
	err := h.sweep(&stats)

	stats.LiveObjects = len(h.objects)
	stats.LiveBytes = h.live
	stats.Duration = time.Since(start)

	h.logger.LogCollect(stats, err)
	h.metrics.RecordCollect(stats, err)
	return stats, err
}

// MustCollect is like Collect but panics on error.
func (h *Heap) MustCollect() CollectStats {
	stats, err := h.Collect()
	if err != nil {
		panic(err)
	}
	return stats
}

// mark sets every record reachable from a root to the current epoch.
// Each marked record costs one pass over the live handles.
func (h *Heap) mark() (roots, marked int) {
	var stack []*record

	push := func(rec *record) {
		if rec == nil || rec.mark == h.epoch {
			return
		}
		rec.mark = h.epoch
		marked++
		stack = append(stack, rec)
	}

	h.handles.each(func(_ uint32, e *handleEntry) {
		if e.root {
			roots++
			push(e.rec)
		}
	})

	for len(stack) > 0 {
		rec := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		h.handles.each(func(_ uint32, e *handleEntry) {
			if rec.contains(e.slot) {
				push(e.rec)
			}
		})
	}

	return roots, marked
}

func (h *Heap) sweep(stats *CollectStats) error {
	var garbage []*record
	for _, rec := range h.objects {
		if rec.mark != h.epoch {
			garbage = append(garbage, rec)
		}
	}
	if len(garbage) == 0 {
		return nil
	}
	slices.SortFunc(garbage, func(a, b *record) int {
		return cmp.Compare(a.addr, b.addr)
	})

	var unbound *ErrUnboundFinalizer
	for _, rec := range garbage {
		if rec.destroy != nil {
			continue
		}
		if unbound == nil {
			unbound = &ErrUnboundFinalizer{Addr: rec.addr, Size: rec.size, Tag: rec.tag}
		}
		unbound.Count++
	}
	if unbound != nil {
		return unbound
	}

	var errs []error
	for _, rec := range garbage {
		h.reclaim(rec)
		if err := h.arena.Free(rec.addr); err != nil {
			errs = append(errs, translateError(err))
			continue
		}
		h.logger.LogSweep(rec.addr, rec.size, rec.tag)
		stats.Freed++
		stats.FreedBytes += rec.size
	}
	return errors.Join(errs...)
}
