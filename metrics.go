package tracegc

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting heap metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    freedObjects prometheus.Counter
//	    pauses       prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordCollect(stats tracegc.CollectStats, err error) {
//	    p.freedObjects.Add(float64(stats.Freed))
//	    p.pauses.Observe(stats.Duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordAlloc is called after each managed allocation.
	RecordAlloc(size int, err error)

	// RecordFree is called after each explicit deallocation.
	RecordFree(size uintptr, err error)

	// RecordCollect is called after each collection cycle.
	RecordCollect(stats CollectStats, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(int, error)            {}
func (NoopMetricsCollector) RecordFree(uintptr, error)         {}
func (NoopMetricsCollector) RecordCollect(CollectStats, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocCount        atomic.Int64
	AllocBytes        atomic.Int64
	AllocErrors       atomic.Int64
	FreeCount         atomic.Int64
	FreeBytes         atomic.Int64
	FreeErrors        atomic.Int64
	CollectCount      atomic.Int64
	CollectErrors     atomic.Int64
	CollectTotalNanos atomic.Int64
	SweptObjects      atomic.Int64
	SweptBytes        atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(size int, err error) {
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	b.AllocCount.Add(1)
	b.AllocBytes.Add(int64(size))
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree(size uintptr, err error) {
	if err != nil {
		b.FreeErrors.Add(1)
		return
	}
	b.FreeCount.Add(1)
	b.FreeBytes.Add(int64(size)) //nolint:gosec // object sizes fit int64
}

// RecordCollect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollect(stats CollectStats, err error) {
	b.CollectCount.Add(1)
	b.CollectTotalNanos.Add(stats.Duration.Nanoseconds())
	if err != nil {
		b.CollectErrors.Add(1)
		return
	}
	b.SweptObjects.Add(int64(stats.Freed))
	b.SweptBytes.Add(int64(stats.FreedBytes)) //nolint:gosec // object sizes fit int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocCount:      b.AllocCount.Load(),
		AllocBytes:      b.AllocBytes.Load(),
		AllocErrors:     b.AllocErrors.Load(),
		FreeCount:       b.FreeCount.Load(),
		FreeBytes:       b.FreeBytes.Load(),
		FreeErrors:      b.FreeErrors.Load(),
		CollectCount:    b.CollectCount.Load(),
		CollectErrors:   b.CollectErrors.Load(),
		CollectAvgPause: b.getAvgPause(),
		SweptObjects:    b.SweptObjects.Load(),
		SweptBytes:      b.SweptBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgPause() time.Duration {
	count := b.CollectCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(b.CollectTotalNanos.Load() / count)
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocCount      int64
	AllocBytes      int64
	AllocErrors     int64
	FreeCount       int64
	FreeBytes       int64
	FreeErrors      int64
	CollectCount    int64
	CollectErrors   int64
	CollectAvgPause time.Duration
	SweptObjects    int64
	SweptBytes      int64
}
