package tracegc

import (
	"github.com/hupe1980/tracegc/internal/arena"
	"github.com/hupe1980/tracegc/internal/fs"
	"github.com/hupe1980/tracegc/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	chunkSize        int
	memoryLimit      int64
	controller       *resource.Controller
	fileSystem       fs.FileSystem
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		chunkSize:        arena.DefaultChunkSize,
		fileSystem:       fs.Default,
	}
}

// Option configures a Heap.
type Option func(*options)

// WithLogger configures structured logging for heap operations.
// Allocation, free and sweep events are logged at Debug, collections at Info
// and bookkeeping defects at Error.
//
// Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring the heap.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &tracegc.BasicMetricsCollector{}
//	h, _ := tracegc.NewHeap(tracegc.WithMetricsCollector(metrics))
//	// ... allocate, collect ...
//	stats := metrics.GetStats()
//	fmt.Printf("swept %d objects\n", stats.SweptObjects)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithChunkSize sets the size of the mmap chunks objects are carved from.
// The value is rounded up to a power of two. Objects larger than half a
// chunk get a dedicated mapping.
func WithChunkSize(size int) Option {
	return func(o *options) {
		o.chunkSize = size
	}
}

// WithMemoryLimit sets a hard limit on the memory the heap may map.
// The limit applies to reserved chunks, not to live object bytes.
// Ignored when WithResourceController is also given.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithResourceController draws heap memory from a shared controller, so
// several heaps can be bounded by one budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}
