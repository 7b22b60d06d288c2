package tracegc

import (
	"log/slog"
	"os"
	"strconv"
)

// Logger wraps slog.Logger with tracegc-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithHeap adds the heap id field to the logger.
func (l *Logger) WithHeap(id uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("heap", id),
	}
}

// WithAddr adds an object address field to the logger.
func (l *Logger) WithAddr(addr uintptr) *Logger {
	return &Logger{
		Logger: l.Logger.With("addr", addrAttr(addr)),
	}
}

// LogAlloc logs an allocation.
func (l *Logger) LogAlloc(addr uintptr, size int, tag string, err error) {
	if err != nil {
		l.Error("alloc failed",
			"size", size,
			"tag", tag,
			"error", err,
		)
		return
	}
	l.Debug("alloc",
		"addr", addrAttr(addr),
		"size", size,
		"tag", tag,
	)
}

// LogFree logs an explicit deallocation.
func (l *Logger) LogFree(addr uintptr, size uintptr, managed bool, err error) {
	al := l.WithAddr(addr)
	if err != nil {
		al.Error("free failed", "error", err)
		return
	}
	al.Debug("free",
		"size", size,
		"managed", managed,
	)
}

// LogSweep logs a single object reclaimed by the collector.
func (l *Logger) LogSweep(addr uintptr, size uintptr, tag string) {
	l.WithAddr(addr).Debug("sweep",
		"size", size,
		"tag", tag,
	)
}

// LogCollect logs a completed (or aborted) collection cycle.
func (l *Logger) LogCollect(stats CollectStats, err error) {
	if err != nil {
		l.Error("collection aborted",
			"cycle", stats.Cycle,
			"marked", stats.Marked,
			"error", err,
		)
		return
	}
	l.Info("collection completed",
		"cycle", stats.Cycle,
		"roots", stats.Roots,
		"marked", stats.Marked,
		"freed", stats.Freed,
		"freed_bytes", stats.FreedBytes,
		"live_objects", stats.LiveObjects,
		"live_bytes", stats.LiveBytes,
		"duration", stats.Duration,
	)
}

func addrAttr(addr uintptr) slog.Value {
	return slog.StringValue("0x" + strconv.FormatUint(uint64(addr), 16))
}
