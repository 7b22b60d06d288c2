package tracegc_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/hupe1980/tracegc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCollector(t *testing.T) {
	metrics := &tracegc.BasicMetricsCollector{}
	h := newHeap(t, tracegc.WithMetricsCollector(metrics))

	a := newNode(t, h, 1)
	_ = newNode(t, h, 2)
	root := tracegc.NewRoot(h, a)
	defer root.Release()

	_, err := h.Allocate(0, "bad")
	require.Error(t, err)

	addr, err := h.AllocateUnmanaged(40)
	require.NoError(t, err)
	require.NoError(t, h.Free(addr))
	require.Error(t, h.Free(addr))

	h.MustCollect()

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.AllocCount)
	assert.Equal(t, int64(1), stats.AllocErrors)
	assert.Equal(t, int64(1), stats.FreeCount)
	assert.Equal(t, int64(1), stats.FreeErrors)
	assert.Equal(t, int64(1), stats.CollectCount)
	assert.Equal(t, int64(0), stats.CollectErrors)
	assert.Equal(t, int64(1), stats.SweptObjects)
	assert.Equal(t, int64(24), stats.SweptBytes)
}

func TestBasicMetricsCollector_CollectError(t *testing.T) {
	metrics := &tracegc.BasicMetricsCollector{}
	h := newHeap(t, tracegc.WithMetricsCollector(metrics))

	_, err := h.Allocate(16, "unbound")
	require.NoError(t, err)

	_, err = h.Collect()
	require.Error(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.CollectCount)
	assert.Equal(t, int64(1), stats.CollectErrors)
	assert.Equal(t, int64(0), stats.SweptObjects)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := tracegc.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := newHeap(t, tracegc.WithLogger(logger))
	n := newNode(t, h, 1)
	addr := fmt.Sprintf(`"addr":"0x%x"`, addrOf(n))
	h.MustCollect()

	raw, err := h.AllocateUnmanaged(8)
	require.NoError(t, err)
	require.NoError(t, h.Free(raw))

	out := buf.String()
	lines := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		for _, msg := range []string{`"msg":"sweep"`, `"msg":"free"`} {
			if strings.Contains(line, msg) {
				lines[msg] = line
			}
		}
	}
	assert.Contains(t, lines[`"msg":"sweep"`], addr)
	assert.Contains(t, lines[`"msg":"free"`], fmt.Sprintf(`"addr":"0x%x"`, raw))
	assert.Contains(t, out, `"msg":"alloc"`)
	assert.Contains(t, out, `"msg":"sweep"`)
	assert.Contains(t, out, `"msg":"collection completed"`)
	assert.Contains(t, out, `"heap":`)
	assert.Contains(t, out, `"freed":1`)
}

func TestOptions_NilFallbacks(t *testing.T) {
	h := newHeap(t, tracegc.WithLogger(nil), tracegc.WithMetricsCollector(nil))

	_ = newNode(t, h, 1)
	stats := h.MustCollect()
	assert.Equal(t, 1, stats.Freed)
}
