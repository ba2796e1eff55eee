package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-perf/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestCollector_CompressionRatio accumulates bytes over all compressions.
func TestCollector_CompressionRatio(t *testing.T) {
	c := NewCollector(nil)
	require.Zero(t, c.CompressionRatio())

	c.RecordCompression(model.CompressionHigh, 100, 60)
	c.RecordCompression(model.CompressionMaximum, 100, 40)

	require.InDelta(t, 0.5, c.CompressionRatio(), 1e-9)
	require.Equal(t, int64(100), c.DataTransferred())
	require.InDelta(t, 0.5, testutil.ToFloat64(c.compressionRatio), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(c.compressions.WithLabelValues("high")))
	require.Equal(t, 200.0, testutil.ToFloat64(c.compressedBytes.WithLabelValues("in")))

	calls, in, out := c.CompressionMetrics()
	require.Equal(t, [3]int64{2, 200, 100}, [3]int64{calls, in, out})
}

// TestCollector_LoadTimes samples successful loads only.
func TestCollector_LoadTimes(t *testing.T) {
	c := NewCollector(nil)

	c.RecordLoad(10*time.Millisecond, nil)
	c.RecordLoad(30*time.Millisecond, nil)
	c.RecordLoad(time.Second, errors.New("render failed"))

	require.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, c.LoadTimes())
	require.Equal(t, 20*time.Millisecond, c.AverageLoadTime())
	require.Equal(t, 1.0, testutil.ToFloat64(c.loads.WithLabelValues("failed")))

	loads, failures := c.LoadMetrics()
	require.Equal(t, int64(2), loads)
	require.Equal(t, int64(1), failures)
}

// TestCollector_LoadTimes_Bounded drops the oldest samples past the cap.
func TestCollector_LoadTimes_Bounded(t *testing.T) {
	c := NewCollector(nil)
	for i := 0; i < MaxLoadSamples+10; i++ {
		c.RecordLoad(time.Duration(i), nil)
	}

	samples := c.LoadTimes()
	require.Len(t, samples, MaxLoadSamples)
	require.Equal(t, time.Duration(10), samples[0])
}

// TestCollector_Reset zeroes the in-memory totals.
func TestCollector_Reset(t *testing.T) {
	c := NewCollector(nil)
	c.RecordCompression(model.CompressionLow, 10, 5)
	c.RecordLoad(time.Millisecond, nil)

	c.Reset()

	require.Zero(t, c.DataTransferred())
	require.Zero(t, c.CompressionRatio())
	require.Empty(t, c.LoadTimes())
	require.Zero(t, c.AverageLoadTime())
}

// TestCollector_CacheGauges reads cache stats on scrape.
func TestCollector_CacheGauges(t *testing.T) {
	stats := model.CacheStats{Hits: 3, Misses: 1, Size: 2, Bytes: 64}
	c := NewCollector(func() model.CacheStats { return stats })

	expected := `
# HELP ashperf_cache_hits Cache hits since the last clear.
# TYPE ashperf_cache_hits gauge
ashperf_cache_hits 3
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "ashperf_cache_hits"))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Contains(t, rec.Body.String(), "ashperf_cache_bytes 64")
}

// TestCollector_RecordEviction counts background evictions per reason.
func TestCollector_RecordEviction(t *testing.T) {
	c := NewCollector(nil)

	c.RecordEviction("expired", 3, 0)
	c.RecordEviction("soft_limit", 2, 40)
	c.RecordEviction("soft_limit", 0, 0)

	require.Equal(t, 3.0, testutil.ToFloat64(c.evictions.WithLabelValues("expired")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.evictions.WithLabelValues("soft_limit")))
	require.Equal(t, 40.0, testutil.ToFloat64(c.evictedBytes.WithLabelValues("soft_limit")))
}
