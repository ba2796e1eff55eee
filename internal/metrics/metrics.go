package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-ash-perf/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "ashperf"

	// MaxLoadSamples bounds the in-memory load time history, oldest samples are dropped first.
	MaxLoadSamples = 1024
)

// Collector accumulates optimizer metrics. Prometheus collectors live on a
// private registry per instance, so several optimizers can coexist in one process.
// The in-memory totals back PerformanceMetrics and are zeroed by Reset;
// prometheus counters stay monotonic.
type Collector struct {
	registry *prometheus.Registry

	compressions     *prometheus.CounterVec
	compressedBytes  *prometheus.CounterVec
	compressionRatio prometheus.Gauge
	loads            *prometheus.CounterVec
	loadDuration     prometheus.Histogram
	evictions        *prometheus.CounterVec
	evictedBytes     *prometheus.CounterVec

	compressCalls atomic.Int64
	bytesIn       atomic.Int64
	bytesOut      atomic.Int64
	loadFailures  atomic.Int64

	mu        sync.Mutex
	loadTimes []time.Duration
	loadTotal int64
}

// NewCollector registers the collectors. When stats is not nil, cache counters are
// exported as gauges read on every scrape.
func NewCollector(stats func() model.CacheStats) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		compressions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compression",
				Name:      "calls_total",
				Help:      "Total number of payload compressions.",
			},
			[]string{"level"},
		),
		compressedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compression",
				Name:      "bytes_total",
				Help:      "Payload bytes before (in) and after (out) compression.",
			},
			[]string{"direction"},
		),
		compressionRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "compression",
				Name:      "ratio",
				Help:      "Cumulative share of bytes saved by compression, in [0,1].",
			},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "loads_total",
				Help:      "Total number of chart loads.",
			},
			[]string{"status"},
		),
		loadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "loader",
				Name:      "load_duration_seconds",
				Help:      "Duration of chart loads including queueing.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "evictor",
				Name:      "entries_total",
				Help:      "Entries removed by the background evictor.",
			},
			[]string{"reason"},
		),
		evictedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "evictor",
				Name:      "bytes_total",
				Help:      "Bytes released by the background evictor.",
			},
			[]string{"reason"},
		),
	}

	c.registry.MustRegister(
		c.compressions,
		c.compressedBytes,
		c.compressionRatio,
		c.loads,
		c.loadDuration,
		c.evictions,
		c.evictedBytes,
	)
	if stats != nil {
		c.registry.MustRegister(cacheGauges(stats)...)
	}
	return c
}

func cacheGauges(stats func() model.CacheStats) []prometheus.Collector {
	gauge := func(name, help string, read func(model.CacheStats) int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "cache", Name: name, Help: help},
			func() float64 { return float64(read(stats())) },
		)
	}
	return []prometheus.Collector{
		gauge("hits", "Cache hits since the last clear.", func(s model.CacheStats) int64 { return s.Hits }),
		gauge("misses", "Cache misses since the last clear.", func(s model.CacheStats) int64 { return s.Misses }),
		gauge("entries", "Live cache entries.", func(s model.CacheStats) int64 { return s.Size }),
		gauge("bytes", "Summed weight of live cache entries.", func(s model.CacheStats) int64 { return s.Bytes }),
	}
}

// RecordCompression accounts one successful compression of in bytes into out bytes.
func (c *Collector) RecordCompression(level model.CompressionLevel, in, out int) {
	c.compressCalls.Add(1)
	c.bytesIn.Add(int64(in))
	c.bytesOut.Add(int64(out))

	c.compressions.WithLabelValues(string(level)).Inc()
	c.compressedBytes.WithLabelValues("in").Add(float64(in))
	c.compressedBytes.WithLabelValues("out").Add(float64(out))
	c.compressionRatio.Set(c.CompressionRatio())
}

// RecordEviction accounts one background eviction pass. Reason is "expired" or "soft_limit".
func (c *Collector) RecordEviction(reason string, items, bytes int64) {
	if items > 0 {
		c.evictions.WithLabelValues(reason).Add(float64(items))
	}
	if bytes > 0 {
		c.evictedBytes.WithLabelValues(reason).Add(float64(bytes))
	}
}

// RecordLoad accounts one finished chart load. Failed loads are counted but not sampled.
func (c *Collector) RecordLoad(d time.Duration, err error) {
	if err != nil {
		c.loadFailures.Add(1)
		c.loads.WithLabelValues("failed").Inc()
		return
	}
	c.loads.WithLabelValues("success").Inc()
	c.loadDuration.Observe(d.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loadTimes) == MaxLoadSamples {
		copy(c.loadTimes, c.loadTimes[1:])
		c.loadTimes = c.loadTimes[:MaxLoadSamples-1]
	}
	c.loadTimes = append(c.loadTimes, d)
	c.loadTotal++
}

// DataTransferred is the number of bytes produced by compression.
func (c *Collector) DataTransferred() int64 {
	return c.bytesOut.Load()
}

// CompressionRatio is 1 - out/in over all recorded compressions, 0 before the first one.
func (c *Collector) CompressionRatio() float64 {
	in := c.bytesIn.Load()
	if in <= 0 {
		return 0
	}
	ratio := 1 - float64(c.bytesOut.Load())/float64(in)
	return min(max(ratio, 0), 1)
}

// LoadTimes returns a copy of the retained load time samples, oldest first.
func (c *Collector) LoadTimes() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.loadTimes...)
}

func (c *Collector) AverageLoadTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loadTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range c.loadTimes {
		sum += d
	}
	return sum / time.Duration(len(c.loadTimes))
}

// CompressionMetrics returns cumulative compression totals.
func (c *Collector) CompressionMetrics() (calls, in, out int64) {
	return c.compressCalls.Load(), c.bytesIn.Load(), c.bytesOut.Load()
}

// LoadMetrics returns cumulative load totals.
func (c *Collector) LoadMetrics() (loads, failures int64) {
	c.mu.Lock()
	loads = c.loadTotal
	c.mu.Unlock()
	return loads, c.loadFailures.Load()
}

// Reset zeroes the in-memory totals.
func (c *Collector) Reset() {
	c.compressCalls.Store(0)
	c.bytesIn.Store(0)
	c.bytesOut.Store(0)
	c.loadFailures.Store(0)
	c.compressionRatio.Set(0)

	c.mu.Lock()
	c.loadTimes = nil
	c.loadTotal = 0
	c.mu.Unlock()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
