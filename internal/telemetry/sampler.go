package telemetry

import (
	"github.com/Borislavv/go-ash-perf/internal/cache"
	"github.com/Borislavv/go-ash-perf/internal/evictor"
	"github.com/Borislavv/go-ash-perf/internal/lifetimer"
)

type SchedulerSource interface {
	SchedulerMetrics() (submitted, rendered, failed, batches int64)
}

type CollectorSource interface {
	CompressionMetrics() (calls, in, out int64)
	LoadMetrics() (loads, failures int64)
}

type sampler struct {
	cache     cache.Cacher
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
	scheduler SchedulerSource
	collector CollectorSource
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	hits          uint64
	misses        uint64
	evictedItems  uint64
	evictedBytes  uint64
	expiredItems  uint64
	storeFailures uint64

	softScans        uint64
	softHits         uint64
	softEvictedItems uint64
	softEvictedBytes uint64

	lifetimeSwept  uint64
	lifetimeScans  uint64
	lifetimeHits   uint64
	lifetimeMisses uint64

	submitted uint64
	rendered  uint64
	failed    uint64
	batches   uint64

	loads        uint64
	loadFailures uint64

	compressions  uint64
	compressedIn  uint64
	compressedOut uint64
}

func (s sampler) snapshot() snapshot {
	hits, misses, evictedItems, evictedBytes, expired, storeFailures := s.cache.CacheMetrics()
	softScans, softHits, softItems, softBytes := s.evictor.EvictorMetrics()
	swept, scans, ltHits, ltMisses := s.lifetimer.LifetimerMetrics()
	submitted, rendered, failed, batches := s.scheduler.SchedulerMetrics()
	calls, in, out := s.collector.CompressionMetrics()
	loads, loadFailures := s.collector.LoadMetrics()

	return snapshot{
		hits:          u(hits),
		misses:        u(misses),
		evictedItems:  u(evictedItems),
		evictedBytes:  u(evictedBytes),
		expiredItems:  u(expired),
		storeFailures: u(storeFailures),

		softScans:        u(softScans),
		softHits:         u(softHits),
		softEvictedItems: u(softItems),
		softEvictedBytes: u(softBytes),

		lifetimeSwept:  u(swept),
		lifetimeScans:  u(scans),
		lifetimeHits:   u(ltHits),
		lifetimeMisses: u(ltMisses),

		submitted: u(submitted),
		rendered:  u(rendered),
		failed:    u(failed),
		batches:   u(batches),

		loads:        u(loads),
		loadFailures: u(loadFailures),

		compressions:  u(calls),
		compressedIn:  u(in),
		compressedOut: u(out),
	}
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:          delta(prev.hits, cur.hits),
		misses:        delta(prev.misses, cur.misses),
		evictedItems:  delta(prev.evictedItems, cur.evictedItems),
		evictedBytes:  delta(prev.evictedBytes, cur.evictedBytes),
		expiredItems:  delta(prev.expiredItems, cur.expiredItems),
		storeFailures: delta(prev.storeFailures, cur.storeFailures),

		softScans:        delta(prev.softScans, cur.softScans),
		softHits:         delta(prev.softHits, cur.softHits),
		softEvictedItems: delta(prev.softEvictedItems, cur.softEvictedItems),
		softEvictedBytes: delta(prev.softEvictedBytes, cur.softEvictedBytes),

		lifetimeSwept:  delta(prev.lifetimeSwept, cur.lifetimeSwept),
		lifetimeScans:  delta(prev.lifetimeScans, cur.lifetimeScans),
		lifetimeHits:   delta(prev.lifetimeHits, cur.lifetimeHits),
		lifetimeMisses: delta(prev.lifetimeMisses, cur.lifetimeMisses),

		submitted: delta(prev.submitted, cur.submitted),
		rendered:  delta(prev.rendered, cur.rendered),
		failed:    delta(prev.failed, cur.failed),
		batches:   delta(prev.batches, cur.batches),

		loads:        delta(prev.loads, cur.loads),
		loadFailures: delta(prev.loadFailures, cur.loadFailures),

		compressions:  delta(prev.compressions, cur.compressions),
		compressedIn:  delta(prev.compressedIn, cur.compressedIn),
		compressedOut: delta(prev.compressedOut, cur.compressedOut),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}

func u(v int64) uint64 { return uint64(max(v, 0)) }
