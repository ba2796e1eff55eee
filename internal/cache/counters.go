package cache

import "sync/atomic"

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictedItems  atomic.Int64
	evictedBytes  atomic.Int64
	expiredItems  atomic.Int64
	storeFailures atomic.Int64
}

func newCounters() *counters {
	return &counters{
		hits:          atomic.Int64{},
		misses:        atomic.Int64{},
		evictedItems:  atomic.Int64{},
		evictedBytes:  atomic.Int64{},
		expiredItems:  atomic.Int64{},
		storeFailures: atomic.Int64{},
	}
}

func (c *counters) snapshot() (hits, misses, evictedItems, evictedBytes, expiredItems, storeFailures int64) {
	return c.hits.Load(), c.misses.Load(), c.evictedItems.Load(), c.evictedBytes.Load(), c.expiredItems.Load(), c.storeFailures.Load()
}

func (c *counters) resetReads() {
	c.hits.Store(0)
	c.misses.Store(0)
}
