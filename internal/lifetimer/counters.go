package lifetimer

import "sync/atomic"

type lifetimerCounters struct {
	swept      atomic.Int64 // expired entries removed by the sweeper
	scans      atomic.Int64 // total scans number
	scanHits   atomic.Int64 // scans which found at least one expired entry
	scanMisses atomic.Int64 // scans which found nothing
}

func newLifetimerCounters() *lifetimerCounters {
	return &lifetimerCounters{}
}

func (c *lifetimerCounters) snapshot() (swept, scans, hits, misses int64) {
	return c.swept.Load(), c.scans.Load(), c.scanHits.Load(), c.scanMisses.Load()
}
