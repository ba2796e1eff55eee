package scheduler

import "sync/atomic"

type counters struct {
	submitted atomic.Int64
	rendered  atomic.Int64
	failed    atomic.Int64
	batches   atomic.Int64
}

func (c *counters) snapshot() (submitted, rendered, failed, batches int64) {
	return c.submitted.Load(), c.rendered.Load(), c.failed.Load(), c.batches.Load()
}
