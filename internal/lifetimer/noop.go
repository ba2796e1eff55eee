package lifetimer

// NoOpLifetimer is used when background expiry is disabled.
// Expired entries are then dropped lazily on read.
type NoOpLifetimer struct{}

func (NoOpLifetimer) LifetimerMetrics() (swept, scans, hits, misses int64) {
	return 0, 0, 0, 0
}

func (NoOpLifetimer) Close() error {
	return nil
}
