package config

type EvictionCfg struct {
	// SoftLimitCoefficient defines the soft memory usage threshold as a fraction of
	// PerformanceSettings.MaxCacheSize. When usage exceeds it, the background evictor
	// trims the oldest entries.
	//
	// Example:
	//   SoftLimitCoefficient: 0.80 // start evicting after reaching 80% of MaxCacheSize
	SoftLimitCoefficient float64 `yaml:"soft_limit_coefficient"`

	// CallsPerSec defines how many soft-limit checks the evictor performs per second.
	CallsPerSec int64 `yaml:"calls_per_sec"`

	// BackoffSpinsPerCall caps the number of entries removed during a single eviction call.
	BackoffSpinsPerCall int64 `yaml:"backoff_spins_per_call"`
}

func (cfg *EvictionCfg) Enabled() bool {
	return cfg != nil
}
