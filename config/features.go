package config

// FeaturesCfg switches optimization families on or off.
// The adaptation policy copies these flags into PerformanceSettings.
type FeaturesCfg struct {
	DataCompression    bool `yaml:"data_compression"`
	ProgressiveLoading bool `yaml:"progressive_loading"`
	MobileCaching      bool `yaml:"mobile_caching"`
	NetworkAwareness   bool `yaml:"network_awareness"`

	// NetworkThrottleThreshold is the downlink (Mbit/s) below which the host
	// should consider throttling refreshes. Reported as is.
	NetworkThrottleThreshold float64 `yaml:"network_throttle_threshold"`
}

func AllFeatures() *FeaturesCfg {
	return &FeaturesCfg{
		DataCompression:          true,
		ProgressiveLoading:       true,
		MobileCaching:            true,
		NetworkAwareness:         true,
		NetworkThrottleThreshold: 1.5,
	}
}
