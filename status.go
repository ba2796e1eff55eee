package ashperf

import "github.com/Borislavv/go-ash-perf/model"

// PerformanceMetrics returns a snapshot of accumulated metrics with the
// current device, network and settings.
func (o *Optimizer) PerformanceMetrics() model.Metrics {
	return model.Metrics{
		DataTransferred:     o.collector.DataTransferred(),
		CompressionRatio:    o.collector.CompressionRatio(),
		LoadTimes:           o.collector.LoadTimes(),
		CacheStats:          o.cache.Stats(),
		NetworkInfo:         o.opts.network.Snapshot(),
		DeviceInfo:          *o.profile.Load(),
		PerformanceSettings: o.Settings(),
	}
}

func (o *Optimizer) OptimizationStatus() model.Status {
	s := o.Settings()
	return model.Status{
		IsOptimized:               o.initialized.Load(),
		CompressionEnabled:        s.EnableDataCompression,
		ProgressiveLoadingEnabled: s.EnableProgressiveLoading,
		CachingEnabled:            s.EnableMobileCaching,
		NetworkAware:              s.EnableNetworkAwareness,
		CacheHitRate:              o.cache.HitRate(),
		CompressionRatio:          o.collector.CompressionRatio(),
		AverageLoadTime:           o.collector.AverageLoadTime(),
	}
}
