package model

import "time"

type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	// Size is the number of live entries.
	Size int64 `json:"size"`
	// Bytes is the summed weight of live entries.
	Bytes int64 `json:"bytes"`
}

// HitRate is hits / (hits + misses), 0 when nothing was read yet.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total <= 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type Metrics struct {
	DataTransferred     int64               `json:"dataTransferred"`
	CompressionRatio    float64             `json:"compressionRatio"`
	LoadTimes           []time.Duration     `json:"loadTimes"`
	CacheStats          CacheStats          `json:"cacheStats"`
	NetworkInfo         NetworkState        `json:"networkInfo"`
	DeviceInfo          DeviceProfile       `json:"deviceInfo"`
	PerformanceSettings PerformanceSettings `json:"performanceSettings"`
}

type Status struct {
	IsOptimized               bool          `json:"isOptimized"`
	CompressionEnabled        bool          `json:"compressionEnabled"`
	ProgressiveLoadingEnabled bool          `json:"progressiveLoadingEnabled"`
	CachingEnabled            bool          `json:"cachingEnabled"`
	NetworkAware              bool          `json:"networkAware"`
	CacheHitRate              float64       `json:"cacheHitRate"`
	CompressionRatio          float64       `json:"compressionRatio"`
	AverageLoadTime           time.Duration `json:"averageLoadTime"`
}
