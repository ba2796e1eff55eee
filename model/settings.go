package model

import "fmt"

type CompressionLevel string

const (
	CompressionLow     CompressionLevel = "low"
	CompressionMedium  CompressionLevel = "medium"
	CompressionHigh    CompressionLevel = "high"
	CompressionMaximum CompressionLevel = "maximum"
)

func (l CompressionLevel) Valid() bool {
	switch l {
	case CompressionLow, CompressionMedium, CompressionHigh, CompressionMaximum:
		return true
	}
	return false
}

const (
	KiB int64 = 1 << 10
	MiB       = KiB << 10
)

// PerformanceSettings is the single mutable policy output read by the
// compressor, the scheduler and the cache.
type PerformanceSettings struct {
	EnableDataCompression    bool             `json:"enableDataCompression"`
	EnableProgressiveLoading bool             `json:"enableProgressiveLoading"`
	EnableMobileCaching      bool             `json:"enableMobileCaching"`
	EnableNetworkAwareness   bool             `json:"enableNetworkAwareness"`
	CompressionLevel         CompressionLevel `json:"compressionLevel"`
	ImageQuality             float64          `json:"imageQuality"`
	MaxCacheSize             int64            `json:"maxCacheSize"`
	NetworkThrottleThreshold float64          `json:"networkThrottleThreshold"`
}

// Validate checks the invariants: ImageQuality in (0,1], a known level and a positive cache size.
func (s PerformanceSettings) Validate() error {
	if !s.CompressionLevel.Valid() {
		return fmt.Errorf("unknown compression level %q", s.CompressionLevel)
	}
	if s.ImageQuality <= 0 || s.ImageQuality > 1 {
		return fmt.Errorf("image quality %v out of (0,1]", s.ImageQuality)
	}
	if s.MaxCacheSize <= 0 {
		return fmt.Errorf("max cache size %d must be positive", s.MaxCacheSize)
	}
	return nil
}
