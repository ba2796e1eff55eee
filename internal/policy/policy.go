// Package policy derives PerformanceSettings from device and network snapshots.
// Rules run as an ordered pipeline, later rules override earlier ones.
package policy

import (
	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/model"
)

const (
	lowMemoryBytes = 1_000_000_000
	minCores       = 4

	defaultCacheSize  = 50 * model.MiB
	handheldCacheSize = 25 * model.MiB
	weakCacheSize     = 10 * model.MiB
)

// Recompute runs the whole pipeline (rules 1-5).
func Recompute(features *config.FeaturesCfg, device model.DeviceProfile, network model.NetworkState) model.PerformanceSettings {
	if features == nil {
		features = config.AllFeatures()
	}

	// 1. defaults
	s := model.PerformanceSettings{
		EnableDataCompression:    features.DataCompression,
		EnableProgressiveLoading: true,
		EnableMobileCaching:      features.MobileCaching,
		EnableNetworkAwareness:   features.NetworkAwareness,
		CompressionLevel:         model.CompressionMedium,
		ImageQuality:             0.8,
		MaxCacheSize:             defaultCacheSize,
		NetworkThrottleThreshold: features.NetworkThrottleThreshold,
	}

	// 2. handheld
	if device.IsHandheld() {
		s.CompressionLevel = model.CompressionHigh
		s.ImageQuality = 0.7
		s.MaxCacheSize = handheldCacheSize
	}

	// 3. weak hardware; unknown values never trigger it
	if isLowMemory(device) || (device.Cores > 0 && device.Cores < minCores) {
		s.CompressionLevel = model.CompressionMaximum
		s.ImageQuality = 0.6
		s.MaxCacheSize = weakCacheSize
	}

	return ApplyNetwork(features, s, network)
}

// ApplyNetwork re-applies only the network rules (4-5) on top of current settings.
// A disabled progressive-loading toggle overrides rule 4.
func ApplyNetwork(features *config.FeaturesCfg, s model.PerformanceSettings, network model.NetworkState) model.PerformanceSettings {
	if features == nil {
		features = config.AllFeatures()
	}

	// 4. slow or data saving
	if network.IsSlow() || network.SaveData {
		s.CompressionLevel = model.CompressionMaximum
		s.ImageQuality = 0.5
		s.EnableProgressiveLoading = true
	}

	// 5. fast
	if network.EffectiveType == model.EffectiveType4G && !network.SaveData {
		s.CompressionLevel = model.CompressionMedium
		s.ImageQuality = 0.8
	}

	if !features.ProgressiveLoading {
		s.EnableProgressiveLoading = false
	}
	return s
}

func isLowMemory(d model.DeviceProfile) bool {
	return d.Memory != nil && *d.Memory < lowMemoryBytes
}
