package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Optimizer groups configuration of all optimizer subsystems.
// Optional components are disabled by leaving them nil.
type Optimizer struct {
	// Features toggles the four optimization families.
	// If nil, every feature is enabled.
	Features *FeaturesCfg `yaml:"features"`

	Cache CacheCfg `yaml:"cache"`

	// Eviction configures the soft-limit background evictor.
	// The hard limit (PerformanceSettings.MaxCacheSize) is always enforced on put.
	// If nil, only the hard limit applies.
	Eviction *EvictionCfg `yaml:"eviction"`

	// Lifetime configures the background sweeper of expired entries.
	// If nil, expired entries are only dropped lazily on read.
	Lifetime *LifetimerCfg `yaml:"lifetime"`

	Scheduler SchedulerCfg `yaml:"scheduler"`
	Network   NetworkCfg   `yaml:"network"`
	Device    DeviceCfg    `yaml:"device"`

	// Persistence configures cache dumps. If nil, dumps are disabled.
	Persistence *PersistenceCfg `yaml:"persistence"`

	// Store configures the mirror key-value store. If nil, and no store
	// was injected, the cache is memory only.
	Store *StoreCfg `yaml:"store"`

	Telemetry TelemetryCfg `yaml:"telemetry"`
}

// Default returns a configuration with the expiry sweeper enabled. Soft-limit
// eviction, persistence and the on-disk store are opt-in, so live entries are
// only evicted by a put that would overflow MaxCacheSize.
func Default() *Optimizer {
	cfg := &Optimizer{
		Cache:    CacheCfg{DefaultTTL: 5 * time.Minute},
		Lifetime: &LifetimerCfg{Rate: 100, Sample: 32},
		Network: NetworkCfg{
			ProbeTimeout: DefaultProbeTimeout,
		},
		Telemetry: TelemetryCfg{Interval: 5 * time.Second},
	}
	cfg.AdjustConfig()
	return cfg
}

func (cfg *Optimizer) AdjustConfig() {
	if cfg.Features == nil {
		cfg.Features = AllFeatures()
	}

	if cfg.Cache.DefaultTTL <= 0 {
		cfg.Cache.DefaultTTL = 5 * time.Minute
	}

	if cfg.Eviction.Enabled() {
		if cfg.Eviction.SoftLimitCoefficient <= 0 || cfg.Eviction.SoftLimitCoefficient > 1 {
			cfg.Eviction.SoftLimitCoefficient = 1
		}
	}

	if cfg.Lifetime.Enabled() {
		if cfg.Lifetime.Rate <= 0 {
			cfg.Lifetime.Rate = 1
		}
		if cfg.Lifetime.Sample <= 0 {
			cfg.Lifetime.Sample = 32
		}
	}

	if cfg.Network.ProbeTimeout <= 0 {
		cfg.Network.ProbeTimeout = DefaultProbeTimeout
	}

	if cfg.Persistence.Enabled() {
		if cfg.Persistence.Name == "" {
			cfg.Persistence.Name = "cache"
		}
	}

	if cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = 5 * time.Second
	}
}

func LoadConfig(path string) (*Optimizer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Optimizer
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &Optimizer{}
	}
	cfg.AdjustConfig()

	return cfg, nil
}
