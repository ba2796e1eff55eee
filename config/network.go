package config

import "time"

const DefaultProbeTimeout = 5 * time.Second

type NetworkCfg struct {
	// ProbeURL is a small fixed-size resource fetched to estimate speed.
	// Empty disables probing (speed stays unknown).
	ProbeURL string `yaml:"probe_url"`

	// ProbeTimeout bounds a single probe. Default: 5s.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ProbeInterval enables periodic background probes when positive.
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// Initial network signals, used until the host pushes live ones.
	Type          string        `yaml:"type"`
	EffectiveType string        `yaml:"effective_type"`
	Downlink      float64       `yaml:"downlink"`
	RTT           time.Duration `yaml:"rtt"`
	SaveData      bool          `yaml:"save_data"`
}
