package config

type LifetimerCfg struct {
	// Rate limits how many expiry scans the sweeper performs per second.
	// Example: 100.
	Rate int `yaml:"rate"`

	// Sample is the number of oldest entries inspected per scan.
	Sample int `yaml:"sample"`
}

func (cfg *LifetimerCfg) Enabled() bool {
	return cfg != nil
}
