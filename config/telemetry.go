package config

import "time"

type TelemetryCfg struct {
	// Enabled turns on periodic stat logs.
	Enabled bool `yaml:"enabled"`

	// Interval between two stat log lines. Default: 5s.
	Interval time.Duration `yaml:"interval"`
}
