package config

import "time"

type SchedulerCfg struct {
	// BatchSize overrides the device derived batch size (2 on mobile, 5 otherwise).
	// Zero keeps the derived value.
	BatchSize int `yaml:"batch_size"`

	// BatchDelay overrides the network derived pause between batches
	// (1s on slow-2g, 500ms otherwise). Nil keeps the derived value.
	BatchDelay *time.Duration `yaml:"batch_delay"`
}
