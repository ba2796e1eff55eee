package config

import "time"

type CacheCfg struct {
	// DefaultTTL applies to puts that pass a zero TTL.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// DisablePayloadCompression stores payloads as serialized, skipping zstd.
	DisablePayloadCompression bool `yaml:"disable_payload_compression"`
}
