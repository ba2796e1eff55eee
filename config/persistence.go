package config

type PersistenceCfg struct {
	// Dir specifies the directory where cache dump files are stored.
	// It is created on the first dump.
	Dir string `yaml:"dump_dir"`

	// Name defines the base name of the cache dump file.
	// The final file name may include extensions depending on configuration
	// (e.g., ".gz" when Gzip is enabled).
	Name string `yaml:"dump_name"`

	// Gzip enables gzip compression for cache dump files.
	Gzip bool `yaml:"gzip"`

	// Crc32Control appends and verifies a checksum per dumped entry.
	Crc32Control bool `yaml:"crc32_control"`

	// MaxVersions keeps only the newest N dump directories. Zero keeps all.
	MaxVersions int `yaml:"max_versions"`

	// RestoreOnInit loads the latest dump during Initialize.
	RestoreOnInit bool `yaml:"restore_on_init"`
}

func (cfg *PersistenceCfg) Enabled() bool {
	return cfg != nil
}

// StoreCfg configures the BadgerDB mirror store.
type StoreCfg struct {
	// Dir is the BadgerDB directory. Ignored when InMemory is true.
	Dir string `yaml:"dir"`

	// InMemory keeps the store in RAM (tests, ephemeral hosts).
	InMemory bool `yaml:"in_memory"`

	// SyncWrites makes every mirror write durable before returning.
	SyncWrites bool `yaml:"sync_writes"`
}

func (cfg *StoreCfg) Enabled() bool {
	return cfg != nil
}
