package config

// DeviceCfg carries form-factor hints the runtime cannot detect by itself.
// Memory and core count are always read from the host.
type DeviceCfg struct {
	UserAgent  string  `yaml:"user_agent"`
	Touch      bool    `yaml:"touch"`
	PixelRatio float64 `yaml:"pixel_ratio"`

	ScreenWidth    int `yaml:"screen_width"`
	ScreenHeight   int `yaml:"screen_height"`
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}
