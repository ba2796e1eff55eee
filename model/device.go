package model

type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// DeviceProfile is a one-shot snapshot of device capability.
// It is taken once during initialization and never mutated.
type DeviceProfile struct {
	IsMobile     bool    `json:"isMobile"`
	IsTablet     bool    `json:"isTablet"`
	IsTouch      bool    `json:"isTouch"`
	PixelRatio   float64 `json:"pixelRatio"`
	ScreenSize   Size    `json:"screenSize"`
	ViewportSize Size    `json:"viewportSize"`
	// Memory is the total memory in bytes, nil when the host cannot tell.
	Memory *uint64 `json:"memory,omitempty"`
	Cores  int     `json:"cores"`
}

// IsHandheld reports whether the device is a phone or a tablet.
func (d DeviceProfile) IsHandheld() bool { return d.IsMobile || d.IsTablet }
