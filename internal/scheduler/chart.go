package scheduler

import "github.com/Borislavv/go-ash-perf/model"

const (
	maxSeriesPoints    = 50
	mobileSampleRatio  = 0.7
	desktopSampleRatio = 0.9
)

// OptimizeChart returns a copy of cfg tuned for the device and network.
// Long series are downsampled, the pixel ratio is capped by image quality
// and animation is turned off on very slow links.
func OptimizeChart(
	cfg model.ChartConfig,
	device model.DeviceProfile,
	network model.NetworkState,
	settings model.PerformanceSettings,
) model.ChartConfig {
	out := cfg.Clone()

	ratio := desktopSampleRatio
	if device.IsMobile {
		ratio = mobileSampleRatio
	}
	for i := range out.Series {
		if len(out.Series[i].Data) > maxSeriesPoints {
			out.Series[i].Data = sample(out.Series[i].Data, ratio)
		}
	}

	dpr := out.Options.DevicePixelRatio
	if dpr <= 0 {
		dpr = device.PixelRatio
	}
	out.Options.DevicePixelRatio = min(dpr, settings.ImageQuality*2)

	if network.IsVerySlow() {
		out.Options.Animation = false
	}
	return out
}

// sample keeps ratio*len(data) points picked at a fixed stride, first point included.
func sample(data []float64, ratio float64) []float64 {
	n := len(data)
	keep := max(1, int(float64(n)*ratio))
	if keep >= n {
		return data
	}
	out := make([]float64, keep)
	for i := range out {
		out[i] = data[i*n/keep]
	}
	return out
}
