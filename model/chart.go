package model

import "slices"

type Series struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

type ChartOptions struct {
	DevicePixelRatio float64 `json:"devicePixelRatio"`
	Animation        bool    `json:"animation"`
}

// ChartConfig is the renderer input. The optimizer never mutates the caller's copy.
type ChartConfig struct {
	Type    string       `json:"type"`
	Series  []Series     `json:"series"`
	Options ChartOptions `json:"options"`
}

func (c ChartConfig) Clone() ChartConfig {
	out := c
	if c.Series != nil {
		out.Series = make([]Series, len(c.Series))
		for i, s := range c.Series {
			out.Series[i] = Series{Name: s.Name, Data: slices.Clone(s.Data)}
		}
	}
	return out
}

type RenderResult struct {
	Success   bool        `json:"success"`
	Config    ChartConfig `json:"config"`
	Container string      `json:"container"`
	Optimized bool        `json:"optimized"`
}
