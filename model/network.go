package model

import "time"

type Speed string

const (
	SpeedUnknown Speed = "unknown"
	SpeedFast    Speed = "fast"
	SpeedMedium  Speed = "medium"
	SpeedSlow    Speed = "slow"
)

const (
	EffectiveTypeSlow2G  = "slow-2g"
	EffectiveType2G      = "2g"
	EffectiveType3G      = "3g"
	EffectiveType4G      = "4g"
	EffectiveTypeUnknown = "unknown"
)

// NetworkState is the current network quality as observed by the host.
// It is replaced wholesale on every change or probe.
type NetworkState struct {
	Type           string        `json:"type"`
	EffectiveType  string        `json:"effectiveType"`
	Downlink       float64       `json:"downlink"`
	RTT            time.Duration `json:"rtt"`
	SaveData       bool          `json:"saveData"`
	EstimatedSpeed Speed         `json:"estimatedSpeed,omitempty"`
}

// Normalize fills absent signals with unknown defaults.
func (n NetworkState) Normalize() NetworkState {
	if n.Type == "" {
		n.Type = EffectiveTypeUnknown
	}
	if n.EffectiveType == "" {
		n.EffectiveType = EffectiveTypeUnknown
	}
	if n.EstimatedSpeed == "" {
		n.EstimatedSpeed = SpeedUnknown
	}
	if n.Downlink < 0 {
		n.Downlink = 0
	}
	if n.RTT < 0 {
		n.RTT = 0
	}
	return n
}

// IsSlow reports slow-2g, 2g and 3g connections.
func (n NetworkState) IsSlow() bool {
	switch n.EffectiveType {
	case EffectiveTypeSlow2G, EffectiveType2G, EffectiveType3G:
		return true
	}
	return false
}

// IsVerySlow reports slow-2g and 2g connections.
func (n NetworkState) IsVerySlow() bool {
	return n.EffectiveType == EffectiveTypeSlow2G || n.EffectiveType == EffectiveType2G
}
