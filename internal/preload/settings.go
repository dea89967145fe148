// Package preload warms network connections to predicted URLs ahead of
// navigation. Work is bounded in concurrency, gated by consent and network
// policy, and cut off by per-call deadlines.
package preload

import (
	"context"

	"github.com/runnerr0/foresight/internal/config"
)

// maxConcurrentWarmups caps warm-up tasks per call regardless of settings.
const maxConcurrentWarmups = 3

// Settings is the user-facing preload policy, read once per call.
type Settings struct {
	Enabled        bool    `json:"enabled"`
	Consent        bool    `json:"consent"`
	WiFiOnly       bool    `json:"wifi_only"`
	MinConfidence  float64 `json:"min_confidence"`
	MaxConnections int     `json:"max_connections"`
}

// DefaultSettings returns the built-in policy. Consent is off until the user
// opts in.
func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		Consent:        false,
		WiFiOnly:       false,
		MinConfidence:  0.3,
		MaxConnections: maxConcurrentWarmups,
	}
}

// SettingsFromConfig builds Settings from the preloading config section.
func SettingsFromConfig(c config.PreloadingConfig) Settings {
	return Settings{
		Enabled:        c.Enabled,
		Consent:        c.Consent,
		WiFiOnly:       c.WiFiOnly,
		MinConfidence:  c.MinConfidence,
		MaxConnections: c.MaxConnections,
	}
}

// connectionLimit is the number of URLs one call may warm.
func (s Settings) connectionLimit() int {
	if s.MaxConnections < maxConcurrentWarmups {
		return max(s.MaxConnections, 0)
	}
	return maxConcurrentWarmups
}

// NetworkStatus is a best-effort description of the active network.
type NetworkStatus struct {
	Metered      bool `json:"metered"`      // save-data or 2G-class link
	Unrestricted bool `json:"unrestricted"` // wifi-like
	Mobile       bool `json:"mobile"`
}

// NetworkSensor reports the current network status.
type NetworkSensor interface {
	NetworkStatus(ctx context.Context) (NetworkStatus, error)
}

// unknownNetwork is assumed when no sensor is wired or it fails.
var unknownNetwork = NetworkStatus{Metered: false, Unrestricted: true}

// StaticSensor reports a fixed status, typically taken from config.
type StaticSensor struct {
	Status NetworkStatus
}

// NewStaticSensor builds a sensor from the preloading config section.
func NewStaticSensor(c config.PreloadingConfig) *StaticSensor {
	return &StaticSensor{Status: NetworkStatus{
		Metered:      c.Metered,
		Unrestricted: c.Unrestricted,
		Mobile:       c.Mobile,
	}}
}

// NetworkStatus returns the configured status.
func (s *StaticSensor) NetworkStatus(context.Context) (NetworkStatus, error) {
	return s.Status, nil
}
