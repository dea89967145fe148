package preload

import "math"

const (
	lowHitRate         = 0.2
	minSampleAttempts  = 10
	thresholdStep      = 0.2
	maxThresholdAdvice = 0.9
)

// Recommendation is a suggested settings change.
type Recommendation struct {
	Setting string `json:"setting"`
	Value   any    `json:"value"`
	Reason  string `json:"reason"`
}

// Recommend derives settings advice from the network status and counters.
// It has no side effects.
func Recommend(status NetworkStatus, s Settings, stats Stats) []Recommendation {
	recs := []Recommendation{}

	if status.Metered && s.Enabled {
		recs = append(recs, Recommendation{
			Setting: "enabled",
			Value:   false,
			Reason:  "Network is metered; preloading spends data you may be paying for",
		})
	}
	if status.Mobile && !s.WiFiOnly {
		recs = append(recs, Recommendation{
			Setting: "wifi_only",
			Value:   true,
			Reason:  "Mobile device detected; restrict preloading to unrestricted networks",
		})
	}
	if stats.TotalAttempts > minSampleAttempts && stats.CacheHitRate < lowHitRate {
		next := math.Min(s.MinConfidence+thresholdStep, maxThresholdAdvice)
		recs = append(recs, Recommendation{
			Setting: "min_confidence",
			Value:   math.Round(next*100) / 100,
			Reason:  "Few preloaded connections are used; only warm higher-confidence predictions",
		})
	}
	return recs
}
