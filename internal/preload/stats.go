package preload

import (
	"sync"
	"time"
)

// hitRateAlpha weights the newest lookup in the hit-rate moving average.
const hitRateAlpha = 0.1

// Stats is a snapshot of the cumulative preload counters.
type Stats struct {
	TotalAttempts  int64         `json:"total_attempts"`
	Successful     int64         `json:"successful"`
	Failed         int64         `json:"failed"`
	AvgConnectTime time.Duration `json:"avg_connect_time_ns"`
	CacheHitRate   float64       `json:"cache_hit_rate"`
}

// StatsTracker accumulates preload counters for the life of the process.
type StatsTracker struct {
	mu sync.Mutex
	s  Stats
}

// NewStatsTracker returns a tracker with zeroed counters.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// RecordSuccess counts a successful warm-up and folds d into the running
// average connect time.
func (t *StatsTracker) RecordSuccess(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.TotalAttempts++
	t.s.Successful++
	t.s.AvgConnectTime += (d - t.s.AvgConnectTime) / time.Duration(t.s.Successful)
}

// RecordFailure counts a failed or timed-out warm-up.
func (t *StatsTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.TotalAttempts++
	t.s.Failed++
}

// RecordLookup nudges the hit rate toward 1 on a hit and 0 on a miss.
func (t *StatsTracker) RecordLookup(hit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := 0.0
	if hit {
		v = 1
	}
	t.s.CacheHitRate = t.s.CacheHitRate*(1-hitRateAlpha) + v*hitRateAlpha
}

// Snapshot returns a copy of the current counters.
func (t *StatsTracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
