package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TimePattern records when a page is habitually visited.
type TimePattern struct {
	Hour    int          // 0-23
	Weekday time.Weekday // Sunday = 0
}

// HistoryRecord is one URL's aggregated visit history.
type HistoryRecord struct {
	ID          string
	URL         string
	Title       string
	Domain      string
	VisitedAt   time.Time // most recent visit
	VisitCount  int
	Engagement  *float64 // 0-100, nil when never measured
	TimePattern *TimePattern
	TimeSpent   time.Duration // average dwell time, 0 when unknown
	SearchQuery string        // query that led to the page, if any
	TabCount    int           // open tabs at visit time
	Topics      []string
}

// Visit is a single navigation reported to the store.
type Visit struct {
	URL         string
	Title       string
	Timestamp   time.Time
	Engagement  *float64
	TimeSpent   time.Duration
	SearchQuery string
	TabCount    int
	Topics      []string
}

// HistoryQuery bounds a history read.
type HistoryQuery struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Feedback is a user report on whether a prediction was useful.
type Feedback struct {
	ID        string
	URL       string
	Useful    bool
	Timestamp time.Time
}

// BehaviorSummary is the derived browsing pattern used to warm prediction caches.
type BehaviorSummary struct {
	TopDomains  []DomainCount `json:"top_domains"`
	PeakHours   []int         `json:"peak_hours"`
	TotalVisits int64         `json:"total_visits"`
	ComputedAt  time.Time     `json:"computed_at"`
}

// Stats holds aggregate statistics about the history database.
type Stats struct {
	TotalURLs      int64
	TotalVisits    int64
	TotalFeedback  int64
	UsefulFeedback int64
	OldestVisit    time.Time
	NewestVisit    time.Time
	TopDomains     []DomainCount
}

// DomainCount pairs a domain with its visit count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}
