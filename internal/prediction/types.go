// Package prediction ranks history records into next-navigation predictions.
//
// Six independent factor scores (frequency, recency, engagement, time
// pattern, contextual relevance, content similarity) are combined with fixed
// weights into a confidence value. Each prediction carries a single category
// and a human-readable reason. Results are cached per normalized context.
package prediction

import (
	"math"
	"net/url"
	"strings"
	"time"
)

// Category labels why a URL was predicted.
type Category string

const (
	CategoryFrequent       Category = "frequent"
	CategoryRecent         Category = "recent"
	CategoryContextual     Category = "contextual"
	CategoryTimeBased      Category = "time-based"
	CategorySearchRelated  Category = "search-related"
	CategorySimilarContent Category = "similar-content"
)

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryFrequent, CategoryRecent, CategoryContextual,
		CategoryTimeBased, CategorySearchRelated, CategorySimilarContent:
		return c, true
	}
	return "", false
}

// Intent is the caller's guess at what the user is doing.
type Intent string

const (
	IntentBrowsing      Intent = "browsing"
	IntentSearching     Intent = "searching"
	IntentWorking       Intent = "working"
	IntentEntertainment Intent = "entertainment"
)

// Context describes the moment a prediction is requested for. It is treated
// as immutable for the duration of a call.
type Context struct {
	CurrentURL    string
	CurrentDomain string
	Now           time.Time // zero means the engine clock
	SearchQuery   string
	TabCount      int
	RecentURLs    []string
	Intent        Intent
	Topics        []string
}

// domain returns CurrentDomain, falling back to the host of CurrentURL.
func (c Context) domain() string {
	if c.CurrentDomain != "" {
		return strings.ToLower(c.CurrentDomain)
	}
	return hostOf(c.CurrentURL)
}

// Options tune a single prediction call. Start from DefaultOptions.
type Options struct {
	MaxPredictions  int
	MinConfidence   float64
	Categories      []Category // empty allows every category
	TimeWindow      time.Duration
	IncludeMetadata bool
}

const (
	defaultMaxPredictions = 10
	defaultMinConfidence  = 0.1
	defaultTimeWindow     = 30 * 24 * time.Hour
)

// DefaultOptions returns max=10, minConfidence=0.1, a 30 day window and metadata on.
func DefaultOptions() Options {
	return Options{
		MaxPredictions:  defaultMaxPredictions,
		MinConfidence:   defaultMinConfidence,
		TimeWindow:      defaultTimeWindow,
		IncludeMetadata: true,
	}
}

// normalize fills non-positive sizes with defaults and clamps MinConfidence.
func (o Options) normalize() Options {
	if o.MaxPredictions <= 0 {
		o.MaxPredictions = defaultMaxPredictions
	}
	if o.TimeWindow <= 0 {
		o.TimeWindow = defaultTimeWindow
	}
	o.MinConfidence = clamp01(o.MinConfidence)
	return o
}

func (o Options) allows(c Category) bool {
	if len(o.Categories) == 0 {
		return true
	}
	for _, allowed := range o.Categories {
		if allowed == c {
			return true
		}
	}
	return false
}

// Prediction is one ranked candidate for the next navigation.
type Prediction struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Domain     string    `json:"domain"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Category   Category  `json:"category"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// Metadata explains the factors behind a prediction.
type Metadata struct {
	VisitCount          int           `json:"visit_count"`
	LastVisited         time.Time     `json:"last_visited"`
	AvgTimeSpent        time.Duration `json:"avg_time_spent,omitempty"`
	EngagementScore     float64       `json:"engagement_score"`
	TimeOfDayMatch      bool          `json:"time_of_day_match"`
	DayOfWeekMatch      bool          `json:"day_of_week_match"`
	ContextualRelevance float64       `json:"contextual_relevance"`
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
