package prediction

import (
	"sort"
	"time"

	"github.com/runnerr0/foresight/internal/storage"
)

// Category thresholds, checked in this order; the first match wins.
const (
	recentThreshold     = 0.8
	contextualThreshold = 0.6
	timeBasedThreshold  = 0.7
	similarThreshold    = 0.5
)

// categorize assigns a single category and reason to a scored record.
func categorize(f factors, rec storage.HistoryRecord, pctx Context) (Category, string) {
	switch {
	case f.recency > recentThreshold:
		return CategoryRecent, "Visited recently"
	case f.contextual > contextualThreshold:
		return CategoryContextual, "Relevant to what you are doing now"
	case f.timePattern > timeBasedThreshold:
		return CategoryTimeBased, "You usually visit this around this time"
	case pctx.SearchQuery != "" && rec.SearchQuery != "":
		return CategorySearchRelated, "Related to your search"
	case f.similarity > similarThreshold:
		return CategorySimilarContent, "Similar to the current page"
	default:
		return CategoryFrequent, "Frequently visited"
	}
}

// maxVisitCount returns the largest visit count in the batch.
func maxVisitCount(records []storage.HistoryRecord) int {
	m := 0
	for _, r := range records {
		if r.VisitCount > m {
			m = r.VisitCount
		}
	}
	return m
}

// rank scores, filters, sorts and truncates records. The current URL is
// never ranked. Ties keep history order.
func rank(records []storage.HistoryRecord, pctx Context, opts Options, now time.Time) []Prediction {
	opts = opts.normalize()
	maxVisits := maxVisitCount(records)

	out := make([]Prediction, 0, len(records))
	for _, rec := range records {
		if pctx.CurrentURL != "" && rec.URL == pctx.CurrentURL {
			continue
		}

		f := scoreRecord(rec, pctx, now, maxVisits)
		confidence := f.confidence()
		if confidence < opts.MinConfidence {
			continue
		}

		category, reason := categorize(f, rec, pctx)
		if !opts.allows(category) {
			continue
		}

		p := Prediction{
			URL:        rec.URL,
			Title:      rec.Title,
			Domain:     recordDomain(rec),
			Confidence: confidence,
			Reason:     reason,
			Category:   category,
		}
		if opts.IncludeMetadata {
			p.Metadata = &Metadata{
				VisitCount:          rec.VisitCount,
				LastVisited:         rec.VisitedAt,
				AvgTimeSpent:        rec.TimeSpent,
				EngagementScore:     f.engagement,
				TimeOfDayMatch:      f.hourMatch,
				DayOfWeekMatch:      f.dayMatch,
				ContextualRelevance: f.contextual,
			}
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	if len(out) > opts.MaxPredictions {
		out = out[:opts.MaxPredictions]
	}
	return out
}
