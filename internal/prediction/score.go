package prediction

import (
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/runnerr0/foresight/internal/storage"
)

const (
	// recencyDecayDays is the time constant of the recency decay: exp(-days/7).
	recencyDecayDays = 7.0

	// neutralScore is used when a record carries no signal for a factor.
	neutralScore = 0.5

	// hourWindow is how far (in hours, wrapping at midnight) a visit pattern
	// may sit from the current hour and still count as a time match.
	hourWindow = 2

	// manyTabs is the tab count above which a session counts as "busy".
	manyTabs = 5
)

// Factor weights. They sum to 1 so confidence stays within [0,1].
const (
	frequencyWeight   = 0.25
	recencyWeight     = 0.20
	engagementWeight  = 0.15
	timePatternWeight = 0.15
	contextualWeight  = 0.15
	similarityWeight  = 0.10
)

// factors holds the six normalized scores for one record.
type factors struct {
	frequency   float64
	recency     float64
	engagement  float64
	timePattern float64
	contextual  float64
	similarity  float64

	hourMatch bool
	dayMatch  bool
}

func (f factors) confidence() float64 {
	c := f.frequency*frequencyWeight +
		f.recency*recencyWeight +
		f.engagement*engagementWeight +
		f.timePattern*timePatternWeight +
		f.contextual*contextualWeight +
		f.similarity*similarityWeight
	return clamp01(c)
}

// scoreRecord evaluates every factor for rec.
func scoreRecord(rec storage.HistoryRecord, pctx Context, now time.Time, maxVisits int) factors {
	f := factors{
		frequency:  frequencyScore(rec.VisitCount, maxVisits),
		recency:    recencyScore(rec.VisitedAt, now),
		engagement: engagementScore(rec.Engagement),
		contextual: contextualScore(rec, pctx),
		similarity: similarityScore(rec, pctx),
	}
	f.timePattern, f.hourMatch, f.dayMatch = timePatternScore(rec.TimePattern, now)
	return f
}

// frequencyScore is the record's visit count relative to the batch maximum.
func frequencyScore(visits, maxVisits int) float64 {
	if maxVisits <= 0 || visits <= 0 {
		return 0
	}
	return clamp01(float64(visits) / float64(maxVisits))
}

// recencyScore decays exponentially with days since the last visit.
// Visits stamped in the future count as happening now.
func recencyScore(visitedAt, now time.Time) float64 {
	if visitedAt.IsZero() {
		return 0
	}
	days := now.Sub(visitedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return clamp01(math.Exp(-days / recencyDecayDays))
}

// engagementScore maps a 0-100 engagement measure onto [0,1].
func engagementScore(engagement *float64) float64 {
	if engagement == nil {
		return neutralScore
	}
	return clamp01(*engagement / 100)
}

// timePatternScore rewards records habitually visited near this hour (up to
// 0.6, tapering over hourWindow) and on this weekday (0.4).
func timePatternScore(p *storage.TimePattern, now time.Time) (score float64, hourMatch, dayMatch bool) {
	if p == nil {
		return neutralScore, false, false
	}

	diff := hourDistance(p.Hour, now.Hour())
	if diff <= hourWindow {
		hourMatch = true
		score += 0.6 * (1 - float64(diff)/float64(hourWindow+1))
	}
	if p.Weekday == now.Weekday() {
		dayMatch = true
		score += 0.4
	}
	return clamp01(score), hourMatch, dayMatch
}

// hourDistance is the circular distance between two hours of the day.
func hourDistance(a, b int) int {
	a = ((a % 24) + 24) % 24
	b = ((b % 24) + 24) % 24
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}

// contextualScore measures how well rec fits what the user is doing now.
func contextualScore(rec storage.HistoryRecord, pctx Context) float64 {
	recDomain := recordDomain(rec)
	score := 0.0

	if d := pctx.domain(); d != "" && d == recDomain {
		score += 0.3
	}

	if pctx.SearchQuery != "" && rec.SearchQuery != "" {
		score += 0.4 * overlapRatio(tokenize(pctx.SearchQuery), tokenize(rec.SearchQuery))
	}

	if recDomain != "" {
		for _, u := range pctx.RecentURLs {
			if hostOf(u) == recDomain {
				score += 0.2
				break
			}
		}
	}

	if pctx.TabCount > manyTabs && rec.TabCount > manyTabs {
		score += 0.1
	}

	return clamp01(score)
}

// similarityScore compares rec's URL with the current page: same host,
// shared path segments, and shared topics on the same host.
func similarityScore(rec storage.HistoryRecord, pctx Context) float64 {
	cur, ok := parseAbsolute(pctx.CurrentURL)
	if !ok {
		return 0
	}
	other, ok := parseAbsolute(rec.URL)
	if !ok {
		return 0
	}

	score := 0.0
	sameHost := strings.EqualFold(cur.Hostname(), other.Hostname())
	if sameHost {
		score += 0.5
	}

	a, b := pathSegments(cur.Path), pathSegments(other.Path)
	if n := max(len(a), len(b)); n > 0 {
		score += 0.3 * float64(sharedCount(a, b)) / float64(n)
	}

	if sameHost && len(pctx.Topics) > 0 && len(rec.Topics) > 0 {
		score += 0.2 * overlapRatio(normalizeAll(pctx.Topics), normalizeAll(rec.Topics))
	}

	return clamp01(score)
}

func recordDomain(rec storage.HistoryRecord) string {
	if rec.Domain != "" {
		return strings.ToLower(rec.Domain)
	}
	return hostOf(rec.URL)
}

func parseAbsolute(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

// sharedCount counts distinct elements of a that also occur in b.
func sharedCount(a, b []string) int {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	seen := make(map[string]bool, len(a))
	n := 0
	for _, s := range a {
		if inB[s] && !seen[s] {
			n++
		}
		seen[s] = true
	}
	return n
}

// overlapRatio is the share of distinct query terms found in other.
func overlapRatio(query, other []string) float64 {
	distinct := make(map[string]bool, len(query))
	for _, q := range query {
		distinct[q] = true
	}
	if len(distinct) == 0 {
		return 0
	}
	return float64(sharedCount(query, other)) / float64(len(distinct))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
