package prediction

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/runnerr0/foresight/internal/storage"
	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

// Wednesday, 14:00 UTC.
var refNow = time.Date(2024, time.March, 6, 14, 0, 0, 0, time.UTC)

func TestFrequencyScore(t *testing.T) {
	assert.Equal(t, 0.0, frequencyScore(5, 0))
	assert.Equal(t, 0.0, frequencyScore(0, 10))
	assert.Equal(t, 0.0, frequencyScore(-3, 10))
	assert.Equal(t, 0.5, frequencyScore(5, 10))
	assert.Equal(t, 1.0, frequencyScore(10, 10))
}

func TestRecencyScore(t *testing.T) {
	assert.Equal(t, 1.0, recencyScore(refNow, refNow))
	assert.Equal(t, 1.0, recencyScore(refNow.Add(time.Hour), refNow), "future visits count as now")
	assert.Equal(t, 0.0, recencyScore(time.Time{}, refNow))

	oneDay := recencyScore(refNow.Add(-24*time.Hour), refNow)
	assert.InDelta(t, math.Exp(-1.0/7), oneDay, 1e-9)
	assert.Greater(t, oneDay, recentThreshold)

	week := recencyScore(refNow.Add(-7*24*time.Hour), refNow)
	assert.InDelta(t, math.Exp(-1), week, 1e-9)
}

func TestRecencyScoreIsMonotonic(t *testing.T) {
	prev := 2.0
	for h := 0; h <= 24*90; h += 6 {
		s := recencyScore(refNow.Add(-time.Duration(h)*time.Hour), refNow)
		assert.LessOrEqual(t, s, prev, "hour %d", h)
		assert.GreaterOrEqual(t, s, 0.0)
		prev = s
	}
}

func TestEngagementScore(t *testing.T) {
	assert.Equal(t, neutralScore, engagementScore(nil))
	assert.Equal(t, 0.75, engagementScore(ptr(75)))
	assert.Equal(t, 1.0, engagementScore(ptr(250)))
	assert.Equal(t, 0.0, engagementScore(ptr(-10)))
	assert.Equal(t, 0.0, engagementScore(ptr(math.NaN())))
}

func TestTimePatternScore(t *testing.T) {
	tests := []struct {
		name      string
		pattern   *storage.TimePattern
		want      float64
		hourMatch bool
		dayMatch  bool
	}{
		{"no pattern", nil, 0.5, false, false},
		{"exact hour and day", &storage.TimePattern{Hour: 14, Weekday: time.Wednesday}, 1.0, true, true},
		{"exact hour other day", &storage.TimePattern{Hour: 14, Weekday: time.Monday}, 0.6, true, false},
		{"two hours off", &storage.TimePattern{Hour: 16, Weekday: time.Monday}, 0.2, true, false},
		{"three hours off same day", &storage.TimePattern{Hour: 11, Weekday: time.Wednesday}, 0.4, false, true},
		{"nothing matches", &storage.TimePattern{Hour: 2, Weekday: time.Sunday}, 0.0, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, hour, day := timePatternScore(tc.pattern, refNow)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.Equal(t, tc.hourMatch, hour)
			assert.Equal(t, tc.dayMatch, day)
		})
	}
}

func TestTimePatternWrapsAroundMidnight(t *testing.T) {
	lateNight := time.Date(2024, time.March, 6, 23, 0, 0, 0, time.UTC)
	got, hour, _ := timePatternScore(&storage.TimePattern{Hour: 1, Weekday: time.Sunday}, lateNight)
	assert.True(t, hour)
	assert.InDelta(t, 0.2, got, 1e-9)

	assert.Equal(t, 2, hourDistance(23, 1))
	assert.Equal(t, 12, hourDistance(0, 12))
	assert.Equal(t, 0, hourDistance(24, 0))
}

func TestContextualScore(t *testing.T) {
	rec := storage.HistoryRecord{
		URL:         "https://docs.example.com/go/intro",
		Domain:      "docs.example.com",
		SearchQuery: "golang context tutorial",
		TabCount:    8,
	}

	assert.Equal(t, 0.0, contextualScore(rec, Context{}))
	assert.InDelta(t, 0.3, contextualScore(rec, Context{CurrentURL: "https://docs.example.com/other"}), 1e-9)
	assert.InDelta(t, 0.3, contextualScore(rec, Context{CurrentDomain: "DOCS.example.com"}), 1e-9)

	// two of four query terms overlap
	assert.InDelta(t, 0.2, contextualScore(rec, Context{SearchQuery: "golang errgroup context usage"}), 1e-9)

	assert.InDelta(t, 0.2, contextualScore(rec, Context{RecentURLs: []string{"https://x.org", "https://docs.example.com/a"}}), 1e-9)
	assert.InDelta(t, 0.1, contextualScore(rec, Context{TabCount: 6}), 1e-9)
	assert.Equal(t, 0.0, contextualScore(rec, Context{TabCount: 5}))

	all := Context{
		CurrentDomain: "docs.example.com",
		SearchQuery:   "golang context tutorial",
		RecentURLs:    []string{"https://docs.example.com/"},
		TabCount:      10,
	}
	assert.InDelta(t, 1.0, contextualScore(rec, all), 1e-9)
}

func TestSimilarityScore(t *testing.T) {
	rec := storage.HistoryRecord{
		URL:    "https://blog.example.com/posts/go/generics",
		Topics: []string{"go", "generics"},
	}

	assert.Equal(t, 0.0, similarityScore(rec, Context{}), "no current URL")
	assert.Equal(t, 0.0, similarityScore(rec, Context{CurrentURL: "::not a url"}))
	assert.Equal(t, 0.0, similarityScore(storage.HistoryRecord{URL: "relative/path"}, Context{CurrentURL: "https://a.com"}))

	// same host, 2 of 3 segments shared
	got := similarityScore(rec, Context{CurrentURL: "https://blog.example.com/posts/go/errors"})
	assert.InDelta(t, 0.5+0.3*2.0/3.0, got, 1e-9)

	// different host, shared segments only
	got = similarityScore(rec, Context{CurrentURL: "https://other.org/posts"})
	assert.InDelta(t, 0.3*1.0/3.0, got, 1e-9)

	// topics count only on the same host
	got = similarityScore(rec, Context{CurrentURL: "https://blog.example.com/", Topics: []string{"Go"}})
	assert.InDelta(t, 0.5+0.2, got, 1e-9)
	got = similarityScore(rec, Context{CurrentURL: "https://other.org/", Topics: []string{"go"}})
	assert.Equal(t, 0.0, got)

	got = similarityScore(rec, Context{CurrentURL: rec.URL, Topics: []string{"go", "generics"}})
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestAllScoresStayInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	hosts := []string{"a.com", "b.org", "docs.c.io"}
	words := []string{"go", "rust", "news", "weather", "maps"}

	records := make([]storage.HistoryRecord, 200)
	for i := range records {
		host := hosts[rng.Intn(len(hosts))]
		rec := storage.HistoryRecord{
			URL:         "https://" + host + "/" + words[rng.Intn(len(words))],
			VisitedAt:   refNow.Add(-time.Duration(rng.Intn(60*24)) * time.Hour),
			VisitCount:  rng.Intn(50),
			SearchQuery: words[rng.Intn(len(words))],
			TabCount:    rng.Intn(12),
			Topics:      []string{words[rng.Intn(len(words))]},
		}
		if rng.Intn(2) == 0 {
			rec.Engagement = ptr(rng.Float64() * 120)
		}
		if rng.Intn(2) == 0 {
			rec.TimePattern = &storage.TimePattern{Hour: rng.Intn(24), Weekday: time.Weekday(rng.Intn(7))}
		}
		records[i] = rec
	}
	pctx := Context{
		CurrentURL:  "https://a.com/go",
		SearchQuery: "go news",
		TabCount:    9,
		RecentURLs:  []string{"https://b.org/x"},
		Topics:      []string{"go"},
	}

	maxVisits := maxVisitCount(records)
	for _, rec := range records {
		f := scoreRecord(rec, pctx, refNow, maxVisits)
		for _, v := range []float64{f.frequency, f.recency, f.engagement, f.timePattern, f.contextual, f.similarity} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		c := f.confidence()
		assert.False(t, math.IsNaN(c))
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := frequencyWeight + recencyWeight + engagementWeight + timePatternWeight + contextualWeight + similarityWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
}
