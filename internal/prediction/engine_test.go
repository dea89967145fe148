package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/runnerr0/foresight/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory HistoryStore that counts history reads.
type fakeStore struct {
	mu        sync.Mutex
	records   []storage.HistoryRecord
	err       error
	summary   *storage.BehaviorSummary
	calls     int
	queries   []storage.HistoryQuery
	feedback  []storage.Feedback
	recompute int
}

func (s *fakeStore) GetHistory(_ context.Context, q storage.HistoryQuery) ([]storage.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return append([]storage.HistoryRecord(nil), s.records...), nil
}

func (s *fakeStore) GetBehaviorPatternSummary(context.Context) (*storage.BehaviorSummary, error) {
	return s.summary, nil
}

func (s *fakeStore) RecomputeBehaviorPatterns(context.Context) error {
	s.recompute++
	return nil
}

func (s *fakeStore) RecordFeedback(_ context.Context, fb storage.Feedback) error {
	s.feedback = append(s.feedback, fb)
	return nil
}

func newTestEngine(store *fakeStore) (*Engine, *fakeClock) {
	clock := &fakeClock{t: refNow}
	cache := NewCache(DefaultCacheTTL, DefaultCacheCapacity, clock.Now)
	return NewEngine(store, cache, WithClock(clock.Now), WithPrecomputePause(0)), clock
}

func TestGenerate_ExampleScenario(t *testing.T) {
	store := &fakeStore{records: []storage.HistoryRecord{
		{URL: "https://a.com", VisitCount: 10, VisitedAt: refNow.Add(-24 * time.Hour)},
	}}
	engine, _ := newTestEngine(store)

	opts := DefaultOptions()
	opts.MinConfidence = 0

	got := engine.GenerateNavigationPredictions(context.Background(), Context{}, opts)
	require.Len(t, got, 1)
	assert.Equal(t, "a.com", got[0].Domain)
	assert.Equal(t, CategoryRecent, got[0].Category)
	assert.Greater(t, got[0].Confidence, 0.0)
}

func TestGenerate_QueriesWindowAndLimit(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)

	got := engine.GenerateNavigationPredictions(context.Background(), Context{}, DefaultOptions())
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.Len(t, store.queries, 1)
	q := store.queries[0]
	assert.Equal(t, refNow, q.Until)
	assert.Equal(t, refNow.Add(-30*24*time.Hour), q.Since)
	assert.Equal(t, historyLimit, q.Limit)
}

func TestGenerate_CachedWithinTTL(t *testing.T) {
	store := &fakeStore{records: []storage.HistoryRecord{
		{URL: "https://a.com", VisitCount: 3, VisitedAt: refNow.Add(-time.Hour)},
		{URL: "https://b.com", VisitCount: 1, VisitedAt: refNow.Add(-48 * time.Hour)},
	}}
	engine, clock := newTestEngine(store)
	ctx := context.Background()
	pctx := Context{SearchQuery: "news"}

	first := engine.GenerateNavigationPredictions(ctx, pctx, DefaultOptions())
	second := engine.GenerateNavigationPredictions(ctx, pctx, DefaultOptions())

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, first, second)

	clock.Advance(DefaultCacheTTL)
	engine.GenerateNavigationPredictions(ctx, pctx, DefaultOptions())
	assert.Equal(t, 2, store.calls, "expired entry recomputes")
}

func TestGenerate_CacheHitDropsCurrentURL(t *testing.T) {
	store := &fakeStore{records: []storage.HistoryRecord{
		{URL: "https://a.com/one", VisitCount: 3, VisitedAt: refNow},
		{URL: "https://a.com/two", VisitCount: 2, VisitedAt: refNow},
	}}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	onOne := engine.GenerateNavigationPredictions(ctx, Context{CurrentURL: "https://a.com/one"}, DefaultOptions())
	require.Len(t, onOne, 1)
	assert.Equal(t, "https://a.com/two", onOne[0].URL)

	onTwo := engine.GenerateNavigationPredictions(ctx, Context{CurrentURL: "https://a.com/two"}, DefaultOptions())
	assert.Equal(t, 1, store.calls, "same domain shares the cache entry")
	for _, p := range onTwo {
		assert.NotEqual(t, "https://a.com/two", p.URL)
	}
}

func TestGenerate_StoreErrorDegradesToEmpty(t *testing.T) {
	store := &fakeStore{err: errors.New("disk on fire")}
	engine, _ := newTestEngine(store)

	got := engine.GenerateNavigationPredictions(context.Background(), Context{}, DefaultOptions())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type panickingStore struct{ *fakeStore }

func (panickingStore) GetHistory(context.Context, storage.HistoryQuery) ([]storage.HistoryRecord, error) {
	panic("history index corrupted")
}

func TestGenerate_StorePanicDegradesToEmpty(t *testing.T) {
	engine := NewEngine(panickingStore{&fakeStore{}}, nil, WithClock(func() time.Time { return refNow }))

	var got []Prediction
	assert.NotPanics(t, func() {
		got = engine.GenerateNavigationPredictions(context.Background(), Context{}, DefaultOptions())
	})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, engine.Cache().Len())
}

func TestGenerate_ResultProperties(t *testing.T) {
	var records []storage.HistoryRecord
	for i := 0; i < 40; i++ {
		records = append(records, storage.HistoryRecord{
			URL:         fmt.Sprintf("https://site%d.com/p/%d", i%6, i),
			VisitCount:  (i * 7) % 13,
			VisitedAt:   refNow.Add(-time.Duration(i*11) * time.Hour),
			SearchQuery: []string{"", "go tips", "weather"}[i%3],
			TabCount:    i % 9,
		})
	}
	store := &fakeStore{records: records}
	engine, _ := newTestEngine(store)

	for _, max := range []int{1, 3, 10, 50} {
		for _, minConf := range []float64{0, 0.2, 0.4} {
			opts := DefaultOptions()
			opts.MaxPredictions = max
			opts.MinConfidence = minConf
			pctx := Context{CurrentURL: "https://site1.com/p/1", SearchQuery: "go", TabCount: 7}

			got := engine.GenerateNavigationPredictions(context.Background(), pctx, opts)
			assert.LessOrEqual(t, len(got), max)
			for i, p := range got {
				assert.GreaterOrEqual(t, p.Confidence, minConf)
				assert.LessOrEqual(t, p.Confidence, 1.0)
				assert.NotEqual(t, pctx.CurrentURL, p.URL)
				if i > 0 {
					assert.GreaterOrEqual(t, got[i-1].Confidence, p.Confidence)
				}
			}
		}
	}
}

func TestPresets_SetWindowAndCategories(t *testing.T) {
	store := &fakeStore{records: []storage.HistoryRecord{
		{URL: "https://recent.com", VisitCount: 1, VisitedAt: refNow},
		{URL: "https://habit.com", VisitCount: 9, VisitedAt: refNow.Add(-10 * 24 * time.Hour),
			TimePattern: &storage.TimePattern{Hour: 14, Weekday: time.Wednesday}},
	}}
	engine, _ := newTestEngine(store)
	ctx := context.Background()
	opts := DefaultOptions()
	opts.MinConfidence = 0

	top := engine.TopSites(ctx, Context{}, opts)
	assert.Equal(t, refNow.Add(-7*24*time.Hour), store.queries[0].Since)
	for _, p := range top {
		assert.Contains(t, []Category{CategoryFrequent, CategoryRecent}, p.Category)
	}

	timed := engine.TimeBased(ctx, Context{}, opts)
	require.NotEmpty(t, timed)
	assert.Equal(t, "https://habit.com", timed[0].URL)
	assert.Equal(t, CategoryTimeBased, timed[0].Category)

	engine.Contextual(ctx, Context{}, opts)
	assert.Equal(t, refNow.Add(-14*24*time.Hour), store.queries[2].Since)

	search := engine.SearchRelated(ctx, Context{}, opts)
	for _, p := range search {
		assert.Contains(t, []Category{CategorySearchRelated, CategoryContextual}, p.Category)
	}
}

func TestPrecompute_NoSummaryIsNoop(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)

	assert.Equal(t, 0, engine.Precompute(context.Background()))
	assert.Equal(t, 0, store.calls)
}

func TestPrecompute_WarmsCache(t *testing.T) {
	store := &fakeStore{
		records: []storage.HistoryRecord{{URL: "https://a.com", VisitCount: 1, VisitedAt: refNow}},
		summary: &storage.BehaviorSummary{TopDomains: []storage.DomainCount{
			{Domain: "a.com", Count: 10}, {Domain: "b.com", Count: 4},
		}},
	}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	assert.Equal(t, 4, engine.Precompute(ctx))
	assert.Equal(t, 4, store.calls)

	engine.TopSites(ctx, Context{}, DefaultOptions())
	engine.Contextual(ctx, Context{CurrentDomain: "b.com", CurrentURL: "https://b.com/"}, DefaultOptions())
	assert.Equal(t, 4, store.calls, "precomputed queries are served from cache")
}

func TestPrecompute_StopsOnCancel(t *testing.T) {
	store := &fakeStore{summary: &storage.BehaviorSummary{TopDomains: []storage.DomainCount{
		{Domain: "a.com"}, {Domain: "b.com"}, {Domain: "c.com"},
	}}}
	clock := &fakeClock{t: refNow}
	engine := NewEngine(store, nil, WithClock(clock.Now), WithPrecomputePause(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, 3, engine.Precompute(ctx), "top-sites, time-based and the first domain only")
}

func TestRecordFeedbackAndRecompute(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, engine.RecordFeedback(ctx, "https://a.com", true))
	require.Len(t, store.feedback, 1)
	assert.Equal(t, "https://a.com", store.feedback[0].URL)
	assert.True(t, store.feedback[0].Useful)
	assert.Equal(t, refNow, store.feedback[0].Timestamp)

	require.NoError(t, engine.RecomputePatterns(ctx))
	assert.Equal(t, 1, store.recompute)
}

func TestRunPreset(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	for _, name := range []string{"", PresetTopSites, PresetContextual, PresetSearchRelated, PresetTimeBased} {
		got, err := engine.RunPreset(ctx, name, Context{}, DefaultOptions())
		require.NoError(t, err, name)
		assert.NotNil(t, got, name)
	}
	assert.Equal(t, refNow.Add(-7*24*time.Hour), store.queries[1].Since)

	_, err := engine.RunPreset(ctx, "weekly", Context{}, DefaultOptions())
	assert.Error(t, err)
}
