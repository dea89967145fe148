package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/runnerr0/foresight/internal/logging"
	"github.com/runnerr0/foresight/internal/storage"
)

const (
	// historyLimit caps how many records one prediction call reads.
	historyLimit = 1000

	// precomputeDomains is how many top domains get a contextual warm-up.
	precomputeDomains = 5

	defaultPrecomputePause = 100 * time.Millisecond
)

// HistoryStore is the history collaborator the engine reads from.
type HistoryStore interface {
	GetHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.HistoryRecord, error)
	GetBehaviorPatternSummary(ctx context.Context) (*storage.BehaviorSummary, error)
	RecomputeBehaviorPatterns(ctx context.Context) error
	RecordFeedback(ctx context.Context, fb storage.Feedback) error
}

// Engine turns visit history into ranked navigation predictions.
type Engine struct {
	store           HistoryStore
	cache           *Cache
	logger          *slog.Logger
	now             func() time.Time
	precomputePause time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPrecomputePause sets the pause between per-domain precompute queries.
func WithPrecomputePause(d time.Duration) Option {
	return func(e *Engine) { e.precomputePause = d }
}

// NewEngine creates an engine over store. A nil cache gets a private default cache.
func NewEngine(store HistoryStore, cache *Cache, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		cache:           cache,
		logger:          logging.Discard(),
		now:             time.Now,
		precomputePause: defaultPrecomputePause,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewCache(DefaultCacheTTL, DefaultCacheCapacity, e.now)
	}
	e.logger = e.logger.With("component", "prediction")
	return e
}

// Cache exposes the engine's prediction cache for inspection.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// GenerateNavigationPredictions returns predictions for pctx, serving from
// the cache when an equivalent request was answered within the TTL. It never
// fails: a history read error or a store panic is logged and yields an
// empty list.
func (e *Engine) GenerateNavigationPredictions(ctx context.Context, pctx Context, opts Options) (predictions []Prediction) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "prediction failed",
				"operation", "generate_predictions",
				"outcome", "degraded",
				"panic", fmt.Sprint(r),
			)
			predictions = []Prediction{}
		}
	}()

	opts = opts.normalize()
	if pctx.Now.IsZero() {
		pctx.Now = e.now()
	}

	key := cacheKey(pctx, opts, pctx.Now)
	if cached, ok := e.cache.Get(key); ok {
		return withoutURL(cached, pctx.CurrentURL)
	}

	records, err := e.store.GetHistory(ctx, storage.HistoryQuery{
		Since: pctx.Now.Add(-opts.TimeWindow),
		Until: pctx.Now,
		Limit: historyLimit,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "history read failed",
			"operation", "generate_predictions",
			"outcome", "degraded",
			"error", err.Error(),
		)
		return []Prediction{}
	}

	predictions = rank(records, pctx, opts, pctx.Now)
	e.cache.Put(key, predictions)

	e.logger.DebugContext(ctx, "predictions generated",
		"records", len(records),
		"predictions", len(predictions),
		"domain", pctx.domain(),
	)
	return predictions
}

// withoutURL drops currentURL from a cached list. Cache keys are per domain,
// so a list computed on a sibling page may contain the page now open.
func withoutURL(predictions []Prediction, currentURL string) []Prediction {
	if currentURL == "" {
		return predictions
	}
	out := predictions[:0]
	for _, p := range predictions {
		if p.URL != currentURL {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) preset(ctx context.Context, pctx Context, opts Options, window time.Duration, categories ...Category) []Prediction {
	opts.TimeWindow = window
	opts.Categories = categories
	return e.GenerateNavigationPredictions(ctx, pctx, opts)
}

// TopSites predicts from the last week, frequent and recent pages only.
func (e *Engine) TopSites(ctx context.Context, pctx Context, opts Options) []Prediction {
	return e.preset(ctx, pctx, opts, 7*24*time.Hour, CategoryFrequent, CategoryRecent)
}

// Contextual predicts from the last two weeks, favoring pages related to the current one.
func (e *Engine) Contextual(ctx context.Context, pctx Context, opts Options) []Prediction {
	return e.preset(ctx, pctx, opts, 14*24*time.Hour, CategoryContextual, CategorySimilarContent, CategoryFrequent)
}

// SearchRelated predicts pages reached from similar searches.
func (e *Engine) SearchRelated(ctx context.Context, pctx Context, opts Options) []Prediction {
	return e.preset(ctx, pctx, opts, 30*24*time.Hour, CategorySearchRelated, CategoryContextual)
}

// TimeBased predicts pages habitually opened at this time.
func (e *Engine) TimeBased(ctx context.Context, pctx Context, opts Options) []Prediction {
	return e.preset(ctx, pctx, opts, 30*24*time.Hour, CategoryTimeBased, CategoryFrequent)
}

// Preset names accepted by RunPreset.
const (
	PresetTopSites      = "top"
	PresetContextual    = "contextual"
	PresetSearchRelated = "search"
	PresetTimeBased     = "time"
)

// RunPreset runs the named preset. An empty name runs
// GenerateNavigationPredictions with opts unchanged.
func (e *Engine) RunPreset(ctx context.Context, name string, pctx Context, opts Options) ([]Prediction, error) {
	switch name {
	case "":
		return e.GenerateNavigationPredictions(ctx, pctx, opts), nil
	case PresetTopSites:
		return e.TopSites(ctx, pctx, opts), nil
	case PresetContextual:
		return e.Contextual(ctx, pctx, opts), nil
	case PresetSearchRelated:
		return e.SearchRelated(ctx, pctx, opts), nil
	case PresetTimeBased:
		return e.TimeBased(ctx, pctx, opts), nil
	default:
		return nil, fmt.Errorf("unknown preset %q (use top, contextual, search or time)", name)
	}
}

// Precompute fills the cache for the most likely upcoming requests and
// returns how many queries it ran. Without a behavior summary it does nothing.
func (e *Engine) Precompute(ctx context.Context) int {
	summary, err := e.store.GetBehaviorPatternSummary(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "behavior summary unavailable", "operation", "precompute", "error", err.Error())
		return 0
	}
	if summary == nil {
		return 0
	}

	opts := DefaultOptions()
	e.TopSites(ctx, Context{}, opts)
	e.TimeBased(ctx, Context{}, opts)
	ran := 2

	for i, dc := range summary.TopDomains {
		if i >= precomputeDomains {
			break
		}
		if i > 0 && e.precomputePause > 0 {
			select {
			case <-ctx.Done():
				return ran
			case <-time.After(e.precomputePause):
			}
		}
		e.Contextual(ctx, Context{
			CurrentDomain: dc.Domain,
			CurrentURL:    "https://" + dc.Domain + "/",
		}, opts)
		ran++
	}

	e.logger.InfoContext(ctx, "prediction cache precomputed", "queries", ran)
	return ran
}

// RecordFeedback stores whether a predicted URL turned out to be useful.
// Feedback is kept for offline weight tuning; it does not change live scores.
func (e *Engine) RecordFeedback(ctx context.Context, rawURL string, useful bool) error {
	err := e.store.RecordFeedback(ctx, storage.Feedback{
		URL:       rawURL,
		Useful:    useful,
		Timestamp: e.now(),
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "prediction feedback recorded", "url", rawURL, "useful", useful)
	return nil
}

// RecomputePatterns refreshes the behavior summary that Precompute relies on.
func (e *Engine) RecomputePatterns(ctx context.Context) error {
	return e.store.RecomputeBehaviorPatterns(ctx)
}
