package preload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runnerr0/foresight/internal/logging"
	"github.com/runnerr0/foresight/internal/prediction"
)

const (
	DefaultResolveTimeout = 2 * time.Second
	DefaultWarmTimeout    = 5 * time.Second

	// autoPreloadPredictions is how many contextual predictions feed an
	// automatic preload.
	autoPreloadPredictions = 6
)

// Predictor supplies contextual predictions for AutoPreloadForContext.
type Predictor interface {
	Contextual(ctx context.Context, pctx prediction.Context, opts prediction.Options) []prediction.Prediction
}

// Preloader turns predictions into warmed connections.
type Preloader struct {
	prober    Prober
	sensor    NetworkSensor
	predictor Predictor
	denylist  Denylist
	limiter   *HostLimiter
	conns     *ConnectionCache
	resolved  *ResolutionCache
	stats     *StatsTracker
	logger    *slog.Logger
	now       func() time.Time

	resolveTimeout time.Duration
	warmTimeout    time.Duration

	mu         sync.Mutex
	inFlight   map[string]struct{}
	wasMetered bool
}

// PreloaderOption configures a Preloader.
type PreloaderOption func(*Preloader)

// WithSensor sets the network status source. Without one the network is
// treated as unrestricted.
func WithSensor(s NetworkSensor) PreloaderOption {
	return func(p *Preloader) { p.sensor = s }
}

// WithPredictor sets the prediction source for AutoPreloadForContext.
func WithPredictor(pr Predictor) PreloaderOption {
	return func(p *Preloader) { p.predictor = pr }
}

// WithDenylist sets the domains that are never warmed.
func WithDenylist(d Denylist) PreloaderOption {
	return func(p *Preloader) { p.denylist = d }
}

// WithHostLimiter sets the per-host warm-up budget.
func WithHostLimiter(l *HostLimiter) PreloaderOption {
	return func(p *Preloader) { p.limiter = l }
}

// WithCaches shares connection and resolution caches across preloaders.
func WithCaches(conns *ConnectionCache, resolved *ResolutionCache) PreloaderOption {
	return func(p *Preloader) {
		p.conns = conns
		p.resolved = resolved
	}
}

// WithStats shares a stats tracker.
func WithStats(s *StatsTracker) PreloaderOption {
	return func(p *Preloader) { p.stats = s }
}

// WithLogger sets the preloader logger.
func WithLogger(l *slog.Logger) PreloaderOption {
	return func(p *Preloader) { p.logger = l }
}

// WithClock replaces time.Now for cache expiry and start timestamps.
func WithClock(now func() time.Time) PreloaderOption {
	return func(p *Preloader) { p.now = now }
}

// WithTimeouts bounds the resolution and warm-up probes. Non-positive
// values keep the defaults.
func WithTimeouts(resolve, warm time.Duration) PreloaderOption {
	return func(p *Preloader) {
		if resolve > 0 {
			p.resolveTimeout = resolve
		}
		if warm > 0 {
			p.warmTimeout = warm
		}
	}
}

// NewPreloader creates a Preloader that probes through prober.
func NewPreloader(prober Prober, opts ...PreloaderOption) *Preloader {
	p := &Preloader{
		prober:         prober,
		logger:         logging.Discard(),
		now:            time.Now,
		resolveTimeout: DefaultResolveTimeout,
		warmTimeout:    DefaultWarmTimeout,
		inFlight:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.conns == nil {
		p.conns = NewConnectionCache(DefaultConnectionTTL, DefaultConnectionCapacity, p.now)
	}
	if p.resolved == nil {
		p.resolved = NewResolutionCache(DefaultResolutionTTL, p.now)
	}
	if p.stats == nil {
		p.stats = NewStatsTracker()
	}
	p.logger = p.logger.With("component", "preload")
	return p
}

// candidate is a prediction that passed every filter and is reserved in the
// in-flight set.
type candidate struct {
	url  string
	host string
}

// PreloadPredictedURLs warms connections for the best predictions allowed by
// s and returns the attempts that completed, in no particular order. Policy
// blocks, per-URL failures and collaborator panics never surface as errors.
func (p *Preloader) PreloadPredictedURLs(ctx context.Context, preds []prediction.Prediction, s Settings) (conns []Connection) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "preload failed", "panic", fmt.Sprint(r))
			conns = []Connection{}
		}
	}()

	if !p.allowed(ctx, s) {
		return []Connection{}
	}

	p.conns.Purge()
	p.resolved.Purge()

	candidates := p.selectCandidates(preds, s)
	if len(candidates) == 0 {
		return []Connection{}
	}

	results := make([]*Connection, len(candidates))
	var g errgroup.Group
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			defer p.release(c.url)
			defer func() {
				if r := recover(); r != nil {
					p.logger.ErrorContext(ctx, "warm-up task panicked", "url", c.url, "panic", fmt.Sprint(r))
				}
			}()
			conn := p.warm(ctx, c)
			results[i] = &conn
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Connection, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	p.logger.InfoContext(ctx, "preload finished",
		"candidates", len(candidates),
		"completed", len(out),
	)
	return out
}

// allowed applies the consent and network policy guards.
func (p *Preloader) allowed(ctx context.Context, s Settings) bool {
	if !s.Enabled {
		p.resolved.Clear()
		p.logger.DebugContext(ctx, "preload skipped", "reason", "disabled")
		return false
	}
	if !s.Consent {
		p.logger.DebugContext(ctx, "preload skipped", "reason", "no_consent")
		return false
	}

	status := p.networkStatus(ctx)

	p.mu.Lock()
	becameMetered := status.Metered && !p.wasMetered
	p.wasMetered = status.Metered
	p.mu.Unlock()
	if becameMetered {
		p.resolved.Clear()
	}

	if status.Metered {
		p.logger.DebugContext(ctx, "preload skipped", "reason", "metered")
		return false
	}
	if s.WiFiOnly && !status.Unrestricted {
		p.logger.DebugContext(ctx, "preload skipped", "reason", "wifi_only")
		return false
	}
	return true
}

func (p *Preloader) networkStatus(ctx context.Context) NetworkStatus {
	if p.sensor == nil {
		return unknownNetwork
	}
	status, err := p.sensor.NetworkStatus(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "network sensor failed", "error", err.Error())
		return unknownNetwork
	}
	return status
}

// selectCandidates filters preds and reserves up to the connection limit in
// the in-flight set, highest confidence first.
func (p *Preloader) selectCandidates(preds []prediction.Prediction, s Settings) []candidate {
	limit := s.connectionLimit()
	if limit == 0 {
		return nil
	}

	eligible := make([]prediction.Prediction, 0, len(preds))
	for _, pr := range preds {
		if pr.Confidence >= s.MinConfidence {
			eligible = append(eligible, pr)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Confidence > eligible[j].Confidence
	})

	var out []candidate
	for _, pr := range eligible {
		if len(out) == limit {
			break
		}
		host := warmableHost(pr.URL)
		if host == "" || p.denylist.Blocks(host) {
			continue
		}
		if c, ok := p.conns.Get(pr.URL); ok && c.Status == StatusSuccess {
			continue
		}
		if !p.reserve(pr.URL) {
			continue
		}
		if p.limiter != nil && !p.limiter.Allow(host) {
			p.release(pr.URL)
			p.logger.Debug("preload skipped", "reason", "rate_limited", "host", host)
			continue
		}
		out = append(out, candidate{url: pr.URL, host: host})
	}
	return out
}

func (p *Preloader) reserve(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[url]; busy {
		return false
	}
	p.inFlight[url] = struct{}{}
	return true
}

func (p *Preloader) release(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, url)
}

// warm runs resolution then the transport probe for one URL.
func (p *Preloader) warm(ctx context.Context, c candidate) Connection {
	conn := Connection{
		URL:       c.url,
		Domain:    c.host,
		StartedAt: p.now(),
		Status:    StatusPending,
	}

	if !p.resolved.Has(c.host) {
		rctx, cancel := context.WithTimeout(ctx, p.resolveTimeout)
		err := p.prober.Resolve(rctx, c.host)
		timedOut := err != nil && isTimeout(rctx, err)
		cancel()
		if err != nil {
			return p.finish(ctx, conn, err, timedOut)
		}
		p.resolved.Put(c.host)
	}
	conn.DNSResolved = true

	wctx, cancel := context.WithTimeout(ctx, p.warmTimeout)
	start := time.Now()
	res, err := p.prober.Warm(wctx, c.url)
	elapsed := time.Since(start)
	timedOut := err != nil && isTimeout(wctx, err)
	cancel()

	conn.TCPConnected = res.TCPConnected
	conn.TLSHandshake = res.TLSHandshake
	if err == nil {
		conn.ConnectTime = elapsed
	}
	return p.finish(ctx, conn, err, timedOut)
}

// finish sets the final status, updates stats and caches the record.
func (p *Preloader) finish(ctx context.Context, conn Connection, err error, timedOut bool) Connection {
	switch {
	case err == nil:
		conn.Status = StatusSuccess
		p.stats.RecordSuccess(conn.ConnectTime)
	case timedOut:
		conn.Status = StatusTimeout
		conn.Err = err.Error()
		p.stats.RecordFailure()
	default:
		conn.Status = StatusFailed
		conn.Err = err.Error()
		p.stats.RecordFailure()
	}
	p.conns.Put(conn)

	p.logger.DebugContext(ctx, "warm-up done",
		"url", conn.URL,
		"status", string(conn.Status),
		"connect_time", conn.ConnectTime,
	)
	return conn
}

// IsURLPreloaded reports whether url has an unexpired successful warm-up.
// Every call feeds the cache hit rate.
func (p *Preloader) IsURLPreloaded(url string) bool {
	c, ok := p.conns.Get(url)
	hit := ok && c.Status == StatusSuccess
	p.stats.RecordLookup(hit)
	return hit
}

// AutoPreloadForContext predicts from the current page and warms the result.
// Any failure is logged and yields an empty list.
func (p *Preloader) AutoPreloadForContext(ctx context.Context, currentURL string, recentURLs []string, s Settings) (conns []Connection) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "auto preload failed", "url", currentURL, "panic", fmt.Sprint(r))
			conns = []Connection{}
		}
	}()

	if p.predictor == nil {
		p.logger.WarnContext(ctx, "auto preload skipped", "reason", "no_predictor")
		return []Connection{}
	}

	opts := prediction.DefaultOptions()
	opts.MinConfidence = s.MinConfidence
	opts.MaxPredictions = autoPreloadPredictions

	preds := p.predictor.Contextual(ctx, prediction.Context{
		CurrentURL: currentURL,
		RecentURLs: recentURLs,
	}, opts)
	return p.PreloadPredictedURLs(ctx, preds, s)
}

// ClearPreloadingCache empties both caches. Counters are kept.
func (p *Preloader) ClearPreloadingCache() {
	p.conns.Clear()
	p.resolved.Clear()
}

// Stats returns the cumulative counters.
func (p *Preloader) Stats() Stats {
	return p.stats.Snapshot()
}

// Recommendations returns settings advice for the current network.
func (p *Preloader) Recommendations(ctx context.Context, s Settings) []Recommendation {
	return Recommend(p.networkStatus(ctx), s, p.stats.Snapshot())
}
