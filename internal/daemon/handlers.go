package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/runnerr0/foresight/internal/prediction"
	"github.com/runnerr0/foresight/internal/preload"
	"github.com/runnerr0/foresight/internal/storage"
)

const maxBodyBytes = 1 << 20

type visitRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Timestamp   int64    `json:"timestamp"` // epoch ms, 0 means now
	Engagement  *float64 `json:"engagement"`
	TimeSpentMS int64    `json:"time_spent_ms"`
	SearchQuery string   `json:"search_query"`
	TabCount    int      `json:"tab_count"`
	Topics      []string `json:"topics"`
}

type recordResponse struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Domain      string   `json:"domain"`
	VisitCount  int      `json:"visit_count"`
	LastVisited int64    `json:"last_visited"`
	Topics      []string `json:"topics,omitempty"`
}

type preloadRequest struct {
	Predictions []prediction.Prediction `json:"predictions"`
	CurrentURL  string                  `json:"current_url"`
	RecentURLs  []string                `json:"recent_urls"`
	Settings    *settingsOverride       `json:"settings"`
}

// settingsOverride tunes one preload request. Enabled and Consent can only
// switch preloading off; the configured values are the ceiling.
type settingsOverride struct {
	Enabled        *bool    `json:"enabled"`
	Consent        *bool    `json:"consent"`
	WiFiOnly       *bool    `json:"wifi_only"`
	MinConfidence  *float64 `json:"min_confidence"`
	MaxConnections *int     `json:"max_connections"`
}

func (o *settingsOverride) apply(base preload.Settings) (preload.Settings, error) {
	if o == nil {
		return base, nil
	}
	if o.Enabled != nil {
		base.Enabled = base.Enabled && *o.Enabled
	}
	if o.Consent != nil {
		base.Consent = base.Consent && *o.Consent
	}
	if o.WiFiOnly != nil {
		base.WiFiOnly = *o.WiFiOnly
	}
	if o.MinConfidence != nil {
		if *o.MinConfidence < 0 || *o.MinConfidence > 1 {
			return base, fmt.Errorf("settings.min_confidence must be between 0 and 1")
		}
		base.MinConfidence = *o.MinConfidence
	}
	if o.MaxConnections != nil {
		if *o.MaxConnections < 0 {
			return base, fmt.Errorf("settings.max_connections must not be negative")
		}
		base.MaxConnections = *o.MaxConnections
	}
	return base, nil
}

type feedbackRequest struct {
	URL    string `json:"url"`
	Useful *bool  `json:"useful"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, http.StatusBadRequest, "INVALID_REQUEST", message, requestIDFromContext(r.Context()))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "read stats failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "could not read stats", requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"total_urls":     stats.TotalURLs,
		"total_visits":   stats.TotalVisits,
		"top_domains":    stats.TopDomains,
		"preload":        s.preloader.Stats(),
	})
}

func (s *Server) recordVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.badRequest(w, r, "url is required")
		return
	}
	if req.Engagement != nil && (*req.Engagement < 0 || *req.Engagement > 100) {
		s.badRequest(w, r, "engagement must be between 0 and 100")
		return
	}

	visit := &storage.Visit{
		URL:         req.URL,
		Title:       req.Title,
		Engagement:  req.Engagement,
		TimeSpent:   time.Duration(req.TimeSpentMS) * time.Millisecond,
		SearchQuery: req.SearchQuery,
		TabCount:    req.TabCount,
		Topics:      req.Topics,
	}
	if req.Timestamp > 0 {
		visit.Timestamp = time.UnixMilli(req.Timestamp)
	}

	rec, err := s.store.RecordVisit(r.Context(), visit)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if rec == nil {
		writeSuccess(w, http.StatusOK, map[string]any{"recorded": false, "reason": "excluded"})
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"recorded": true,
		"record": recordResponse{
			ID:          rec.ID,
			URL:         rec.URL,
			Title:       rec.Title,
			Domain:      rec.Domain,
			VisitCount:  rec.VisitCount,
			LastVisited: rec.VisitedAt.UnixMilli(),
			Topics:      rec.Topics,
		},
	})
}

// predictions maps query parameters onto a prediction Context and Options.
// Options default to the prediction config section.
func (s *Server) predictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pc := s.cfg.Prediction
	opts := prediction.Options{
		MaxPredictions:  pc.MaxPredictions,
		MinConfidence:   pc.MinConfidence,
		TimeWindow:      pc.TimeWindow(),
		IncludeMetadata: pc.IncludeMetadata,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.badRequest(w, r, "limit must be a positive integer")
			return
		}
		opts.MaxPredictions = n
	}
	if v := q.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			s.badRequest(w, r, "min_confidence must be between 0 and 1")
			return
		}
		opts.MinConfidence = f
	}
	if v := q.Get("metadata"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.badRequest(w, r, "metadata must be a boolean")
			return
		}
		opts.IncludeMetadata = b
	}
	for _, v := range q["category"] {
		c, ok := prediction.ParseCategory(v)
		if !ok {
			s.badRequest(w, r, fmt.Sprintf("unknown category %q", v))
			return
		}
		opts.Categories = append(opts.Categories, c)
	}

	pctx := prediction.Context{
		CurrentURL:    q.Get("url"),
		CurrentDomain: q.Get("domain"),
		SearchQuery:   q.Get("query"),
		RecentURLs:    q["recent"],
		Intent:        prediction.Intent(q.Get("intent")),
		Topics:        q["topic"],
	}
	if v := q.Get("tabs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(w, r, "tabs must be a non-negative integer")
			return
		}
		pctx.TabCount = n
	}

	preds, err := s.engine.RunPreset(r.Context(), q.Get("preset"), pctx, opts)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"predictions": preds})
}

func (s *Server) preload(w http.ResponseWriter, r *http.Request) {
	var req preloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	settings, err := req.Settings.apply(s.settings())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	var conns []preload.Connection
	switch {
	case len(req.Predictions) > 0:
		conns = s.preloader.PreloadPredictedURLs(r.Context(), req.Predictions, settings)
	case req.CurrentURL != "":
		conns = s.preloader.AutoPreloadForContext(r.Context(), req.CurrentURL, req.RecentURLs, settings)
	default:
		s.badRequest(w, r, "predictions or current_url is required")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"connections": conns})
}

func (s *Server) checkPreloaded(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		s.badRequest(w, r, "url is required")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"url":       u,
		"preloaded": s.preloader.IsURLPreloaded(u),
	})
}

func (s *Server) preloadStats(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"preload":          s.preloader.Stats(),
		"prediction_cache": s.engine.Cache().Stats(),
	})
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"recommendations": s.preloader.Recommendations(r.Context(), s.settings()),
	})
}

func (s *Server) clearPreloadCache(w http.ResponseWriter, _ *http.Request) {
	s.preloader.ClearPreloadingCache()
	writeMessage(w, http.StatusOK, "preload cache cleared")
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	if req.URL == "" || req.Useful == nil {
		s.badRequest(w, r, "url and useful are required")
		return
	}
	if err := s.engine.RecordFeedback(r.Context(), req.URL, *req.Useful); err != nil {
		s.logger.ErrorContext(r.Context(), "record feedback failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "could not record feedback", requestIDFromContext(r.Context()))
		return
	}
	writeMessage(w, http.StatusCreated, "feedback recorded")
}
