// Package daemon serves the local HTTP API used by browser integrations to
// report visits, fetch predictions and trigger connection warm-up.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/logging"
	"github.com/runnerr0/foresight/internal/prediction"
	"github.com/runnerr0/foresight/internal/preload"
	"github.com/runnerr0/foresight/internal/storage"
)

const (
	// refreshInterval is how often behavior patterns are recomputed and the
	// prediction cache is warmed.
	refreshInterval = 15 * time.Minute

	shutdownTimeout = 10 * time.Second
)

// VisitStore is the subset of storage the daemon writes visits through.
type VisitStore interface {
	RecordVisit(ctx context.Context, visit *storage.Visit) (*storage.HistoryRecord, error)
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Server wires the HTTP API to the prediction and preload pipeline.
type Server struct {
	cfg       *config.Config
	store     VisitStore
	engine    *prediction.Engine
	preloader *preload.Preloader
	logger    *slog.Logger
	version   string
	started   time.Time
}

// New creates a Server. A nil logger discards output.
func New(cfg *config.Config, store VisitStore, engine *prediction.Engine, preloader *preload.Preloader, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		preloader: preloader,
		logger:    logger.With("component", "daemon"),
		version:   version,
		started:   time.Now(),
	}
}

// Router registers routes and the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger))

	r.Get("/status", s.status)
	r.Route("/v1", func(r chi.Router) {
		r.Use(requireJSON)
		r.Post("/visits", s.recordVisit)
		r.Get("/predictions", s.predictions)
		r.Post("/feedback", s.feedback)
		r.Route("/preload", func(r chi.Router) {
			r.Post("/", s.preload)
			r.Get("/check", s.checkPreloaded)
			r.Get("/stats", s.preloadStats)
			r.Get("/recommendations", s.recommendations)
			r.Delete("/cache", s.clearPreloadCache)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go s.refreshLoop(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		s.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return runErr
}

// refreshLoop keeps the behavior summary fresh and precomputes likely
// prediction queries.
func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Server) refresh(ctx context.Context) {
	if err := s.engine.RecomputePatterns(ctx); err != nil {
		s.logger.WarnContext(ctx, "recompute behavior patterns failed", "error", err.Error())
		return
	}
	s.engine.Precompute(ctx)
}

func (s *Server) settings() preload.Settings {
	return preload.SettingsFromConfig(s.cfg.Preloading)
}
