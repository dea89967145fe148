package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/daemon"
	"github.com/runnerr0/foresight/internal/logging"
	"github.com/runnerr0/foresight/internal/preload"
	"github.com/runnerr0/foresight/internal/storage"
)

// Execute implements the go-flags Commander interface for IngestCommand.
// It blocks until SIGINT or SIGTERM.
func (c *IngestCommand) Execute(args []string) error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(c.globals, func(_ context.Context, cfg *config.Config, store *storage.SQLiteStore, _ *sql.DB) error {
		c.applyOverrides(cfg)

		prober := preload.NewHTTPProber()
		defer prober.Close()

		logger := newLogger(cfg, c.globals)
		engine, preloader := buildPipeline(cfg, store, prober, logger)
		srv := daemon.New(cfg, store, engine, preloader, logger, c.version)

		if !cfg.Preloading.Consent {
			logger.Info("preloading inactive until consent is granted", "setting", "preloading.consent")
		}
		return srv.Run(ctx, cfg.Daemon.Addr())
	})
}

// applyOverrides applies --port and --log-level on top of the loaded config.
func (c *IngestCommand) applyOverrides(cfg *config.Config) {
	if c.Port > 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
}
