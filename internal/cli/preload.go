package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/preload"
	"github.com/runnerr0/foresight/internal/storage"
)

type preloadJSON struct {
	Connections     []preload.Connection     `json:"connections"`
	Stats           preload.Stats            `json:"stats"`
	Recommendations []preload.Recommendation `json:"recommendations"`
}

// Execute implements the go-flags Commander interface for PreloadCommand.
func (c *PreloadCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for preload command")
	}

	return withStore(c.globals, func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, _ *sql.DB) error {
		prober := c.prober
		if prober == nil {
			hp := preload.NewHTTPProber()
			defer hp.Close()
			prober = hp
		}
		return c.executeWithStore(ctx, cfg, store, prober)
	})
}

func (c *PreloadCommand) executeWithStore(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, prober preload.Prober) error {
	logger := newLogger(cfg, c.globals)
	_, preloader := buildPipeline(cfg, store, prober, logger)

	settings := preload.SettingsFromConfig(cfg.Preloading)
	if c.Consent {
		settings.Consent = true
	}

	conns := preloader.AutoPreloadForContext(ctx, c.URL, c.Recent, settings)
	out := preloadJSON{
		Connections:     conns,
		Stats:           preloader.Stats(),
		Recommendations: preloader.Recommendations(ctx, settings),
	}
	if out.Connections == nil {
		out.Connections = []preload.Connection{}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}

	if !settings.Enabled || !settings.Consent {
		fmt.Println("Preloading is off (enable it and grant consent with --consent or preloading.consent).")
	}
	if len(conns) == 0 {
		fmt.Println("No connections warmed.")
	}
	for _, conn := range conns {
		line := fmt.Sprintf("  %-8s %s", conn.Status, conn.URL)
		if conn.Status == preload.StatusSuccess {
			line += fmt.Sprintf(" (%s)", conn.ConnectTime.Round(time.Millisecond))
		} else if conn.Err != "" {
			line += " - " + conn.Err
		}
		fmt.Println(line)
	}
	for _, r := range out.Recommendations {
		fmt.Printf("Tip: set %s to %v (%s)\n", r.Setting, r.Value, r.Reason)
	}
	return nil
}
