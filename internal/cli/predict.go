package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/prediction"
	"github.com/runnerr0/foresight/internal/storage"
)

// Execute implements the go-flags Commander interface for PredictCommand.
func (c *PredictCommand) Execute(args []string) error {
	return withStore(c.globals, func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, _ *sql.DB) error {
		return c.executeWithStore(ctx, cfg, store, time.Now())
	})
}

// options merges command flags over the configured defaults.
func (c *PredictCommand) options(cfg *config.Config) (prediction.Options, error) {
	opts := predictionOptions(cfg)
	if c.Limit < 0 {
		return opts, fmt.Errorf("--limit must not be negative")
	}
	if c.Limit > 0 {
		opts.MaxPredictions = c.Limit
	}
	if c.MinConfidence >= 0 {
		if c.MinConfidence > 1 {
			return opts, fmt.Errorf("--min-confidence must be between 0 and 1")
		}
		opts.MinConfidence = c.MinConfidence
	}
	for _, name := range c.Category {
		cat, ok := prediction.ParseCategory(name)
		if !ok {
			return opts, fmt.Errorf("unknown category %q", name)
		}
		opts.Categories = append(opts.Categories, cat)
	}
	return opts, nil
}

func (c *PredictCommand) executeWithStore(ctx context.Context, cfg *config.Config, store prediction.HistoryStore, now time.Time) error {
	opts, err := c.options(cfg)
	if err != nil {
		return err
	}

	engine := prediction.NewEngine(store, nil, prediction.WithClock(func() time.Time { return now }))
	pctx := prediction.Context{
		CurrentURL:  c.URL,
		SearchQuery: c.Query,
		TabCount:    c.Tabs,
		RecentURLs:  c.Recent,
		Topics:      c.Topics,
	}

	preds, err := engine.RunPreset(ctx, c.Preset, pctx, opts)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		if preds == nil {
			preds = []prediction.Prediction{}
		}
		return printJSON(preds)
	}

	if len(preds) == 0 {
		fmt.Println("No predictions.")
		return nil
	}
	for i, p := range preds {
		fmt.Printf("%2d. %.2f  %-16s %s\n", i+1, p.Confidence, p.Category, p.URL)
		fmt.Printf("              %s\n", p.Reason)
	}
	return nil
}
