package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/prediction"
	"github.com/runnerr0/foresight/internal/storage"
)

// Execute implements the go-flags Commander interface for FeedbackCommand.
func (c *FeedbackCommand) Execute(args []string) error {
	if err := c.validate(); err != nil {
		return err
	}
	return withStore(c.globals, func(ctx context.Context, _ *config.Config, store *storage.SQLiteStore, _ *sql.DB) error {
		return c.executeWithStore(ctx, store)
	})
}

func (c *FeedbackCommand) validate() error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for feedback command")
	}
	if c.Useful == c.NotUseful {
		return fmt.Errorf("exactly one of --useful or --not-useful is required")
	}
	return nil
}

func (c *FeedbackCommand) executeWithStore(ctx context.Context, store prediction.HistoryStore) error {
	if err := c.validate(); err != nil {
		return err
	}

	engine := prediction.NewEngine(store, nil)
	if err := engine.RecordFeedback(ctx, c.URL, c.Useful); err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"url": c.URL, "useful": c.Useful})
	}
	verdict := "not useful"
	if c.Useful {
		verdict = "useful"
	}
	fmt.Printf("Recorded feedback: %s was %s\n", c.URL, verdict)
	return nil
}
