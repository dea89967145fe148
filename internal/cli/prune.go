package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/storage"
)

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	if _, err := parseDuration(c.OlderThan); err != nil {
		return err
	}
	return withStore(c.globals, func(ctx context.Context, _ *config.Config, store *storage.SQLiteStore, _ *sql.DB) error {
		return c.executeWithStore(ctx, store, time.Now())
	})
}

func (c *PruneCommand) executeWithStore(ctx context.Context, store *storage.SQLiteStore, now time.Time) error {
	retention, err := parseDuration(c.OlderThan)
	if err != nil {
		return err
	}
	cutoff := now.Add(-retention)

	var n int64
	if c.DryRun {
		n, err = store.CountExpired(ctx, cutoff)
	} else {
		n, err = store.PruneExpired(ctx, cutoff)
	}
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{
			"dry_run": c.DryRun,
			"records": n,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		})
	}

	if c.DryRun {
		fmt.Printf("Would prune %s records older than %s.\n", formatNumber(n), formatDurationHuman(retention))
		return nil
	}
	fmt.Printf("Pruned %s records older than %s.\n", formatNumber(n), formatDurationHuman(retention))
	return nil
}
