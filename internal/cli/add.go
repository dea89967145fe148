package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/storage"
)

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for add command")
	}
	if c.Title == "" {
		return fmt.Errorf("--title is required for add command")
	}

	return withStore(c.globals, func(ctx context.Context, _ *config.Config, store *storage.SQLiteStore, _ *sql.DB) error {
		return c.executeWithStore(ctx, store, time.Now())
	})
}

// executeWithStore runs the add logic against a provided store (used by tests).
func (c *AddCommand) executeWithStore(ctx context.Context, store *storage.SQLiteStore, now time.Time) error {
	parsed, err := url.ParseRequestURI(c.URL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", c.URL)
	}

	// The store skips excluded domains silently; the CLI user gets an error.
	domain := parsed.Hostname()
	if store.IsExcluded(domain) {
		return fmt.Errorf("domain %q is excluded by exclusion rules", domain)
	}

	visit := &storage.Visit{
		URL:         c.URL,
		Title:       c.Title,
		Timestamp:   now,
		SearchQuery: c.Query,
		TabCount:    c.Tabs,
		Topics:      c.Topics,
	}
	if c.Engagement >= 0 {
		if c.Engagement > 100 {
			return fmt.Errorf("--engagement must be between 0 and 100")
		}
		e := c.Engagement
		visit.Engagement = &e
	}
	if c.TimeSpent != "" {
		d, err := time.ParseDuration(c.TimeSpent)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid --time-spent: %q", c.TimeSpent)
		}
		visit.TimeSpent = d
	}

	rec, err := store.RecordVisit(ctx, visit)
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{
			"id":          rec.ID,
			"url":         rec.URL,
			"title":       rec.Title,
			"domain":      rec.Domain,
			"visit_count": rec.VisitCount,
			"ts":          rec.VisitedAt.UTC().Format(time.RFC3339),
		})
	}

	fmt.Printf("Recorded visit %s (%s)\n", rec.ID, rec.VisitedAt.Format(time.RFC3339))
	fmt.Printf("  URL: %s\n", rec.URL)
	fmt.Printf("  Title: %s\n", rec.Title)
	fmt.Printf("  Visits: %d\n", rec.VisitCount)
	return nil
}
