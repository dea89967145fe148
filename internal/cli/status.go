package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string                `json:"version"`
	DatabasePath      string                `json:"database_path"`
	DatabaseSizeBytes int64                 `json:"database_size_bytes"`
	TotalURLs         int64                 `json:"total_urls"`
	TotalVisits       int64                 `json:"total_visits"`
	TotalFeedback     int64                 `json:"total_feedback"`
	UsefulFeedback    int64                 `json:"useful_feedback"`
	OldestVisit       string                `json:"oldest_visit,omitempty"`
	NewestVisit       string                `json:"newest_visit,omitempty"`
	TopDomains        []storage.DomainCount `json:"top_domains"`
	Preloading        preloadStatusJSON     `json:"preloading"`
	DaemonAddr        string                `json:"daemon_addr"`
	DaemonRunning     bool                  `json:"daemon_running"`
}

type preloadStatusJSON struct {
	Enabled        bool    `json:"enabled"`
	Consent        bool    `json:"consent"`
	WiFiOnly       bool    `json:"wifi_only"`
	MinConfidence  float64 `json:"min_confidence"`
	MaxConnections int     `json:"max_connections"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	return withStore(c.globals, func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, db *sql.DB) error {
		return c.executeWithStore(ctx, cfg, store, db)
	})
}

// executeWithStore runs status against a provided store and db (for testing).
func (c *StatusCommand) executeWithStore(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, db *sql.DB) error {
	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	dbPath, _ := cfg.Storage.DatabasePath()
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: getDatabaseSize(db, dbPath),
		TotalURLs:         stats.TotalURLs,
		TotalVisits:       stats.TotalVisits,
		TotalFeedback:     stats.TotalFeedback,
		UsefulFeedback:    stats.UsefulFeedback,
		TopDomains:        stats.TopDomains,
		Preloading: preloadStatusJSON{
			Enabled:        cfg.Preloading.Enabled,
			Consent:        cfg.Preloading.Consent,
			WiFiOnly:       cfg.Preloading.WiFiOnly,
			MinConfidence:  cfg.Preloading.MinConfidence,
			MaxConnections: cfg.Preloading.MaxConnections,
		},
		DaemonAddr:    cfg.Daemon.Addr(),
		DaemonRunning: checkDaemon(cfg.Daemon.Addr()),
	}
	if out.TopDomains == nil {
		out.TopDomains = []storage.DomainCount{}
	}
	if stats.TotalURLs > 0 {
		out.OldestVisit = stats.OldestVisit.UTC().Format(time.RFC3339)
		out.NewestVisit = stats.NewestVisit.UTC().Format(time.RFC3339)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}
	c.printStatusHuman(out, stats)
	return nil
}

func (c *StatusCommand) printStatusHuman(out statusJSON, stats *storage.Stats) {
	fmt.Println("Foresight Status")
	fmt.Println("================")
	fmt.Printf("Version:       %s\n", out.Version)
	fmt.Printf("Database:      %s (%s)\n", out.DatabasePath, formatBytes(out.DatabaseSizeBytes))
	fmt.Printf("URLs:          %s\n", formatNumber(out.TotalURLs))
	fmt.Printf("Visits:        %s\n", formatNumber(out.TotalVisits))

	if out.TotalURLs > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestVisit.Local().Format("2006-01-02"))
		fmt.Printf("Newest:        %s\n", stats.NewestVisit.Local().Format("2006-01-02"))
	}

	if out.TotalFeedback > 0 {
		pct := float64(out.UsefulFeedback) / float64(out.TotalFeedback) * 100
		fmt.Printf("Feedback:      %s (%.1f%% useful)\n", formatNumber(out.TotalFeedback), pct)
	} else {
		fmt.Println("Feedback:      0")
	}

	if len(out.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Domains:")
		for _, d := range out.TopDomains {
			fmt.Printf("  %-20s %s\n", d.Domain, formatNumber(d.Count))
		}
	}

	p := out.Preloading
	fmt.Println()
	fmt.Printf("Preloading:    %s\n", onOff(p.Enabled && p.Consent))
	if p.Enabled && !p.Consent {
		fmt.Println("               (waiting for consent: set preloading.consent in config)")
	}
	fmt.Printf("Wi-Fi only:    %s\n", onOff(p.WiFiOnly))
	fmt.Printf("Threshold:     %.2f (max %d connections)\n", p.MinConfidence, p.MaxConnections)

	fmt.Println()
	if out.DaemonRunning {
		fmt.Printf("Daemon:        running (%s)\n", out.DaemonAddr)
	} else {
		fmt.Println("Daemon:        not running")
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// getDatabaseSize returns the database file size in bytes.
// For on-disk databases, it uses os.Stat. For in-memory databases,
// it queries page_count * page_size.
func getDatabaseSize(db *sql.DB, dbPath string) int64 {
	if info, err := os.Stat(dbPath); err == nil {
		return info.Size()
	}

	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// checkDaemon reports whether the daemon answers /status within 1 second.
func checkDaemon(addr string) bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get("http://" + addr + "/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
