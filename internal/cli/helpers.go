package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/logging"
	"github.com/runnerr0/foresight/internal/prediction"
	"github.com/runnerr0/foresight/internal/preload"
	"github.com/runnerr0/foresight/internal/storage"
)

// ConfigEnvVar names the environment variable that overrides the config path.
const ConfigEnvVar = "FORESIGHT_CONFIG"

// loadConfig resolves the config path from --config, then $FORESIGHT_CONFIG,
// then the default location, creating a default file when none exists.
func loadConfig(g *GlobalFlags) (*config.Config, error) {
	path := ""
	if g != nil {
		path = g.Config
	}
	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}
	if path == "" {
		return config.LoadOrCreate()
	}
	return config.LoadOrCreateAt(path)
}

// openStore opens the configured database, runs migrations, and returns a
// ready-to-use store and the underlying *sql.DB.
func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLiteStore, *sql.DB, error) {
	dbPath, err := cfg.Storage.DatabasePath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve database path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	runner := storage.NewMigrationRunner(db)
	if err := runner.Run(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, db, nil
}

// withStore loads config, opens the store, and runs fn against both.
func withStore(g *GlobalFlags, fn func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore, db *sql.DB) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return fn(ctx, cfg, store, db)
}

// newLogger builds the command logger. Logs go to stderr so stdout stays
// parseable.
func newLogger(cfg *config.Config, g *GlobalFlags) *slog.Logger {
	lc := cfg.Logging
	if g != nil && g.Verbose {
		lc.Level = "debug"
	}
	return logging.New(lc, os.Stderr)
}

// buildPipeline wires the prediction engine and preloader from config.
func buildPipeline(cfg *config.Config, store prediction.HistoryStore, prober preload.Prober, logger *slog.Logger) (*prediction.Engine, *preload.Preloader) {
	engine := prediction.NewEngine(store, nil, prediction.WithLogger(logger))

	pc := cfg.Preloading
	preloader := preload.NewPreloader(prober,
		preload.WithPredictor(engine),
		preload.WithSensor(preload.NewStaticSensor(pc)),
		preload.WithDenylist(preload.NewDenylist(cfg.Privacy.DenylistDomains)),
		preload.WithHostLimiter(preload.NewHostLimiter(pc.HostRatePerMinute, pc.HostBurst, nil)),
		preload.WithTimeouts(
			time.Duration(pc.ResolveTimeoutMS)*time.Millisecond,
			time.Duration(pc.WarmTimeoutMS)*time.Millisecond,
		),
		preload.WithLogger(logger),
	)
	return engine, preloader
}

// predictionOptions returns Options seeded from the prediction config section.
func predictionOptions(cfg *config.Config) prediction.Options {
	return prediction.Options{
		MaxPredictions:  cfg.Prediction.MaxPredictions,
		MinConfidence:   cfg.Prediction.MinConfidence,
		TimeWindow:      cfg.Prediction.TimeWindow(),
		IncludeMetadata: cfg.Prediction.IncludeMetadata,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// formatDurationHuman formats a duration into a human-readable string like "30 days".
func formatDurationHuman(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteByte('-')
	}
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
