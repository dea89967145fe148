package cli

import (
	"io"

	"github.com/runnerr0/foresight/internal/preload"
)

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file (overrides $FORESIGHT_CONFIG)" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable debug logging"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand: show history stats, preload settings and daemon health.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// AddCommand: record a visit by hand.
type AddCommand struct {
	URL        string   `long:"url" description:"URL to record (required)"`
	Title      string   `long:"title" description:"Page title (required)"`
	Engagement float64  `long:"engagement" description:"Engagement score 0-100 (-1 for unknown)" default:"-1"`
	TimeSpent  string   `long:"time-spent" description:"Time spent on the page (e.g., 90s, 5m)"`
	Query      string   `long:"query" description:"Search query that led to the page"`
	Tabs       int      `long:"tabs" description:"Open tab count at visit time"`
	Topics     []string `long:"topic" description:"Topic tag (repeatable)"`

	globals *GlobalFlags
	version string
}

// PredictCommand: print ranked predictions for a browsing context.
type PredictCommand struct {
	URL           string   `long:"url" description:"Current page URL"`
	Query         string   `long:"query" description:"Current search query"`
	Tabs          int      `long:"tabs" description:"Current open tab count"`
	Recent        []string `long:"recent" description:"Recently visited URL (repeatable)"`
	Topics        []string `long:"topic" description:"Current page topic (repeatable)"`
	Preset        string   `long:"preset" description:"Preset: top | contextual | search | time"`
	Category      []string `long:"category" description:"Only include this category (repeatable)"`
	Limit         int      `long:"limit" description:"Maximum predictions (0 uses config)"`
	MinConfidence float64  `long:"min-confidence" description:"Minimum confidence 0-1 (-1 uses config)" default:"-1"`

	globals *GlobalFlags
	version string
}

// PreloadCommand: predict from a page and warm connections to the results.
type PreloadCommand struct {
	URL     string   `long:"url" description:"Current page URL (required)"`
	Recent  []string `long:"recent" description:"Recently visited URL (repeatable)"`
	Consent bool     `long:"consent" description:"Grant preload consent for this run"`

	globals *GlobalFlags
	version string
	prober  preload.Prober // injectable for testing; nil means real network
}

// FeedbackCommand: record whether a prediction was useful.
type FeedbackCommand struct {
	URL       string `long:"url" description:"Predicted URL (required)"`
	Useful    bool   `long:"useful" description:"The prediction was useful"`
	NotUseful bool   `long:"not-useful" description:"The prediction was not useful"`

	globals *GlobalFlags
	version string
}

// IngestCommand: start the foresight daemon (local HTTP service).
type IngestCommand struct {
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// PruneCommand: delete history older than a retention period.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Retention period (e.g., 30d)" default:"30d"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
	version string
}

// PurgeCommand: delete ALL foresight data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	in      io.Reader // confirmation input; nil means stdin
}
