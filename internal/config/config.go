package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/foresight/config.yaml"

// Config holds all foresight configuration.
type Config struct {
	Prediction PredictionConfig `yaml:"prediction"`
	Preloading PreloadingConfig `yaml:"preloading"`
	Privacy    PrivacyConfig    `yaml:"privacy"`
	Storage    StorageConfig    `yaml:"storage"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PredictionConfig holds prediction engine defaults.
type PredictionConfig struct {
	MaxPredictions  int     `yaml:"max_predictions"`
	MinConfidence   float64 `yaml:"min_confidence"`
	TimeWindowDays  int     `yaml:"time_window_days"`
	IncludeMetadata bool    `yaml:"include_metadata"`
}

// TimeWindow returns the history window as a duration.
func (p PredictionConfig) TimeWindow() time.Duration {
	return time.Duration(p.TimeWindowDays) * 24 * time.Hour
}

// PreloadingConfig carries both the user-facing preload settings and the
// static network description used when no live sensor is available.
type PreloadingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Consent           bool    `yaml:"consent"`
	WiFiOnly          bool    `yaml:"wifi_only"`
	MinConfidence     float64 `yaml:"min_confidence"`
	MaxConnections    int     `yaml:"max_connections"`
	ResolveTimeoutMS  int     `yaml:"resolve_timeout_ms"`
	WarmTimeoutMS     int     `yaml:"warm_timeout_ms"`
	HostRatePerMinute int     `yaml:"host_rate_per_minute"`
	HostBurst         int     `yaml:"host_burst"`
	Metered           bool    `yaml:"metered"`
	Unrestricted      bool    `yaml:"unrestricted"`
	Mobile            bool    `yaml:"mobile"`
}

// PrivacyConfig lists domains that are never preloaded.
type PrivacyConfig struct {
	DenylistDomains []string `yaml:"denylist_domains"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path       string `yaml:"path"`
	SQLiteFile string `yaml:"sqlite_file"`
}

// DatabasePath joins the storage directory and file name, expanding ~.
func (s StorageConfig) DatabasePath() (string, error) {
	dir, err := expandPath(s.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.SQLiteFile), nil
}

// DaemonConfig is the daemon listen address.
type DaemonConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the daemon listen address.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the engines cannot work with.
func (c *Config) Validate() error {
	if c.Prediction.MinConfidence < 0 || c.Prediction.MinConfidence > 1 {
		return fmt.Errorf("prediction.min_confidence must be within [0,1], got %v", c.Prediction.MinConfidence)
	}
	if c.Preloading.MinConfidence < 0 || c.Preloading.MinConfidence > 1 {
		return fmt.Errorf("preloading.min_confidence must be within [0,1], got %v", c.Preloading.MinConfidence)
	}
	if c.Preloading.MaxConnections < 0 {
		return fmt.Errorf("preloading.max_connections must not be negative")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
