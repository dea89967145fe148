package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Prediction: PredictionConfig{
			MaxPredictions:  10,
			MinConfidence:   0.1,
			TimeWindowDays:  30,
			IncludeMetadata: true,
		},
		Preloading: PreloadingConfig{
			Enabled:           true,
			Consent:           false,
			WiFiOnly:          false,
			MinConfidence:     0.3,
			MaxConnections:    3,
			ResolveTimeoutMS:  2000,
			WarmTimeoutMS:     5000,
			HostRatePerMinute: 30,
			HostBurst:         5,
			Metered:           false,
			Unrestricted:      true,
			Mobile:            false,
		},
		Privacy: PrivacyConfig{
			DenylistDomains: DefaultDenylistDomains(),
		},
		Storage: StorageConfig{
			Path:       "~/.config/foresight",
			SQLiteFile: "foresight.db",
		},
		Daemon: DaemonConfig{
			Host: "127.0.0.1",
			Port: 8722,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
