package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the walletctl YAML configuration.
type Config struct {
	// RelayURL is the websocket relay endpoint.
	RelayURL string `yaml:"relay_url"`
	// MarketplaceURL is the offer marketplace API base URL. Optional; when
	// empty only raw offer documents can be settled.
	MarketplaceURL string `yaml:"marketplace_url"`
	// Database is the SQLite file backing persisted session state. Empty
	// keeps state in memory for the life of the process.
	Database string `yaml:"database"`
	// Host scopes the persisted state the way an embedding surface would.
	Host string `yaml:"host"`
	// Listen is the HTTP API bind address used by serve.
	Listen string `yaml:"listen"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Mobile disables injected-provider routing.
	Mobile bool `yaml:"mobile"`
}

func defaultConfig() Config {
	return Config{
		RelayURL: "wss://relay.walletconnect.com",
		Host:     "localhost",
		Listen:   "127.0.0.1:8337",
		LogLevel: "info",
	}
}

// loadConfig reads path when given, otherwise returns defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.RelayURL == "" {
		return cfg, fmt.Errorf("config %s: relay_url is required", path)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
