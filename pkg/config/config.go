// Package config loads runtime settings from the environment and optional
// YAML registry profiles.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds CLI and service configuration.
type Config struct {
	LogLevel     string
	LogFormat    string
	StoreDriver  string
	StoreDSN     string
	RegistryFile string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("PEAC_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	logFormat := strings.ToLower(os.Getenv("PEAC_LOG_FORMAT"))
	if logFormat == "" {
		logFormat = "text"
	}

	driver := os.Getenv("PEAC_STORE_DRIVER")
	if driver == "" {
		driver = "memory"
	}

	dsn := os.Getenv("PEAC_STORE_DSN")
	if dsn == "" {
		switch driver {
		case "sqlite":
			dsn = "file:peac.db?cache=shared"
		case "postgres":
			dsn = "postgres://peac@localhost:5432/peac?sslmode=disable"
		case "redis":
			dsn = "redis://localhost:6379/0"
		}
	}

	return &Config{
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		StoreDriver:  driver,
		StoreDSN:     dsn,
		RegistryFile: os.Getenv("PEAC_REGISTRY_FILE"),
	}
}

// Level maps LogLevel onto slog. Unknown values fall back to Info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Logger builds a logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
