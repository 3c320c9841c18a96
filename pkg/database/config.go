package database

import (
	"fmt"
	"os"
	"time"
)

// Config holds database connection settings. Conductor uses a single
// embedded SQLite file as its relational store (spec §6: "single
// embedded relational store"), so there is no host/port/credentials
// surface — only the file path and pragma-driven pool tuning.
type Config struct {
	Path string

	MaxOpenConns    int
	ConnMaxIdleTime time.Duration

	// BusyTimeout is passed to SQLite's busy_timeout pragma so a writer
	// blocked behind another transaction's BEGIN IMMEDIATE lock waits
	// instead of failing immediately with SQLITE_BUSY.
	BusyTimeout time.Duration
}

// LoadConfigFromEnv loads database configuration from environment
// variables with production-ready defaults.
func LoadConfigFromEnv() (Config, error) {
	idleTime, err := parseDuration(getEnvOrDefault("CONDUCTOR_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONDUCTOR_DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	busyTimeout, err := parseDuration(getEnvOrDefault("CONDUCTOR_DB_BUSY_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONDUCTOR_DB_BUSY_TIMEOUT: %w", err)
	}

	cfg := Config{
		Path:            getEnvOrDefault("CONDUCTOR_DB_PATH", "conductor.db"),
		MaxOpenConns:    1,
		ConnMaxIdleTime: idleTime,
		BusyTimeout:     busyTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. MaxOpenConns is
// pinned to 1 by default: mattn/go-sqlite3 serializes writers at the
// file level anyway, and a single shared *sql.DB connection avoids
// SQLITE_BUSY churn between independent pool connections.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("CONDUCTOR_DB_PATH is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("CONDUCTOR_DB_MAX_OPEN_CONNS must be at least 1")
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
