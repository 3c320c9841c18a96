// Package database provides the embedded SQLite client and migration
// utilities backing Conductor's task queue and interrupted-execution
// registry.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the SQLite connection used by every store in the
// queue/interrupted/concurrency packages.
type Client struct {
	db *sql.DB
}

// DB returns the underlying connection for stores that need to run
// their own statements or transactions.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens the SQLite file at cfg.Path, tunes the connection
// pool, and applies pending migrations before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db}, nil
}

// NewClientFromDB wraps an already-open connection, useful for tests
// that open an in-memory SQLite database directly.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Migrate applies every pending embedded migration to db. Exported so
// package tests across conductor can stand up a fully-schema'd
// in-memory SQLite database without duplicating the schema by hand.
func Migrate(db *sql.DB) error {
	return runMigrations(db)
}

// runMigrations applies every pending migration embedded under
// migrations/ using golang-migrate's sqlite3 + iofs drivers.
//
// Migration workflow:
//  1. Add pkg/database/migrations/NNNN_description.up.sql (+ .down.sql)
//  2. Files embedded into the binary at compile time via go:embed
//  3. Applied automatically on startup (this function)
func runMigrations(db *sql.DB) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found")
	}

	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// We must not call m.Close(), which also closes the database
	// driver and thus db.Close() on the shared *sql.DB — only the
	// migration source needs releasing here.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
