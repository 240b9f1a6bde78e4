// Package database opens the local SQLite database and applies its schema
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tildaslashalef/mermaidnest/internal/config"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/migrations"
)

// ErrNotInitialized is returned when a nil database handle is used
var ErrNotInitialized = errors.New("database not initialized")

// DBTX is the subset of database/sql used by repositories.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the SQLite database described by cfg and verifies the connection
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	loggy.Info("Opening database", "path", cfg.Path)

	db, err := sql.Open("sqlite3", buildSQLiteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}
	db.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// buildSQLiteDSN builds a go-sqlite3 DSN with pragma parameters
func buildSQLiteDSN(cfg *config.DatabaseConfig) string {
	params := url.Values{}
	if cfg.BusyTimeout > 0 {
		params.Add("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	}
	if cfg.JournalMode != "" {
		params.Add("_journal_mode", cfg.JournalMode)
	}
	if cfg.SynchronousMode != "" {
		params.Add("_synchronous", cfg.SynchronousMode)
	}
	if cfg.CacheSize != 0 {
		params.Add("_cache_size", strconv.Itoa(cfg.CacheSize))
	}
	params.Add("_foreign_keys", strconv.FormatBool(cfg.ForeignKeys))

	if cfg.Path == ":memory:" || strings.HasPrefix(cfg.Path, "file::memory:") {
		return "file::memory:?" + params.Encode()
	}

	return fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode())
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic. Panics are rethrown.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	if db == nil {
		return ErrNotInitialized
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				loggy.Error("Failed to rollback transaction", "error", rbErr)
			}
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// newMigrate builds a migrate instance over the embedded schema. The returned
// source must be closed by the caller; migrate.Close is avoided because the
// sqlite3 driver would close db along with it.
func newMigrate(db *sql.DB) (*migrate.Migrate, func(), error) {
	if db == nil {
		return nil, nil, ErrNotInitialized
	}

	src, err := migrations.GetSource()
	if err != nil {
		return nil, nil, err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance(migrations.SourceName, src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, func() { _ = src.Close() }, nil
}

// RunMigrations applies all pending migrations
func RunMigrations(db *sql.DB) error {
	m, done, err := newMigrate(db)
	if err != nil {
		return err
	}
	defer done()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to apply migrations", "error", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	loggy.Debug("Database migration complete", "version", version, "dirty", dirty)
	return nil
}

// RevertMigrations reverts migrations back by the specified number of steps
func RevertMigrations(db *sql.DB, steps int) error {
	m, done, err := newMigrate(db)
	if err != nil {
		return err
	}
	defer done()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to revert migrations", "error", err)
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	loggy.Info("Database migration reversion complete", "version", version, "dirty", dirty)
	return nil
}

// SchemaVersion reports the applied migration version (0 when none)
func SchemaVersion(db *sql.DB) (uint, bool, error) {
	m, done, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	defer done()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
