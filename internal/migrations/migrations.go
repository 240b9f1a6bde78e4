// Package migrations embeds the SQLite schema of the local store
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql
var migrationsFS embed.FS

// SourceName is the name the embedded source is registered under with migrate
const SourceName = "iofs"

// GetSource creates a migrate source driver over the embedded sql directory
func GetSource() (source.Driver, error) {
	sub, err := fs.Sub(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded migrations: %w", err)
	}

	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	return src, nil
}

// Files lists the embedded migration file names
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
