package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/ulid"
)

// Repository is the error-returning data access layer under the Store facade.
// Implementations must treat "not found" as a nil result, not an error.
type Repository interface {
	GetDiagram(ctx context.Context, id string) (*Diagram, error)
	ListDiagrams(ctx context.Context) ([]Diagram, error)
	UpsertDiagram(ctx context.Context, d *Diagram) error
	DeleteDiagram(ctx context.Context, id string) error

	GetCollection(ctx context.Context, id string) (*TemplateCollection, error)
	ListCollections(ctx context.Context) ([]TemplateCollection, error)
	UpsertCollection(ctx context.Context, c *TemplateCollection) error
	DeleteCollection(ctx context.Context, id string) error

	ListFavorites(ctx context.Context) ([]FavoriteTemplate, error)
	AddFavorite(ctx context.Context, f FavoriteTemplate) error
	RemoveFavorite(ctx context.Context, templateID string) error

	GetSetting(ctx context.Context, key string) (string, error)
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// SQLRepository implements Repository over any database.DBTX, so the same
// code runs against the pool or inside a transaction.
type SQLRepository struct {
	db     database.DBTX
	logger *loggy.Logger
}

// NewSQLRepository creates a new SQL repository
func NewSQLRepository(db database.DBTX, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
	}
}

var diagramColumns = []string{"id", "name", "code", "settings", "updated_at"}

// GetDiagram retrieves a diagram by ID
func (r *SQLRepository) GetDiagram(ctx context.Context, id string) (*Diagram, error) {
	query, args, err := squirrel.Select(diagramColumns...).
		From("diagrams").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get diagram query: %w", err)
	}

	d, err := scanDiagram(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("executing get diagram query: %w", err)
	}

	return d, nil
}

// ListDiagrams retrieves all diagrams, most recently updated first
func (r *SQLRepository) ListDiagrams(ctx context.Context) ([]Diagram, error) {
	query, args, err := squirrel.Select(diagramColumns...).
		From("diagrams").
		OrderBy("updated_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list diagrams query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list diagrams query: %w", err)
	}
	defer rows.Close()

	diagrams := []Diagram{}
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning diagram row: %w", err)
		}
		diagrams = append(diagrams, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diagram rows: %w", err)
	}

	return diagrams, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiagram(row rowScanner) (*Diagram, error) {
	var d Diagram
	var settings sql.NullString
	if err := row.Scan(&d.ID, &d.Name, &d.Code, &settings, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if settings.Valid && settings.String != "" {
		d.Settings = json.RawMessage(settings.String)
	}
	return &d, nil
}

// UpsertDiagram inserts or replaces a diagram by ID
func (r *SQLRepository) UpsertDiagram(ctx context.Context, d *Diagram) error {
	var settings any
	if len(d.Settings) > 0 {
		settings = string(d.Settings)
	}

	query, args, err := squirrel.Insert("diagrams").
		Columns(diagramColumns...).
		Values(d.ID, d.Name, d.Code, settings, d.UpdatedAt).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, code = excluded.code, settings = excluded.settings, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert diagram query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing upsert diagram query: %w", err)
	}

	return nil
}

// DeleteDiagram deletes a diagram; deleting a missing diagram is not an error
func (r *SQLRepository) DeleteDiagram(ctx context.Context, id string) error {
	query, args, err := squirrel.Delete("diagrams").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete diagram query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete diagram query: %w", err)
	}

	return nil
}

// GetSetting retrieves a setting value by key, "" when missing
func (r *SQLRepository) GetSetting(ctx context.Context, key string) (string, error) {
	query, args, err := squirrel.Select("value").
		From("settings").
		Where(squirrel.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building get setting query: %w", err)
	}

	var value string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("executing get setting query: %w", err)
	}

	return value, nil
}

// GetSettings retrieves every setting whose key starts with prefix
func (r *SQLRepository) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	query, args, err := squirrel.Select("key", "value").
		From("settings").
		Where(squirrel.Like{"key": prefix + "%"}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get settings query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get settings query: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}

	return settings, nil
}

// SetSetting upserts a setting value
func (r *SQLRepository) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC()

	query, args, err := squirrel.Insert("settings").
		Columns("id", "key", "value", "created_at", "updated_at").
		Values(ulid.SettingID(), key, value, now, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building set setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing set setting query: %w", err)
	}

	return nil
}

// DeleteSetting deletes a setting
func (r *SQLRepository) DeleteSetting(ctx context.Context, key string) error {
	query, args, err := squirrel.Delete("settings").Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete setting query: %w", err)
	}

	return nil
}
