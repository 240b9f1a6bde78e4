package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
)

var collectionColumns = []string{"id", "name", "template_ids", "created_at", "updated_at"}

var customTemplateColumns = []string{"id", "collection_id", "name", "code", "position", "created_at", "updated_at"}

// GetCollection retrieves a collection and its custom templates
func (r *SQLRepository) GetCollection(ctx context.Context, id string) (*TemplateCollection, error) {
	query, args, err := squirrel.Select(collectionColumns...).
		From("template_collections").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get collection query: %w", err)
	}

	c, err := scanCollection(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("executing get collection query: %w", err)
	}

	templates, err := r.listCustomTemplates(ctx, squirrel.Eq{"collection_id": id})
	if err != nil {
		return nil, err
	}
	c.CustomTemplates = templates[id]
	if c.CustomTemplates == nil {
		c.CustomTemplates = []CustomTemplate{}
	}

	return c, nil
}

// ListCollections retrieves every collection with its custom templates, oldest first
func (r *SQLRepository) ListCollections(ctx context.Context) ([]TemplateCollection, error) {
	query, args, err := squirrel.Select(collectionColumns...).
		From("template_collections").
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list collections query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list collections query: %w", err)
	}
	defer rows.Close()

	collections := []TemplateCollection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		collections = append(collections, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection rows: %w", err)
	}
	rows.Close()

	if len(collections) == 0 {
		return collections, nil
	}

	templates, err := r.listCustomTemplates(ctx, nil)
	if err != nil {
		return nil, err
	}

	for i := range collections {
		collections[i].CustomTemplates = templates[collections[i].ID]
		if collections[i].CustomTemplates == nil {
			collections[i].CustomTemplates = []CustomTemplate{}
		}
	}

	return collections, nil
}

func scanCollection(row rowScanner) (*TemplateCollection, error) {
	var c TemplateCollection
	var templateIDs string
	if err := row.Scan(&c.ID, &c.Name, &templateIDs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	c.TemplateIDs = []string{}
	if templateIDs != "" {
		if err := json.Unmarshal([]byte(templateIDs), &c.TemplateIDs); err != nil {
			return nil, fmt.Errorf("decoding template ids of %s: %w", c.ID, err)
		}
	}

	return &c, nil
}

// listCustomTemplates returns custom templates grouped by collection ID
func (r *SQLRepository) listCustomTemplates(ctx context.Context, where squirrel.Sqlizer) (map[string][]CustomTemplate, error) {
	q := squirrel.Select(customTemplateColumns...).
		From("custom_templates").
		OrderBy("collection_id", "position")
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list custom templates query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list custom templates query: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]CustomTemplate)
	for rows.Next() {
		var t CustomTemplate
		var collectionID string
		var position int
		if err := rows.Scan(&t.ID, &collectionID, &t.Name, &t.Code, &position, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning custom template row: %w", err)
		}
		grouped[collectionID] = append(grouped[collectionID], t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating custom template rows: %w", err)
	}

	return grouped, nil
}

// GetCustomTemplateCreatedAt looks up the creation time of a custom template in any collection
func (r *SQLRepository) GetCustomTemplateCreatedAt(ctx context.Context, id string) (int64, bool, error) {
	query, args, err := squirrel.Select("created_at").
		From("custom_templates").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("building get custom template query: %w", err)
	}

	var createdAt int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("executing get custom template query: %w", err)
	}

	return createdAt, true, nil
}

// UpsertCollection writes the collection row and replaces its custom templates.
// Run it inside a transaction to make the replacement atomic.
func (r *SQLRepository) UpsertCollection(ctx context.Context, c *TemplateCollection) error {
	templateIDs := c.TemplateIDs
	if templateIDs == nil {
		templateIDs = []string{}
	}
	encoded, err := json.Marshal(templateIDs)
	if err != nil {
		return fmt.Errorf("encoding template ids: %w", err)
	}

	query, args, err := squirrel.Insert("template_collections").
		Columns(collectionColumns...).
		Values(c.ID, c.Name, string(encoded), c.CreatedAt, c.UpdatedAt).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, template_ids = excluded.template_ids, created_at = excluded.created_at, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert collection query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing upsert collection query: %w", err)
	}

	if err := r.deleteCustomTemplates(ctx, c.ID); err != nil {
		return err
	}

	if len(c.CustomTemplates) == 0 {
		return nil
	}

	insert := squirrel.Insert("custom_templates").Columns(customTemplateColumns...)
	for i, t := range c.CustomTemplates {
		insert = insert.Values(t.ID, c.ID, t.Name, t.Code, i, t.CreatedAt, t.UpdatedAt)
	}
	// A template moved between collections keeps its ID
	insert = insert.Suffix("ON CONFLICT(id) DO UPDATE SET collection_id = excluded.collection_id, name = excluded.name, code = excluded.code, position = excluded.position, created_at = excluded.created_at, updated_at = excluded.updated_at")

	query, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("building insert custom templates query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing insert custom templates query: %w", err)
	}

	return nil
}

func (r *SQLRepository) deleteCustomTemplates(ctx context.Context, collectionID string) error {
	query, args, err := squirrel.Delete("custom_templates").
		Where(squirrel.Eq{"collection_id": collectionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete custom templates query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete custom templates query: %w", err)
	}

	return nil
}

// DeleteCollection deletes a collection and the custom templates it owns
func (r *SQLRepository) DeleteCollection(ctx context.Context, id string) error {
	if err := r.deleteCustomTemplates(ctx, id); err != nil {
		return err
	}

	query, args, err := squirrel.Delete("template_collections").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete collection query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete collection query: %w", err)
	}

	return nil
}

// ListFavorites retrieves every favorite, oldest first
func (r *SQLRepository) ListFavorites(ctx context.Context) ([]FavoriteTemplate, error) {
	query, args, err := squirrel.Select("template_id", "timestamp").
		From("favorite_templates").
		OrderBy("timestamp", "template_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list favorites query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list favorites query: %w", err)
	}
	defer rows.Close()

	favorites := []FavoriteTemplate{}
	for rows.Next() {
		var f FavoriteTemplate
		if err := rows.Scan(&f.TemplateID, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning favorite row: %w", err)
		}
		favorites = append(favorites, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating favorite rows: %w", err)
	}

	return favorites, nil
}

// AddFavorite marks a template as favorite. Re-adding keeps the original timestamp.
func (r *SQLRepository) AddFavorite(ctx context.Context, f FavoriteTemplate) error {
	query, args, err := squirrel.Insert("favorite_templates").
		Columns("template_id", "timestamp").
		Values(f.TemplateID, f.Timestamp).
		Suffix("ON CONFLICT(template_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("building add favorite query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing add favorite query: %w", err)
	}

	return nil
}

// RemoveFavorite unmarks a template
func (r *SQLRepository) RemoveFavorite(ctx context.Context, templateID string) error {
	query, args, err := squirrel.Delete("favorite_templates").
		Where(squirrel.Eq{"template_id": templateID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building remove favorite query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing remove favorite query: %w", err)
	}

	return nil
}
