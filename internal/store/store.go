package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

// Store is the facade the editor and the sync subsystem talk to. Its methods
// never return errors: reads degrade to empty values and failed writes are
// logged and dropped, so callers keep working against a broken or missing
// database. Apply is the one exception, see its doc.
type Store struct {
	db     *sql.DB
	repo   Repository
	logger *loggy.Logger

	mu        sync.RWMutex
	observers map[int]func(Change)
	nextID    int
}

// New creates a Store over an open, migrated database
func New(db *sql.DB, logger *loggy.Logger) *Store {
	s := newStore(logger)
	s.db = db
	s.repo = NewSQLRepository(db, logger)
	return s
}

// Unavailable returns a Store with no backing storage. It behaves as a
// permanently empty store and drops every write.
func Unavailable(logger *loggy.Logger) *Store {
	logger.Warn("Local store unavailable, running without persistence")
	return newStore(logger)
}

func newStore(logger *loggy.Logger) *Store {
	return &Store{
		logger:    logger,
		observers: make(map[int]func(Change)),
	}
}

// Available reports whether the store has working storage behind it
func (s *Store) Available() bool {
	return s.repo != nil
}

// Repository exposes the error-returning layer for callers that must see
// failures (account settings, status reporting). Nil when unavailable.
func (s *Store) Repository() Repository {
	return s.repo
}

// Subscribe registers fn to receive every committed change. The returned
// function removes the registration.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) emit(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	s.mu.RLock()
	observers := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range observers {
			fn(c)
		}
	}
}

func (s *Store) readFailed(what string, err error) {
	s.logger.Warn("Local store read failed", "op", what, "error", err)
}

// write runs fn when storage is present and emits change on success
func (s *Store) write(what string, change Change, fn func() error) {
	if s.repo == nil {
		s.logger.Debug("Local store unavailable, dropping write", "op", what)
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn("Local store write failed", "op", what, "id", change.ID, "error", err)
		return
	}
	change.Source = SourceLocal
	s.emit(change)
}

// GetDiagram returns the diagram with id, or nil
func (s *Store) GetDiagram(ctx context.Context, id string) *Diagram {
	if s.repo == nil {
		return nil
	}
	d, err := s.repo.GetDiagram(ctx, id)
	if err != nil {
		s.readFailed("get diagram", err)
		return nil
	}
	return d
}

// ListDiagrams returns all diagrams, most recently updated first
func (s *Store) ListDiagrams(ctx context.Context) []Diagram {
	if s.repo == nil {
		return []Diagram{}
	}
	diagrams, err := s.repo.ListDiagrams(ctx)
	if err != nil {
		s.readFailed("list diagrams", err)
		return []Diagram{}
	}
	return diagrams
}

// PutDiagram upserts d
func (s *Store) PutDiagram(ctx context.Context, d Diagram) {
	s.write("put diagram", Change{Kind: KindDiagrams, ID: d.ID, Op: OpPut}, func() error {
		return s.repo.UpsertDiagram(ctx, &d)
	})
}

// DeleteDiagram removes the diagram with id
func (s *Store) DeleteDiagram(ctx context.Context, id string) {
	s.write("delete diagram", Change{Kind: KindDiagrams, ID: id, Op: OpDelete}, func() error {
		return s.repo.DeleteDiagram(ctx, id)
	})
}

// GetCollection returns the collection with id, or nil
func (s *Store) GetCollection(ctx context.Context, id string) *TemplateCollection {
	if s.repo == nil {
		return nil
	}
	c, err := s.repo.GetCollection(ctx, id)
	if err != nil {
		s.readFailed("get collection", err)
		return nil
	}
	return c
}

// ListCollections returns all collections with their custom templates
func (s *Store) ListCollections(ctx context.Context) []TemplateCollection {
	if s.repo == nil {
		return []TemplateCollection{}
	}
	collections, err := s.repo.ListCollections(ctx)
	if err != nil {
		s.readFailed("list collections", err)
		return []TemplateCollection{}
	}
	return collections
}

// PutCollection upserts c, replacing its custom templates atomically
func (s *Store) PutCollection(ctx context.Context, c TemplateCollection) {
	s.write("put collection", Change{Kind: KindCollections, ID: c.ID, Op: OpPut}, func() error {
		return database.WithTransaction(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
			return NewSQLRepository(tx, s.logger).UpsertCollection(ctx, &c)
		})
	})
}

// DeleteCollection removes the collection with id and its custom templates
func (s *Store) DeleteCollection(ctx context.Context, id string) {
	s.write("delete collection", Change{Kind: KindCollections, ID: id, Op: OpDelete}, func() error {
		return database.WithTransaction(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
			return NewSQLRepository(tx, s.logger).DeleteCollection(ctx, id)
		})
	})
}

// ListFavorites returns all favorites
func (s *Store) ListFavorites(ctx context.Context) []FavoriteTemplate {
	if s.repo == nil {
		return []FavoriteTemplate{}
	}
	favorites, err := s.repo.ListFavorites(ctx)
	if err != nil {
		s.readFailed("list favorites", err)
		return []FavoriteTemplate{}
	}
	return favorites
}

// IsFavorite reports whether templateID is a favorite
func (s *Store) IsFavorite(ctx context.Context, templateID string) bool {
	for _, f := range s.ListFavorites(ctx) {
		if f.TemplateID == templateID {
			return true
		}
	}
	return false
}

// AddFavorite marks templateID as favorite
func (s *Store) AddFavorite(ctx context.Context, f FavoriteTemplate) {
	s.write("add favorite", Change{Kind: KindFavorites, ID: f.TemplateID, Op: OpPut}, func() error {
		return s.repo.AddFavorite(ctx, f)
	})
}

// RemoveFavorite unmarks templateID
func (s *Store) RemoveFavorite(ctx context.Context, templateID string) {
	s.write("remove favorite", Change{Kind: KindFavorites, ID: templateID, Op: OpDelete}, func() error {
		return s.repo.RemoveFavorite(ctx, templateID)
	})
}

// GetSetting returns the value stored under key, "" when missing
func (s *Store) GetSetting(ctx context.Context, key string) string {
	if s.repo == nil {
		return ""
	}
	value, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		s.readFailed("get setting", err)
		return ""
	}
	return value
}

// ListSettings returns every setting under prefix
func (s *Store) ListSettings(ctx context.Context, prefix string) map[string]string {
	if s.repo == nil {
		return map[string]string{}
	}
	settings, err := s.repo.GetSettings(ctx, prefix)
	if err != nil {
		s.readFailed("list settings", err)
		return map[string]string{}
	}
	return settings
}

// SetSetting stores value under key
func (s *Store) SetSetting(ctx context.Context, key, value string) {
	s.write("set setting", Change{Kind: KindSettings, ID: key, Op: OpPut}, func() error {
		return s.repo.SetSetting(ctx, key, value)
	})
}

// DeleteSetting removes key
func (s *Store) DeleteSetting(ctx context.Context, key string) {
	s.write("delete setting", Change{Kind: KindSettings, ID: key, Op: OpDelete}, func() error {
		return s.repo.DeleteSetting(ctx, key)
	})
}

// LastSyncAt returns the sync checkpoint, if one has been recorded
func (s *Store) LastSyncAt(ctx context.Context) (int64, bool) {
	return ParseCheckpoint(s.logger, s.GetSetting(ctx, KeyLastSyncAt))
}

// ParseCheckpoint decodes a stored checkpoint. Empty or malformed values count
// as "never synced".
func ParseCheckpoint(logger *loggy.Logger, raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn("Ignoring malformed sync checkpoint", "value", raw, "error", err)
		return 0, false
	}
	return v, true
}

// FormatCheckpoint encodes a checkpoint for storage
func FormatCheckpoint(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Writer is the transactional view handed to Apply callbacks
type Writer interface {
	GetCollection(ctx context.Context, id string) (*TemplateCollection, error)
	GetCustomTemplateCreatedAt(ctx context.Context, id string) (int64, bool, error)
	ListFavorites(ctx context.Context) ([]FavoriteTemplate, error)
	GetSetting(ctx context.Context, key string) (string, error)

	PutDiagram(ctx context.Context, d Diagram) error
	PutCollection(ctx context.Context, c TemplateCollection) error
	AddFavorite(ctx context.Context, f FavoriteTemplate) error
	RemoveFavorite(ctx context.Context, templateID string) error
	SetSetting(ctx context.Context, key, value string) error
}

type txWriter struct {
	repo    *SQLRepository
	changes []Change
}

func (w *txWriter) record(kind Kind, id string, op Op) {
	w.changes = append(w.changes, Change{Kind: kind, ID: id, Op: op, Source: SourceSync})
}

func (w *txWriter) GetCollection(ctx context.Context, id string) (*TemplateCollection, error) {
	return w.repo.GetCollection(ctx, id)
}

func (w *txWriter) GetCustomTemplateCreatedAt(ctx context.Context, id string) (int64, bool, error) {
	return w.repo.GetCustomTemplateCreatedAt(ctx, id)
}

func (w *txWriter) ListFavorites(ctx context.Context) ([]FavoriteTemplate, error) {
	return w.repo.ListFavorites(ctx)
}

func (w *txWriter) GetSetting(ctx context.Context, key string) (string, error) {
	return w.repo.GetSetting(ctx, key)
}

func (w *txWriter) PutDiagram(ctx context.Context, d Diagram) error {
	if err := w.repo.UpsertDiagram(ctx, &d); err != nil {
		return err
	}
	w.record(KindDiagrams, d.ID, OpPut)
	return nil
}

func (w *txWriter) PutCollection(ctx context.Context, c TemplateCollection) error {
	if err := w.repo.UpsertCollection(ctx, &c); err != nil {
		return err
	}
	w.record(KindCollections, c.ID, OpPut)
	return nil
}

func (w *txWriter) AddFavorite(ctx context.Context, f FavoriteTemplate) error {
	if err := w.repo.AddFavorite(ctx, f); err != nil {
		return err
	}
	w.record(KindFavorites, f.TemplateID, OpPut)
	return nil
}

func (w *txWriter) RemoveFavorite(ctx context.Context, templateID string) error {
	if err := w.repo.RemoveFavorite(ctx, templateID); err != nil {
		return err
	}
	w.record(KindFavorites, templateID, OpDelete)
	return nil
}

func (w *txWriter) SetSetting(ctx context.Context, key, value string) error {
	if err := w.repo.SetSetting(ctx, key, value); err != nil {
		return err
	}
	w.record(KindSettings, key, OpPut)
	return nil
}

// Apply runs fn inside one transaction and, after commit, emits the changes it
// made with Source set to SourceSync. A failing write rolls everything back and
// its error is returned. With no storage behind the store, fn is skipped and nil
// is returned after a warning.
func (s *Store) Apply(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	if s.db == nil {
		s.logger.Warn("Local store unavailable, skipping apply")
		return nil
	}

	var w *txWriter
	err := database.WithTransaction(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		w = &txWriter{repo: NewSQLRepository(tx, s.logger)}
		return fn(ctx, w)
	})
	if err != nil {
		return fmt.Errorf("applying store transaction: %w", err)
	}

	s.emit(w.changes...)
	return nil
}
