package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/store"
)

// LocalReader is the read side of the local store the exporter needs
type LocalReader interface {
	ListDiagrams(ctx context.Context) []store.Diagram
	ListCollections(ctx context.Context) []store.TemplateCollection
	ListFavorites(ctx context.Context) []store.FavoriteTemplate
	GetSetting(ctx context.Context, key string) string
	ListSettings(ctx context.Context, prefix string) map[string]string
	LastSyncAt(ctx context.Context) (int64, bool)
}

// LocalApplier is the transactional write side the importer needs
type LocalApplier interface {
	Apply(ctx context.Context, fn func(ctx context.Context, w store.Writer) error) error
}

// ErrMalformedResponse is returned when the server answer lacks required fields
var ErrMalformedResponse = errors.New("malformed sync response")

// Exporter turns local state into a full sync request
type Exporter struct {
	local  LocalReader
	logger *loggy.Logger
}

// NewExporter creates a new exporter
func NewExporter(local LocalReader, logger *loggy.Logger) *Exporter {
	return &Exporter{local: local, logger: logger}
}

// Export reads the whole local store. It has no side effects.
func (e *Exporter) Export(ctx context.Context) (*FullSyncRequest, error) {
	var checkpoint *int64
	if at, ok := e.local.LastSyncAt(ctx); ok {
		checkpoint = &at
	}

	diagrams := e.local.ListDiagrams(ctx)
	diagramDtos := make([]DiagramDto, 0, len(diagrams))
	for _, d := range diagrams {
		diagramDtos = append(diagramDtos, DiagramDto{
			ClientID:        d.ID,
			Name:            d.Name,
			Code:            d.Code,
			ClientTimestamp: d.UpdatedAt,
			Settings:        d.Settings,
		})
	}

	collections := e.local.ListCollections(ctx)
	collectionDtos := make([]TemplateCollectionDto, 0, len(collections))
	for _, c := range collections {
		collectionDtos = append(collectionDtos, collectionToDto(c))
	}

	favorites := e.local.ListFavorites(ctx)
	favoriteDtos := make([]FavoriteTemplateDto, 0, len(favorites))
	for _, f := range favorites {
		favoriteDtos = append(favoriteDtos, FavoriteTemplateDto{TemplateID: f.TemplateID, ClientTimestamp: f.Timestamp})
	}

	settings := &SettingsDto{
		MermaidConfig: blobToJSON(e.local.GetSetting(ctx, store.KeyMermaidConfig)),
		ThemeSettings: blobToJSON(e.local.GetSetting(ctx, store.KeyThemeSettings)),
		KeyValueStore: map[string]string{},
	}
	for key, value := range e.local.ListSettings(ctx, store.SettingsPrefix) {
		if store.IsSyncedKey(key) {
			settings.KeyValueStore[key] = value
		}
	}

	e.logger.Debug("Exported local state",
		"diagrams", len(diagramDtos),
		"collections", len(collectionDtos),
		"favorites", len(favoriteDtos),
		"settings", len(settings.KeyValueStore),
		"first_sync", checkpoint == nil,
	)

	return &FullSyncRequest{
		Diagrams:  DiagramsSection{Diagrams: diagramDtos, LastSyncAt: checkpoint},
		Templates: TemplatesSection{Collections: collectionDtos, Favorites: favoriteDtos, LastSyncAt: checkpoint},
		Settings:  SettingsSection{Settings: settings, LastSyncAt: checkpoint},
	}, nil
}

func collectionToDto(c store.TemplateCollection) TemplateCollectionDto {
	templateIDs := c.TemplateIDs
	if templateIDs == nil {
		templateIDs = []string{}
	}

	customs := make([]CustomTemplateDto, 0, len(c.CustomTemplates))
	for _, t := range c.CustomTemplates {
		customs = append(customs, CustomTemplateDto{
			ClientID:        t.ID,
			Name:            t.Name,
			Code:            t.Code,
			ClientTimestamp: t.UpdatedAt,
		})
	}

	return TemplateCollectionDto{
		ClientID:        c.ID,
		Name:            c.Name,
		TemplateIDs:     templateIDs,
		CustomTemplates: customs,
		ClientTimestamp: c.UpdatedAt,
	}
}

// blobToJSON passes stored JSON through and quotes anything else
func blobToJSON(value string) json.RawMessage {
	if value == "" {
		return nil
	}
	if json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(value)
	return quoted
}

func isEmptyJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Importer writes a server response into the local store
type Importer struct {
	local  LocalApplier
	logger *loggy.Logger
}

// NewImporter creates a new importer
func NewImporter(local LocalApplier, logger *loggy.Logger) *Importer {
	return &Importer{local: local, logger: logger}
}

// Import applies resp in a single transaction. Diagrams and collections are
// upserted by ID and never deleted; favorites converge to the server's set;
// settings keys are upserted without pruning. The checkpoint is written last
// and never moves backwards.
func (i *Importer) Import(ctx context.Context, resp *FullSyncResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if resp.SyncedAt <= 0 {
		return fmt.Errorf("%w: missing syncedAt", ErrMalformedResponse)
	}

	return i.local.Apply(ctx, func(ctx context.Context, w store.Writer) error {
		if err := i.importDiagrams(ctx, w, resp.Diagrams.Diagrams); err != nil {
			return err
		}
		if err := i.importCollections(ctx, w, resp.Templates.Collections); err != nil {
			return err
		}
		if err := i.importFavorites(ctx, w, resp.Templates.Favorites); err != nil {
			return err
		}
		if err := i.importSettings(ctx, w, resp.Settings.Settings); err != nil {
			return err
		}
		return i.advanceCheckpoint(ctx, w, resp.SyncedAt)
	})
}

func (i *Importer) importDiagrams(ctx context.Context, w store.Writer, dtos []DiagramDto) error {
	for _, dto := range dtos {
		if dto.ClientID == "" {
			i.logger.Warn("Skipping diagram without client id", "name", dto.Name)
			continue
		}
		d := store.Diagram{
			ID:        dto.ClientID,
			Name:      dto.Name,
			Code:      dto.Code,
			UpdatedAt: dto.ClientTimestamp,
		}
		if !isEmptyJSON(dto.Settings) {
			d.Settings = dto.Settings
		}
		if err := w.PutDiagram(ctx, d); err != nil {
			return fmt.Errorf("importing diagram %s: %w", dto.ClientID, err)
		}
	}
	return nil
}

func (i *Importer) importCollections(ctx context.Context, w store.Writer, dtos []TemplateCollectionDto) error {
	for _, dto := range dtos {
		if dto.ClientID == "" {
			i.logger.Warn("Skipping collection without client id", "name", dto.Name)
			continue
		}

		createdAt := dto.ClientTimestamp
		existing, err := w.GetCollection(ctx, dto.ClientID)
		if err != nil {
			return fmt.Errorf("reading collection %s: %w", dto.ClientID, err)
		}
		if existing != nil {
			createdAt = existing.CreatedAt
		}

		customs := make([]store.CustomTemplate, 0, len(dto.CustomTemplates))
		for _, t := range dto.CustomTemplates {
			templateCreatedAt, ok, err := w.GetCustomTemplateCreatedAt(ctx, t.ClientID)
			if err != nil {
				return fmt.Errorf("reading custom template %s: %w", t.ClientID, err)
			}
			if !ok {
				templateCreatedAt = t.ClientTimestamp
			}
			customs = append(customs, store.CustomTemplate{
				ID:        t.ClientID,
				Name:      t.Name,
				Code:      t.Code,
				CreatedAt: templateCreatedAt,
				UpdatedAt: t.ClientTimestamp,
			})
		}

		templateIDs := dto.TemplateIDs
		if templateIDs == nil {
			templateIDs = []string{}
		}

		c := store.TemplateCollection{
			ID:              dto.ClientID,
			Name:            dto.Name,
			TemplateIDs:     templateIDs,
			CustomTemplates: customs,
			CreatedAt:       createdAt,
			UpdatedAt:       dto.ClientTimestamp,
		}
		if err := w.PutCollection(ctx, c); err != nil {
			return fmt.Errorf("importing collection %s: %w", dto.ClientID, err)
		}
	}
	return nil
}

func (i *Importer) importFavorites(ctx context.Context, w store.Writer, dtos []FavoriteTemplateDto) error {
	local, err := w.ListFavorites(ctx)
	if err != nil {
		return fmt.Errorf("reading favorites: %w", err)
	}

	localSet := make(map[string]bool, len(local))
	for _, f := range local {
		localSet[f.TemplateID] = true
	}

	serverSet := make(map[string]bool, len(dtos))
	for _, dto := range dtos {
		if dto.TemplateID == "" || serverSet[dto.TemplateID] {
			continue
		}
		serverSet[dto.TemplateID] = true
		if localSet[dto.TemplateID] {
			continue
		}
		if err := w.AddFavorite(ctx, store.FavoriteTemplate{TemplateID: dto.TemplateID, Timestamp: dto.ClientTimestamp}); err != nil {
			return fmt.Errorf("adding favorite %s: %w", dto.TemplateID, err)
		}
	}

	for _, f := range local {
		if serverSet[f.TemplateID] {
			continue
		}
		if err := w.RemoveFavorite(ctx, f.TemplateID); err != nil {
			return fmt.Errorf("removing favorite %s: %w", f.TemplateID, err)
		}
	}

	return nil
}

func (i *Importer) importSettings(ctx context.Context, w store.Writer, settings *SettingsDto) error {
	if settings == nil {
		return nil
	}

	if !isEmptyJSON(settings.MermaidConfig) {
		if err := w.SetSetting(ctx, store.KeyMermaidConfig, string(settings.MermaidConfig)); err != nil {
			return fmt.Errorf("importing mermaid config: %w", err)
		}
	}

	if !isEmptyJSON(settings.ThemeSettings) {
		if err := w.SetSetting(ctx, store.KeyThemeSettings, string(settings.ThemeSettings)); err != nil {
			return fmt.Errorf("importing theme settings: %w", err)
		}
	}

	for key, value := range settings.KeyValueStore {
		namespaced := store.NamespacedKey(key)
		if !store.IsSyncedKey(namespaced) {
			i.logger.Warn("Ignoring reserved settings key from server", "key", key)
			continue
		}
		if err := w.SetSetting(ctx, namespaced, value); err != nil {
			return fmt.Errorf("importing setting %s: %w", namespaced, err)
		}
	}

	return nil
}

func (i *Importer) advanceCheckpoint(ctx context.Context, w store.Writer, syncedAt int64) error {
	raw, err := w.GetSetting(ctx, store.KeyLastSyncAt)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}

	if current, ok := store.ParseCheckpoint(i.logger, raw); ok && syncedAt < current {
		i.logger.Warn("Server checkpoint is older than the local one, keeping local", "local", current, "server", syncedAt)
		return nil
	}

	if err := w.SetSetting(ctx, store.KeyLastSyncAt, store.FormatCheckpoint(syncedAt)); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}

	return nil
}
