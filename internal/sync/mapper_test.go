package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/mermaidnest/internal/config"
	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "sync.db"),
		BusyTimeout: 1000,
		JournalMode: "WAL",
		ForeignKeys: true,
	}
	db, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db))

	return db
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(newTestDB(t), loggy.Discard())
}

// echo sends req through JSON the way the wire would and stamps syncedAt
func echo(t *testing.T, req *FullSyncRequest, syncedAt int64) *FullSyncResponse {
	t.Helper()

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var resp FullSyncResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	resp.SyncedAt = syncedAt
	return &resp
}

func TestImport_EchoedDiagramKeepsState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	logger := loggy.Discard()

	d1 := store.Diagram{ID: "d1", Name: "A", Code: "graph TD; A-->B", UpdatedAt: 100}
	s.PutDiagram(ctx, d1)

	req, err := NewExporter(s, logger).Export(ctx)
	require.NoError(t, err)
	require.Len(t, req.Diagrams.Diagrams, 1)
	assert.Nil(t, req.Diagrams.LastSyncAt, "first sync carries no checkpoint")

	require.NoError(t, NewImporter(s, logger).Import(ctx, echo(t, req, 500)))

	got := s.GetDiagram(ctx, "d1")
	require.NotNil(t, got)
	assert.Equal(t, d1, *got)

	at, ok := s.LastSyncAt(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(500), at)
}

func TestExportImport_RoundTripLeavesLocalStateUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	logger := loggy.Discard()

	s.PutDiagram(ctx, store.Diagram{ID: "d1", Name: "Flow", Code: "graph TD; A-->B", UpdatedAt: 100, Settings: json.RawMessage(`{"theme":"forest"}`)})
	s.PutDiagram(ctx, store.Diagram{ID: "d2", Name: "Seq", Code: "sequenceDiagram\n A->>B: hi", UpdatedAt: 200})
	s.PutCollection(ctx, store.TemplateCollection{
		ID:          "c1",
		Name:        "Work",
		TemplateIDs: []string{"flowchart-basic", "pie-basic"},
		CustomTemplates: []store.CustomTemplate{
			{ID: "ct1", Name: "Mine", Code: "graph LR; X-->Y", CreatedAt: 10, UpdatedAt: 20},
			{ID: "ct2", Name: "Other", Code: "pie\n \"a\": 1", CreatedAt: 11, UpdatedAt: 21},
		},
		CreatedAt: 5,
		UpdatedAt: 30,
	})
	s.AddFavorite(ctx, store.FavoriteTemplate{TemplateID: "pie-basic", Timestamp: 40})
	s.SetSetting(ctx, store.KeyMermaidConfig, `{"securityLevel":"strict"}`)
	s.SetSetting(ctx, "mermaid.editor.fontSize", "14")

	diagramsBefore := s.ListDiagrams(ctx)
	collectionsBefore := s.ListCollections(ctx)
	favoritesBefore := s.ListFavorites(ctx)

	req, err := NewExporter(s, logger).Export(ctx)
	require.NoError(t, err)
	require.NoError(t, NewImporter(s, logger).Import(ctx, echo(t, req, 1000)))

	assert.Equal(t, diagramsBefore, s.ListDiagrams(ctx))
	assert.Equal(t, collectionsBefore, s.ListCollections(ctx))
	assert.Equal(t, favoritesBefore, s.ListFavorites(ctx))
	assert.JSONEq(t, `{"securityLevel":"strict"}`, s.GetSetting(ctx, store.KeyMermaidConfig))
	assert.Equal(t, "14", s.GetSetting(ctx, "mermaid.editor.fontSize"))
}

func TestExport_Payload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetSetting(ctx, store.KeyLastSyncAt, "500")
	s.SetSetting(ctx, store.KeyMermaidConfig, `{"theme":"dark"}`)
	s.SetSetting(ctx, store.KeyThemeSettings, "plain-text")
	s.SetSetting(ctx, "mermaid.editor.wrap", "true")
	s.SetSetting(ctx, "sync.server_url", "http://example.test")
	s.PutCollection(ctx, store.TemplateCollection{ID: "c1", Name: "Empty", CreatedAt: 1, UpdatedAt: 2})

	req, err := NewExporter(s, loggy.Discard()).Export(ctx)
	require.NoError(t, err)

	for _, at := range []*int64{req.Diagrams.LastSyncAt, req.Templates.LastSyncAt, req.Settings.LastSyncAt} {
		require.NotNil(t, at)
		assert.Equal(t, int64(500), *at)
	}

	require.NotNil(t, req.Settings.Settings)
	assert.JSONEq(t, `{"theme":"dark"}`, string(req.Settings.Settings.MermaidConfig))
	assert.JSONEq(t, `"plain-text"`, string(req.Settings.Settings.ThemeSettings))
	assert.Equal(t, map[string]string{"mermaid.editor.wrap": "true"}, req.Settings.Settings.KeyValueStore)

	require.Len(t, req.Templates.Collections, 1)
	assert.Equal(t, []string{}, req.Templates.Collections[0].TemplateIDs)
	assert.Equal(t, int64(2), req.Templates.Collections[0].ClientTimestamp)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"diagrams":{"diagrams":[]`)
	assert.Contains(t, string(data), `"customTemplates":[]`)
}

func TestImport_FavoritesConvergeToServerSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddFavorite(ctx, store.FavoriteTemplate{TemplateID: "t1", Timestamp: 1})
	s.AddFavorite(ctx, store.FavoriteTemplate{TemplateID: "t2", Timestamp: 2})

	resp := &FullSyncResponse{
		Templates: TemplatesSection{Favorites: []FavoriteTemplateDto{
			{TemplateID: "t2", ClientTimestamp: 20},
			{TemplateID: "t3", ClientTimestamp: 30},
			{TemplateID: "t3", ClientTimestamp: 31},
		}},
		SyncedAt: 100,
	}
	require.NoError(t, NewImporter(s, loggy.Discard()).Import(ctx, resp))

	assert.Equal(t, []store.FavoriteTemplate{
		{TemplateID: "t2", Timestamp: 2},
		{TemplateID: "t3", Timestamp: 30},
	}, s.ListFavorites(ctx))
}

func TestImport_CollectionsKeepLocalCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutCollection(ctx, store.TemplateCollection{
		ID:              "c1",
		Name:            "Old",
		CustomTemplates: []store.CustomTemplate{{ID: "ct1", Name: "x", Code: "graph TD", CreatedAt: 7, UpdatedAt: 8}},
		CreatedAt:       10,
		UpdatedAt:       11,
	})

	resp := &FullSyncResponse{
		Templates: TemplatesSection{Collections: []TemplateCollectionDto{
			{
				ClientID:    "c1",
				Name:        "Renamed",
				TemplateIDs: []string{"er-basic"},
				CustomTemplates: []CustomTemplateDto{
					{ClientID: "ct1", Name: "x2", Code: "graph LR", ClientTimestamp: 50},
					{ClientID: "ct9", Name: "new", Code: "pie", ClientTimestamp: 55},
				},
				ClientTimestamp: 60,
			},
			{ClientID: "c2", Name: "Fresh", ClientTimestamp: 70},
		}},
		SyncedAt: 100,
	}
	require.NoError(t, NewImporter(s, loggy.Discard()).Import(ctx, resp))

	c1 := s.GetCollection(ctx, "c1")
	require.NotNil(t, c1)
	assert.Equal(t, "Renamed", c1.Name)
	assert.Equal(t, int64(10), c1.CreatedAt)
	assert.Equal(t, int64(60), c1.UpdatedAt)
	assert.Equal(t, []string{"er-basic"}, c1.TemplateIDs)
	require.Len(t, c1.CustomTemplates, 2)
	assert.Equal(t, store.CustomTemplate{ID: "ct1", Name: "x2", Code: "graph LR", CreatedAt: 7, UpdatedAt: 50}, c1.CustomTemplates[0])
	assert.Equal(t, store.CustomTemplate{ID: "ct9", Name: "new", Code: "pie", CreatedAt: 55, UpdatedAt: 55}, c1.CustomTemplates[1])

	c2 := s.GetCollection(ctx, "c2")
	require.NotNil(t, c2)
	assert.Equal(t, int64(70), c2.CreatedAt)
	assert.Equal(t, []string{}, c2.TemplateIDs)
}

func TestImport_DoesNotDeleteAbsentEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutDiagram(ctx, store.Diagram{ID: "local-only", Name: "L", Code: "graph TD", UpdatedAt: 1})
	s.PutCollection(ctx, store.TemplateCollection{ID: "c-local", Name: "L", CreatedAt: 1, UpdatedAt: 1})
	s.SetSetting(ctx, "mermaid.editor.wrap", "true")

	resp := &FullSyncResponse{
		Diagrams: DiagramsSection{Diagrams: []DiagramDto{{ClientID: "remote", Name: "R", Code: "pie", ClientTimestamp: 2}}},
		Settings: SettingsSection{Settings: &SettingsDto{KeyValueStore: map[string]string{}}},
		SyncedAt: 100,
	}
	require.NoError(t, NewImporter(s, loggy.Discard()).Import(ctx, resp))

	assert.NotNil(t, s.GetDiagram(ctx, "local-only"))
	assert.NotNil(t, s.GetDiagram(ctx, "remote"))
	assert.NotNil(t, s.GetCollection(ctx, "c-local"))
	assert.Equal(t, "true", s.GetSetting(ctx, "mermaid.editor.wrap"))
}

func TestImport_Settings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetSetting(ctx, store.KeyThemeSettings, `{"name":"local"}`)
	s.SetSetting(ctx, store.KeyLastSyncAt, "50")

	resp := &FullSyncResponse{
		Settings: SettingsSection{Settings: &SettingsDto{
			MermaidConfig: json.RawMessage(`{"flowchart":{"curve":"basis"}}`),
			KeyValueStore: map[string]string{
				"editor.fontSize":     "16",
				"mermaid.editor.wrap": "false",
				"last_sync_at":        "999999",
			},
		}},
		SyncedAt: 100,
	}
	require.NoError(t, NewImporter(s, loggy.Discard()).Import(ctx, resp))

	assert.JSONEq(t, `{"flowchart":{"curve":"basis"}}`, s.GetSetting(ctx, store.KeyMermaidConfig))
	assert.Equal(t, `{"name":"local"}`, s.GetSetting(ctx, store.KeyThemeSettings), "absent blob is left alone")
	assert.Equal(t, "16", s.GetSetting(ctx, "mermaid.editor.fontSize"))
	assert.Equal(t, "false", s.GetSetting(ctx, "mermaid.editor.wrap"))

	at, ok := s.LastSyncAt(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(100), at, "reserved keys in the map cannot move the checkpoint")
}

func TestImport_CheckpointNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	importer := NewImporter(s, loggy.Discard())

	s.SetSetting(ctx, store.KeyLastSyncAt, "900")

	require.NoError(t, importer.Import(ctx, &FullSyncResponse{SyncedAt: 500}))
	at, _ := s.LastSyncAt(ctx)
	assert.Equal(t, int64(900), at)

	require.NoError(t, importer.Import(ctx, &FullSyncResponse{SyncedAt: 1200}))
	at, _ = s.LastSyncAt(ctx)
	assert.Equal(t, int64(1200), at)
}

func TestImport_MalformedResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	importer := NewImporter(s, loggy.Discard())

	err := importer.Import(ctx, nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	err = importer.Import(ctx, &FullSyncResponse{
		Diagrams: DiagramsSection{Diagrams: []DiagramDto{{ClientID: "d1", Name: "x"}}},
	})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Nil(t, s.GetDiagram(ctx, "d1"), "nothing is written from a malformed response")

	_, ok := s.LastSyncAt(ctx)
	assert.False(t, ok)
}

func TestImport_EmitsSyncSourcedChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var changes []store.Change
	unsubscribe := s.Subscribe(func(c store.Change) { changes = append(changes, c) })
	defer unsubscribe()

	resp := &FullSyncResponse{
		Diagrams: DiagramsSection{Diagrams: []DiagramDto{{ClientID: "d1", Name: "x", Code: "pie", ClientTimestamp: 1}}},
		SyncedAt: 100,
	}
	require.NoError(t, NewImporter(s, loggy.Discard()).Import(ctx, resp))

	require.NotEmpty(t, changes)
	for _, c := range changes {
		assert.Equal(t, store.SourceSync, c.Source)
	}
}
