package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

func newMockRepo(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLRepository(db, loggy.Discard()), mock
}

func TestSQLRepository_GetDiagram(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	rows := sqlmock.NewRows(diagramColumns).AddRow("d1", "A", "graph TD; A-->B", `{"theme":"dark"}`, int64(100))
	mock.ExpectQuery("SELECT id, name, code, settings, updated_at FROM diagrams WHERE id = \\?").
		WithArgs("d1").
		WillReturnRows(rows)

	d, err := repo.GetDiagram(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "A", d.Name)
	assert.Equal(t, int64(100), d.UpdatedAt)
	assert.JSONEq(t, `{"theme":"dark"}`, string(d.Settings))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_GetDiagram_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT .* FROM diagrams").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(diagramColumns))

	d, err := repo.GetDiagram(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_UpsertDiagram(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO diagrams .* ON CONFLICT\\(id\\) DO UPDATE SET").
		WithArgs("d1", "A", "graph TD; A-->B", nil, int64(100)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertDiagram(context.Background(), &Diagram{ID: "d1", Name: "A", Code: "graph TD; A-->B", UpdatedAt: 100})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_UpsertDiagram_Error(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO diagrams").WillReturnError(errors.New("disk I/O error"))

	err := repo.UpsertDiagram(context.Background(), &Diagram{ID: "d1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing upsert diagram query")
}

func TestSQLRepository_SetSetting(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO settings .* ON CONFLICT\\(key\\) DO UPDATE SET value = excluded.value").
		WithArgs(sqlmock.AnyArg(), "mermaid.grid", "on", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SetSetting(context.Background(), "mermaid.grid", "on"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_GetSettings(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT key, value FROM settings WHERE key LIKE \\?").
		WithArgs("sync.%").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("sync.server_url", "http://localhost:3000").
			AddRow("sync.enabled", "true"))

	settings, err := repo.GetSettings(context.Background(), "sync.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sync.server_url": "http://localhost:3000", "sync.enabled": "true"}, settings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_UpsertCollection(t *testing.T) {
	repo, mock := newMockRepo(t)

	c := &TemplateCollection{
		ID:          "c1",
		Name:        "Flows",
		TemplateIDs: []string{"flowchart-basic"},
		CustomTemplates: []CustomTemplate{
			{ID: "ct1", Name: "Mine", Code: "graph LR; X-->Y", CreatedAt: 10, UpdatedAt: 20},
		},
		CreatedAt: 10,
		UpdatedAt: 20,
	}

	mock.ExpectExec("INSERT INTO template_collections").
		WithArgs("c1", "Flows", `["flowchart-basic"]`, int64(10), int64(20)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM custom_templates WHERE collection_id = \\?").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO custom_templates").
		WithArgs("ct1", "c1", "Mine", "graph LR; X-->Y", 0, int64(10), int64(20)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.UpsertCollection(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListFavorites(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT template_id, timestamp FROM favorite_templates").
		WillReturnRows(sqlmock.NewRows([]string{"template_id", "timestamp"}).
			AddRow("t1", int64(1)).
			AddRow("t2", int64(2)))

	favorites, err := repo.ListFavorites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []FavoriteTemplate{{TemplateID: "t1", Timestamp: 1}, {TemplateID: "t2", Timestamp: 2}}, favorites)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListFavorites_Error(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT template_id").WillReturnError(errors.New("no such table: favorite_templates"))

	_, err := repo.ListFavorites(context.Background())
	require.Error(t, err)
}
