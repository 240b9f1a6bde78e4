package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

func newMockRepository(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLRepository(db, loggy.Discard()), mock
}

func TestSQLRepository_CreateSyncLog(t *testing.T) {
	repo, mock := newMockRepository(t)

	entry := NewSyncLog(ReasonInterval)
	entry.MarkFailed(SyncErrorTypeNetwork, "dial tcp: refused")

	mock.ExpectExec(`INSERT INTO sync_logs \(id,reason,success,error_type,error_message,items_synced,synced_at,started_at,completed_at\)`).
		WithArgs(sqlmock.AnyArg(), "interval", false, "network", "dial tcp: refused", 0, int64(0), entry.StartedAt, entry.CompletedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateSyncLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID, "an ID is assigned")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_CreateSyncLogError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO sync_logs`).WillReturnError(errors.New("locked"))

	err := repo.CreateSyncLog(context.Background(), &SyncLog{ID: "sync-1", StartedAt: time.Now()})
	assert.ErrorContains(t, err, "locked")
}

func TestSQLRepository_GetSyncLogs(t *testing.T) {
	repo, mock := newMockRepository(t)

	started := time.UnixMilli(1_700_000_000_000).UTC()
	rows := sqlmock.NewRows(syncLogColumns).
		AddRow("sync-2", "manual", true, "", "", 4, int64(900), started, started.Add(time.Second)).
		AddRow("sync-1", "interval", false, "server", "boom", 0, int64(0), started, nil)

	mock.ExpectQuery(`SELECT .* FROM sync_logs ORDER BY started_at DESC, id DESC LIMIT 10 OFFSET 5`).
		WillReturnRows(rows)

	logs, err := repo.GetSyncLogs(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, ReasonManual, logs[0].Reason)
	assert.True(t, logs[0].Success)
	assert.Equal(t, 4, logs[0].ItemsSynced)
	assert.Equal(t, time.Second, logs[0].Duration())

	assert.Equal(t, SyncErrorTypeServer, logs[1].ErrorType)
	assert.True(t, logs[1].CompletedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_GetLatestSyncLog(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .* FROM sync_logs ORDER BY started_at DESC, id DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows(syncLogColumns))

	entry, err := repo.GetLatestSyncLog(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entry)

	mock.ExpectQuery(`SELECT .* FROM sync_logs WHERE success = \? ORDER BY started_at DESC, id DESC LIMIT 1`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(syncLogColumns).
			AddRow("sync-3", "auth_ready", true, "", "", 1, int64(10), time.Now(), time.Now()))

	entry, err = repo.GetLatestSuccessfulSyncLog(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, ReasonAuthReady, entry.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}
