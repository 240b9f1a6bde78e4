package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/ulid"
)

// Repository defines operations for managing sync logs in the database
type Repository interface {
	// CreateSyncLog records one sync attempt
	CreateSyncLog(ctx context.Context, log *SyncLog) error

	// GetSyncLogs retrieves sync logs, newest first
	GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error)

	// GetLatestSyncLog retrieves the most recent attempt, or nil when there is none
	GetLatestSyncLog(ctx context.Context) (*SyncLog, error)

	// GetLatestSuccessfulSyncLog retrieves the most recent successful attempt
	GetLatestSuccessfulSyncLog(ctx context.Context) (*SyncLog, error)
}

// SQLRepository implements the Repository interface using a SQL database
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

var syncLogColumns = []string{"id", "reason", "success", "error_type", "error_message", "items_synced", "synced_at", "started_at", "completed_at"}

// CreateSyncLog records one sync attempt
func (r *SQLRepository) CreateSyncLog(ctx context.Context, log *SyncLog) error {
	if r.db == nil {
		return database.ErrNotInitialized
	}

	if log.ID == "" {
		log.ID = ulid.SyncID()
	}

	var completedAt any
	if !log.CompletedAt.IsZero() {
		completedAt = log.CompletedAt
	}

	query, args, err := squirrel.Insert("sync_logs").
		Columns(syncLogColumns...).
		Values(log.ID, string(log.Reason), log.Success, string(log.ErrorType), log.ErrorMessage, log.ItemsSynced, log.SyncedAt, log.StartedAt, completedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building create sync log query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create sync log query: %w", err)
	}

	return nil
}

// GetSyncLogs retrieves sync logs, newest first
func (r *SQLRepository) GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error) {
	if r.db == nil {
		return nil, database.ErrNotInitialized
	}

	q := squirrel.Select(syncLogColumns...).
		From("sync_logs").
		OrderBy("started_at DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get sync logs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get sync logs query: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync log row: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync log rows: %w", err)
	}

	return logs, nil
}

// GetLatestSyncLog retrieves the most recent attempt, or nil when there is none
func (r *SQLRepository) GetLatestSyncLog(ctx context.Context) (*SyncLog, error) {
	return r.latest(ctx, nil)
}

// GetLatestSuccessfulSyncLog retrieves the most recent successful attempt
func (r *SQLRepository) GetLatestSuccessfulSyncLog(ctx context.Context) (*SyncLog, error) {
	return r.latest(ctx, squirrel.Eq{"success": true})
}

func (r *SQLRepository) latest(ctx context.Context, where squirrel.Sqlizer) (*SyncLog, error) {
	if r.db == nil {
		return nil, database.ErrNotInitialized
	}

	q := squirrel.Select(syncLogColumns...).
		From("sync_logs").
		OrderBy("started_at DESC", "id DESC").
		Limit(1)
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get latest sync log query: %w", err)
	}

	log, err := scanSyncLog(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No sync log found
	}
	if err != nil {
		return nil, fmt.Errorf("executing get latest sync log query: %w", err)
	}

	return log, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncLog(row rowScanner) (*SyncLog, error) {
	var (
		log         SyncLog
		reason      string
		errorType   string
		completedAt sql.NullTime
	)

	err := row.Scan(
		&log.ID,
		&reason,
		&log.Success,
		&errorType,
		&log.ErrorMessage,
		&log.ItemsSynced,
		&log.SyncedAt,
		&log.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Reason = Reason(reason)
	log.ErrorType = SyncErrorType(errorType)
	if completedAt.Valid {
		log.CompletedAt = completedAt.Time
	}

	return &log, nil
}
