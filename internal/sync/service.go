package sync

import (
	"context"
	"fmt"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

type reasonKey struct{}

// WithReason returns a context carrying why the sync was requested
func WithReason(ctx context.Context, reason Reason) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

// ReasonFromContext returns the reason stored by WithReason, or ReasonManual
func ReasonFromContext(ctx context.Context) Reason {
	if reason, ok := ctx.Value(reasonKey{}).(Reason); ok {
		return reason
	}
	return ReasonManual
}

// Service runs a full sync round trip: export, transmit, import
type Service struct {
	exporter  *Exporter
	importer  *Importer
	transport Transport
	repo      Repository
	logger    *loggy.Logger
}

// NewService creates a new sync service. repo may be nil, in which case
// attempts are not recorded.
func NewService(exporter *Exporter, importer *Importer, transport Transport, repo Repository, logger *loggy.Logger) *Service {
	return &Service{
		exporter:  exporter,
		importer:  importer,
		transport: transport,
		repo:      repo,
		logger:    logger,
	}
}

// PerformFullSync exports local state, sends it and imports the server's
// answer. It does not retry and must not be called concurrently; the
// Scheduler serializes calls.
func (s *Service) PerformFullSync(ctx context.Context) (*FullSyncResponse, error) {
	reason := ReasonFromContext(ctx)
	if loggy.GetRequestID(ctx) == "" {
		ctx = loggy.WithRequestID(ctx, loggy.NewRequestID())
	}

	entry := NewSyncLog(reason)
	resp, err := s.run(ctx)
	if err != nil {
		errType := ClassifyError(err)
		entry.MarkFailed(errType, err.Error())
		s.logger.Error("Full sync failed", "reason", reason, "error_type", errType, "error", err)
	} else {
		entry.MarkSuccessful(resp.ItemCount(), resp.SyncedAt)
		s.logger.Info("Full sync completed",
			"reason", reason,
			"items", entry.ItemsSynced,
			"synced_at", resp.SyncedAt,
			"duration", entry.Duration(),
		)
	}

	s.record(ctx, entry)

	return resp, err
}

func (s *Service) run(ctx context.Context) (*FullSyncResponse, error) {
	req, err := s.exporter.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting local state: %w", err)
	}

	resp, err := s.transport.FullSync(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sending full sync: %w", err)
	}

	if err := s.importer.Import(ctx, resp); err != nil {
		return nil, fmt.Errorf("importing server state: %w", err)
	}

	return resp, nil
}

func (s *Service) record(ctx context.Context, entry *SyncLog) {
	if s.repo == nil {
		return
	}
	// The attempt is logged even when ctx was cancelled mid-sync
	if err := s.repo.CreateSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("Failed to record sync log", "error", err)
	}
}

// GetSyncLogs retrieves recorded sync attempts, newest first
func (s *Service) GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetSyncLogs(ctx, limit, offset)
}

// LatestSyncLog retrieves the most recent attempt
func (s *Service) LatestSyncLog(ctx context.Context) (*SyncLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetLatestSyncLog(ctx)
}
