// Package sync reconciles the local store against the server's full sync
// endpoint: export local state, send it, import the authoritative answer.
package sync

import (
	"errors"
	"time"
)

// Reason says why a sync was requested. Diagnostics only, never branched on.
type Reason string

const (
	ReasonManual       Reason = "manual"
	ReasonAuthReady    Reason = "auth_ready"
	ReasonOnline       Reason = "network_online"
	ReasonInterval     Reason = "interval"
	ReasonLocalChange  Reason = "local_change"
	ReasonTemplateEdit Reason = "template_edit"
	ReasonFollowUp     Reason = "follow_up"
	ReasonWatchedFile  Reason = "watched_file"
)

// SyncErrorType represents the type of error that occurred during sync
type SyncErrorType string

const (
	// SyncErrorTypeNetwork represents a network error
	SyncErrorTypeNetwork SyncErrorType = "network"
	// SyncErrorTypeAuth represents an authentication error
	SyncErrorTypeAuth SyncErrorType = "auth"
	// SyncErrorTypeServer represents a server error
	SyncErrorTypeServer SyncErrorType = "server"
	// SyncErrorTypeClient represents a client error
	SyncErrorTypeClient SyncErrorType = "client"
	// SyncErrorTypeUnknown represents an unknown error
	SyncErrorTypeUnknown SyncErrorType = "unknown"
)

// ErrNotConfigured is returned when a sync is attempted without a linked account
var ErrNotConfigured = errors.New("sync not configured")

// SyncLog records one full sync attempt
type SyncLog struct {
	ID           string        `json:"id"`
	Reason       Reason        `json:"reason"`
	Success      bool          `json:"success"`
	ErrorType    SyncErrorType `json:"error_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ItemsSynced  int           `json:"items_synced"`
	SyncedAt     int64         `json:"synced_at,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
}

// NewSyncLog creates a new sync log entry
func NewSyncLog(reason Reason) *SyncLog {
	now := time.Now()
	return &SyncLog{
		Reason:      reason,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// MarkSuccessful marks the sync log as successful
func (l *SyncLog) MarkSuccessful(itemsSynced int, syncedAt int64) {
	l.Success = true
	l.ItemsSynced = itemsSynced
	l.SyncedAt = syncedAt
	l.CompletedAt = time.Now()
}

// MarkFailed marks the sync log as failed
func (l *SyncLog) MarkFailed(errorType SyncErrorType, errorMessage string) {
	l.Success = false
	l.ErrorType = errorType
	l.ErrorMessage = errorMessage
	l.CompletedAt = time.Now()
}

// Duration is how long the attempt took
func (l *SyncLog) Duration() time.Duration {
	return l.CompletedAt.Sub(l.StartedAt)
}

// ClassifyError maps a sync failure to the error type stored in sync logs
func ClassifyError(err error) SyncErrorType {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return SyncErrorTypeAuth
		case apiErr.StatusCode >= 500:
			return SyncErrorTypeServer
		default:
			return SyncErrorTypeClient
		}
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return SyncErrorTypeNetwork
	}

	if errors.Is(err, ErrNotConfigured) {
		return SyncErrorTypeClient
	}

	return SyncErrorTypeUnknown
}
