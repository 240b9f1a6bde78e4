package sync

import (
	"time"

	"github.com/tildaslashalef/mermaidnest/internal/sync"
)

type (
	// SyncCompleteMsg is sent when the full sync round trip returns
	SyncCompleteMsg struct {
		Response *sync.FullSyncResponse
		Error    error
		Duration time.Duration
	}
)
