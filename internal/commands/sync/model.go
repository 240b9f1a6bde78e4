package sync

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tildaslashalef/mermaidnest/internal/sync"
)

// Syncer runs one full sync round trip
type Syncer interface {
	PerformFullSync(ctx context.Context) (*sync.FullSyncResponse, error)
}

// Model is the Bubble Tea model for a one-shot sync
type Model struct {
	syncer Syncer
	server string
	ctx    context.Context
	cancel context.CancelFunc

	keymap  KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles

	started  time.Time
	syncing  bool
	canceled bool
	result   *SyncCompleteMsg
}

// NewModel initializes and returns a new Model. The sync runs under ctx and
// is canceled when the user quits.
func NewModel(ctx context.Context, syncer Syncer, server string) Model {
	styles := DefaultStyles()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	ctx, cancel := context.WithCancel(sync.WithReason(ctx, sync.ReasonManual))

	return Model{
		syncer:  syncer,
		server:  server,
		ctx:     ctx,
		cancel:  cancel,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
		styles:  styles,
		syncing: true,
	}
}

// Init starts the spinner and the sync
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startSync())
}

// Result returns the completed sync, or nil when it was canceled
func (m Model) Result() *SyncCompleteMsg {
	return m.result
}

func (m Model) startSync() tea.Cmd {
	ctx := m.ctx
	syncer := m.syncer
	return func() tea.Msg {
		start := time.Now()
		resp, err := syncer.PerformFullSync(ctx)
		return SyncCompleteMsg{Response: resp, Error: err, Duration: time.Since(start)}
	}
}
