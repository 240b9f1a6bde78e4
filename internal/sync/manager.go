package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/store"
)

// ConnectivityMonitor reports online/offline transitions until ctx is done
type ConnectivityMonitor interface {
	Run(ctx context.Context, onChange func(online bool))
}

// ChangeSource publishes committed store mutations
type ChangeSource interface {
	Subscribe(fn func(store.Change)) (unsubscribe func())
}

// ManagerOptions configures the triggers a Manager wires up
type ManagerOptions struct {
	// Authenticated requests one immediate sync on Start
	Authenticated bool
	// Interval between periodic background requests, 0 disables them
	Interval time.Duration
	// WatchDir is a directory of diagram files to import, empty disables it
	WatchDir string
	// Monitor feeds connectivity into the scheduler, nil leaves it online
	Monitor ConnectivityMonitor
	// Diagrams receives watched files, required when WatchDir is set
	Diagrams DiagramStore
}

// Manager connects lifecycle triggers to a Scheduler
type Manager struct {
	scheduler *Scheduler
	changes   ChangeSource
	opts      ManagerOptions
	logger    *loggy.Logger

	mu          gosync.Mutex
	cancel      context.CancelFunc
	wg          gosync.WaitGroup
	unsubscribe func()
	watcher     *DirWatcher
}

// NewManager creates a new manager
func NewManager(scheduler *Scheduler, changes ChangeSource, opts ManagerOptions, logger *loggy.Logger) *Manager {
	return &Manager{
		scheduler: scheduler,
		changes:   changes,
		opts:      opts,
		logger:    logger,
	}
}

// Scheduler returns the scheduler the manager drives
func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Start wires every trigger. Calling Start twice is an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("sync manager already started")
	}

	if !m.opts.Authenticated {
		m.logger.Info("Sync not configured, staying local-only")
		m.scheduler.Disable()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.scheduler.Enable()

	if m.opts.WatchDir != "" {
		watcher, err := NewDirWatcher(m.opts.WatchDir, m.opts.Diagrams, m.logger)
		if err != nil {
			cancel()
			m.cancel = nil
			return err
		}
		m.watcher = watcher
	}

	if m.changes != nil {
		m.unsubscribe = m.changes.Subscribe(m.onChange)
	}

	m.scheduler.RequestSync(ReasonAuthReady, PriorityImmediate)

	if m.opts.Monitor != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.opts.Monitor.Run(runCtx, m.scheduler.SetOnline)
		}()
	}

	if m.opts.Interval > 0 {
		m.wg.Add(1)
		go m.tick(runCtx, m.opts.Interval)
	}

	if m.watcher != nil {
		if err := m.watcher.Start(runCtx); err != nil {
			m.logger.Warn("Directory watch disabled", "dir", m.opts.WatchDir, "error", err)
			m.watcher = nil
		}
	}

	m.logger.Info("Sync manager started", "interval", m.opts.Interval, "watch_dir", m.opts.WatchDir)
	return nil
}

// Stop removes every trigger and disables the scheduler. An in-flight
// sync finishes on its own.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	unsubscribe := m.unsubscribe
	watcher := m.watcher
	m.cancel = nil
	m.unsubscribe = nil
	m.watcher = nil
	m.mu.Unlock()

	m.scheduler.Disable()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			m.logger.Warn("Failed to stop directory watcher", "error", err)
		}
	}
	m.wg.Wait()
}

func (m *Manager) tick(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scheduler.RequestSync(ReasonInterval, PriorityBackground)
		}
	}
}

// onChange turns local edits into sync requests. Changes written by an
// import are ignored so a sync never schedules itself.
func (m *Manager) onChange(change store.Change) {
	if change.Source != store.SourceLocal {
		return
	}

	switch change.Kind {
	case store.KindDiagrams:
		m.scheduler.RequestSync(ReasonLocalChange, PriorityBackground)
	case store.KindSettings:
		if strings.HasPrefix(change.ID, store.SettingsPrefix) {
			m.scheduler.RequestSync(ReasonLocalChange, PriorityBackground)
		}
	case store.KindCollections, store.KindFavorites:
		m.scheduler.RequestSync(ReasonTemplateEdit, PriorityImmediate)
	}
}
