// Package connectivity tracks whether the sync server is reachable
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

// Pinger checks server reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Monitor
type Options struct {
	// Interval between probes while online, and the first retry while offline
	Interval time.Duration
	// MaxInterval caps the offline backoff
	MaxInterval time.Duration
	// Timeout bounds a single probe
	Timeout time.Duration
}

// Monitor polls a Pinger and reports online/offline transitions
type Monitor struct {
	pinger Pinger
	opts   Options
	logger *loggy.Logger

	mu     sync.RWMutex
	known  bool
	online bool
}

// NewMonitor creates a new connectivity monitor
func NewMonitor(pinger Pinger, opts Options, logger *loggy.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = opts.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	return &Monitor{
		pinger: pinger,
		opts:   opts,
		logger: logger,
	}
}

// Online returns the last probe result and whether any probe has completed
func (m *Monitor) Online() (online, known bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online, m.known
}

// Probe pings once and records the result. It reports whether the state
// changed (the first result always counts as a change).
func (m *Monitor) Probe(ctx context.Context) (online, changed bool) {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	online = err == nil

	m.mu.Lock()
	changed = !m.known || m.online != online
	m.known = true
	m.online = online
	m.mu.Unlock()

	if changed {
		if online {
			m.logger.Info("Sync server reachable")
		} else {
			m.logger.Warn("Sync server unreachable", "error", err)
		}
	}

	return online, changed
}

// Run probes until ctx is cancelled, calling onChange on every transition.
// While offline the probe interval grows exponentially up to MaxInterval.
func (m *Monitor) Run(ctx context.Context, onChange func(online bool)) {
	b := m.newBackOff()

	for {
		online, changed := m.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if changed && onChange != nil {
			onChange(online)
		}

		wait := m.opts.Interval
		if online {
			b.Reset()
		} else if next := b.NextBackOff(); next != backoff.Stop {
			wait = next
		} else {
			wait = m.opts.MaxInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.Interval
	b.MaxInterval = m.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
