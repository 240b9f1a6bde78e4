package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

// State is the scheduler's externally visible state
type State int

const (
	StateIdle State = iota
	StateTimerPending
	StateInFlight
	StatePendingImmediate
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTimerPending:
		return "timer_pending"
	case StateInFlight:
		return "in_flight"
	case StatePendingImmediate:
		return "pending_immediate"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Priority selects between running now and debouncing
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityBackground
)

func (p Priority) String() string {
	if p == PriorityBackground {
		return "background"
	}
	return "immediate"
}

// Syncer performs one full sync
type Syncer interface {
	PerformFullSync(ctx context.Context) (*FullSyncResponse, error)
}

// Notifier shows a short transient message to the user
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string)

// Notify calls f(message)
func (f NotifierFunc) Notify(message string) { f(message) }

// Timer is a cancellable pending callback
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The real clock wraps time.AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

// SchedulerOptions configures a Scheduler
type SchedulerOptions struct {
	// BackgroundDelay is the fixed debounce for background requests
	BackgroundDelay time.Duration
	Clock           Clock
	Notifier        Notifier
	// StartOffline holds requests until the first SetOnline(true)
	StartOffline bool
}

// Scheduler serializes sync attempts. At most one runs at a time, requests
// made meanwhile collapse into a single follow-up, and background requests
// are debounced.
type Scheduler struct {
	syncer   Syncer
	clock    Clock
	notifier Notifier
	delay    time.Duration
	logger   *loggy.Logger

	mu       gosync.Mutex
	wg       gosync.WaitGroup
	inFlight bool
	pending  bool
	timer    Timer
	timerGen uint64
	online   bool
	enabled  bool
	closed   bool
	onSynced []func(*FullSyncResponse)
}

// NewScheduler creates a scheduler driving syncer
func NewScheduler(syncer Syncer, opts SchedulerOptions, logger *loggy.Logger) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(message string) { logger.Warn(message) })
	}

	return &Scheduler{
		syncer:   syncer,
		clock:    clock,
		notifier: notifier,
		delay:    opts.BackgroundDelay,
		logger:   logger,
		online:   !opts.StartOffline,
		enabled:  true,
	}
}

// OnSynced registers fn to run after every successful sync
func (s *Scheduler) OnSynced(fn func(*FullSyncResponse)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSynced = append(s.onSynced, fn)
}

// State reports the current state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.pending:
		return StatePendingImmediate
	case s.inFlight:
		return StateInFlight
	case s.timer != nil:
		return StateTimerPending
	default:
		return StateIdle
	}
}

// RequestSync asks for a sync. It returns false when the request was
// refused because the scheduler is disabled.
func (s *Scheduler) RequestSync(reason Reason, priority Priority) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.logger.Debug("Sync request ignored, scheduler disabled", "reason", reason)
		return false
	}

	if s.inFlight || !s.online {
		if !s.pending {
			s.logger.Debug("Sync request queued as follow-up", "reason", reason, "online", s.online)
		}
		s.pending = true
		return true
	}

	switch priority {
	case PriorityBackground:
		if s.timer != nil {
			return true
		}
		s.timerGen++
		gen := s.timerGen
		s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(gen, reason) })
		s.logger.Debug("Background sync scheduled", "reason", reason, "delay", s.delay)
	default:
		s.stopTimerLocked()
		s.startLocked(reason)
	}

	return true
}

// SetOnline updates connectivity. Coming online triggers exactly one sync.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = online
	if !online || !s.enabled {
		return
	}

	if s.inFlight {
		s.pending = true
		return
	}

	s.stopTimerLocked()
	s.pending = false
	s.startLocked(ReasonOnline)
}

// Enable re-arms a disabled scheduler
func (s *Scheduler) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.enabled = true
	}
}

// Disable cancels the pending timer and follow-up and refuses new requests.
// A sync already in flight runs to completion.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.pending = false
	s.stopTimerLocked()
}

// Wait blocks until no sync is running
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close disables the scheduler for good and waits for the in-flight sync
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Disable()
	s.wg.Wait()
}

func (s *Scheduler) fire(gen uint64, reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil || gen != s.timerGen {
		return
	}
	s.timer = nil

	if !s.enabled {
		return
	}
	if s.inFlight || !s.online {
		s.pending = true
		return
	}

	s.startLocked(reason)
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.timerGen++
}

func (s *Scheduler) startLocked(reason Reason) {
	s.inFlight = true
	s.wg.Add(1)
	go s.loop(reason)
}

func (s *Scheduler) loop(reason Reason) {
	defer s.wg.Done()

	for {
		resp, err := s.perform(reason)
		s.finish(resp, err)

		s.mu.Lock()
		if s.pending && s.enabled && s.online {
			s.pending = false
			s.mu.Unlock()
			reason = ReasonFollowUp
			continue
		}
		s.inFlight = false
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler) perform(reason Reason) (resp *FullSyncResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()

	s.logger.Debug("Starting sync", "reason", reason)
	return s.syncer.PerformFullSync(WithReason(context.Background(), reason))
}

func (s *Scheduler) finish(resp *FullSyncResponse, err error) {
	if err != nil {
		s.notifier.Notify(fmt.Sprintf("Sync failed (%s): %v", ClassifyError(err), err))
		return
	}

	s.mu.Lock()
	callbacks := make([]func(*FullSyncResponse), len(s.onSynced))
	copy(callbacks, s.onSynced)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(resp)
	}
}
