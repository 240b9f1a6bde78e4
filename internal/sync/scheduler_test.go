package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

// fakeClock records AfterFunc calls; tests fire them by hand
type fakeClock struct {
	mu     gosync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// FireAll runs every active timer and returns how many fired
func (c *fakeClock) FireAll() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// blockingSyncer counts calls and, when gated, blocks each call until released
type blockingSyncer struct {
	mu      gosync.Mutex
	calls   int
	reasons []Reason
	err     error
	gate    chan struct{}
	started chan struct{}
}

func newBlockingSyncer(gated bool) *blockingSyncer {
	s := &blockingSyncer{started: make(chan struct{}, 16)}
	if gated {
		s.gate = make(chan struct{})
	}
	return s
}

func (s *blockingSyncer) PerformFullSync(ctx context.Context) (*FullSyncResponse, error) {
	s.mu.Lock()
	s.calls++
	s.reasons = append(s.reasons, ReasonFromContext(ctx))
	err := s.err
	gate := s.gate
	s.mu.Unlock()

	s.started <- struct{}{}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &FullSyncResponse{SyncedAt: 1}, nil
}

func (s *blockingSyncer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *blockingSyncer) Reasons() []Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reason(nil), s.reasons...)
}

func (s *blockingSyncer) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("sync did not start")
	}
}

func newTestScheduler(syncer Syncer, clock Clock, opts SchedulerOptions) *Scheduler {
	opts.Clock = clock
	if opts.BackgroundDelay == 0 {
		opts.BackgroundDelay = 3 * time.Second
	}
	return NewScheduler(syncer, opts, loggy.Discard())
}

func TestScheduler_ImmediateRunsNow(t *testing.T) {
	syncer := newBlockingSyncer(false)
	s := newTestScheduler(syncer, &fakeClock{}, SchedulerOptions{})

	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.RequestSync(ReasonManual, PriorityImmediate))
	s.Wait()

	assert.Equal(t, 1, syncer.Calls())
	assert.Equal(t, []Reason{ReasonManual}, syncer.Reasons())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_RequestsDuringFlightCollapseIntoOneFollowUp(t *testing.T) {
	syncer := newBlockingSyncer(true)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{})

	s.RequestSync(ReasonManual, PriorityImmediate)
	syncer.waitStarted(t)
	assert.Equal(t, StateInFlight, s.State())

	for i := 0; i < 5; i++ {
		s.RequestSync(ReasonLocalChange, PriorityBackground)
		s.RequestSync(ReasonTemplateEdit, PriorityImmediate)
	}
	assert.Equal(t, StatePendingImmediate, s.State())
	assert.Zero(t, clock.Active(), "no timer is armed while in flight")

	syncer.gate <- struct{}{}
	syncer.waitStarted(t)
	syncer.gate <- struct{}{}
	s.Wait()

	assert.Equal(t, 2, syncer.Calls())
	assert.Equal(t, []Reason{ReasonManual, ReasonFollowUp}, syncer.Reasons())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_BackgroundRequestsAreDebounced(t *testing.T) {
	syncer := newBlockingSyncer(false)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{BackgroundDelay: 3 * time.Second})

	for i := 0; i < 4; i++ {
		s.RequestSync(ReasonLocalChange, PriorityBackground)
	}
	assert.Equal(t, StateTimerPending, s.State())
	require.Len(t, clock.timers, 1)
	assert.Equal(t, 3*time.Second, clock.timers[0].delay)
	assert.Zero(t, syncer.Calls())

	assert.Equal(t, 1, clock.FireAll())
	s.Wait()

	assert.Equal(t, 1, syncer.Calls())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_ImmediateCancelsTimer(t *testing.T) {
	syncer := newBlockingSyncer(false)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{})

	s.RequestSync(ReasonLocalChange, PriorityBackground)
	s.RequestSync(ReasonManual, PriorityImmediate)
	s.Wait()

	assert.Zero(t, clock.Active())
	assert.Zero(t, clock.FireAll())
	assert.Equal(t, 1, syncer.Calls())
}

func TestScheduler_StaleTimerIsIgnored(t *testing.T) {
	syncer := newBlockingSyncer(false)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{})

	s.RequestSync(ReasonLocalChange, PriorityBackground)
	stale := clock.timers[0]
	s.RequestSync(ReasonManual, PriorityImmediate)
	s.Wait()

	// A timer that already fired its channel races with Stop; running it late must be a no-op
	stale.fn()
	s.Wait()
	assert.Equal(t, 1, syncer.Calls())
}

func TestScheduler_OfflineDefersUntilOnline(t *testing.T) {
	syncer := newBlockingSyncer(false)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{})

	s.SetOnline(false)
	s.RequestSync(ReasonManual, PriorityImmediate)
	s.RequestSync(ReasonLocalChange, PriorityBackground)
	s.RequestSync(ReasonTemplateEdit, PriorityImmediate)

	assert.Zero(t, syncer.Calls())
	assert.Zero(t, clock.Active())
	assert.Equal(t, StatePendingImmediate, s.State())

	s.SetOnline(true)
	s.Wait()

	assert.Equal(t, 1, syncer.Calls())
	assert.Equal(t, []Reason{ReasonOnline}, syncer.Reasons())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_StartOfflineWaitsForFirstOnline(t *testing.T) {
	syncer := newBlockingSyncer(false)
	s := newTestScheduler(syncer, &fakeClock{}, SchedulerOptions{StartOffline: true})

	s.RequestSync(ReasonAuthReady, PriorityImmediate)
	assert.Zero(t, syncer.Calls())

	s.SetOnline(true)
	s.Wait()
	assert.Equal(t, 1, syncer.Calls())
}

func TestScheduler_OnlineWithoutPendingStillSyncsOnce(t *testing.T) {
	syncer := newBlockingSyncer(false)
	s := newTestScheduler(syncer, &fakeClock{}, SchedulerOptions{})

	s.SetOnline(true)
	s.Wait()
	assert.Equal(t, 1, syncer.Calls())
}

func TestScheduler_FailureNotifiesAndNextTriggerRetries(t *testing.T) {
	syncer := newBlockingSyncer(false)
	syncer.err = &APIError{StatusCode: 500, Message: "boom"}

	var messages []string
	var mu gosync.Mutex
	notifier := NotifierFunc(func(m string) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, m)
	})

	s := newTestScheduler(syncer, &fakeClock{}, SchedulerOptions{Notifier: notifier})

	synced := 0
	s.OnSynced(func(*FullSyncResponse) { synced++ })

	s.RequestSync(ReasonManual, PriorityImmediate)
	s.Wait()

	mu.Lock()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "server")
	mu.Unlock()
	assert.Zero(t, synced)
	assert.Equal(t, StateIdle, s.State(), "no automatic retry")

	syncer.mu.Lock()
	syncer.err = nil
	syncer.mu.Unlock()

	s.RequestSync(ReasonManual, PriorityImmediate)
	s.Wait()
	assert.Equal(t, 2, syncer.Calls())
	assert.Equal(t, 1, synced)
}

type panickingSyncer struct{}

func (panickingSyncer) PerformFullSync(context.Context) (*FullSyncResponse, error) {
	panic("nil map")
}

func TestScheduler_PanicIsReportedAsFailure(t *testing.T) {
	var got string
	s := newTestScheduler(panickingSyncer{}, &fakeClock{}, SchedulerOptions{Notifier: NotifierFunc(func(m string) { got = m })})

	s.RequestSync(ReasonManual, PriorityImmediate)
	s.Wait()

	assert.Contains(t, got, "nil map")
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_DisableClearsPendingButFinishesInFlight(t *testing.T) {
	syncer := newBlockingSyncer(true)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{})

	s.RequestSync(ReasonManual, PriorityImmediate)
	syncer.waitStarted(t)
	s.RequestSync(ReasonLocalChange, PriorityImmediate)

	s.Disable()
	assert.False(t, s.RequestSync(ReasonManual, PriorityImmediate))

	syncer.gate <- struct{}{}
	s.Wait()
	assert.Equal(t, 1, syncer.Calls(), "pending follow-up was dropped")

	s.RequestSync(ReasonLocalChange, PriorityBackground)
	assert.Zero(t, clock.Active())

	s.Enable()
	syncer.mu.Lock()
	syncer.gate = nil
	syncer.mu.Unlock()
	assert.True(t, s.RequestSync(ReasonManual, PriorityImmediate))
	s.Wait()
	assert.Equal(t, 2, syncer.Calls())
}

func TestScheduler_DisableStopsTimer(t *testing.T) {
	syncer := newBlockingSyncer(false)
	clock := &fakeClock{}
	s := newTestScheduler(syncer, clock, SchedulerOptions{})

	s.RequestSync(ReasonLocalChange, PriorityBackground)
	s.Disable()
	assert.Zero(t, clock.Active())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_CloseWaitsForInFlight(t *testing.T) {
	syncer := newBlockingSyncer(true)
	s := newTestScheduler(syncer, &fakeClock{}, SchedulerOptions{})

	s.RequestSync(ReasonManual, PriorityImmediate)
	syncer.waitStarted(t)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before the in-flight sync finished")
	case <-time.After(20 * time.Millisecond):
	}

	syncer.gate <- struct{}{}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	s.Enable()
	assert.False(t, s.RequestSync(ReasonManual, PriorityImmediate), "closed scheduler stays disabled")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending_immediate", StatePendingImmediate.String())
	assert.Equal(t, "background", PriorityBackground.String())
	assert.Equal(t, ReasonManual, ReasonFromContext(context.Background()))
}
