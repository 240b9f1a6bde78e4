package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

type httpPinger struct {
	url string
}

func (p httpPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

type flakyPinger struct {
	up atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.up.Load() {
		return nil
	}
	return errors.New("connection refused")
}

func TestMonitor_ProbeTransitions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	m := NewMonitor(httpPinger{url: server.URL + "/api/health"}, Options{Interval: time.Millisecond}, loggy.NewNoopLogger())

	_, known := m.Online()
	assert.False(t, known)

	online, changed := m.Probe(context.Background())
	assert.True(t, online)
	assert.True(t, changed, "first result counts as a change")

	online, changed = m.Probe(context.Background())
	assert.True(t, online)
	assert.False(t, changed)

	server.Close()

	online, changed = m.Probe(context.Background())
	assert.False(t, online)
	assert.True(t, changed)

	online, known = m.Online()
	assert.False(t, online)
	assert.True(t, known)
}

func TestMonitor_RunReportsOnlyTransitions(t *testing.T) {
	pinger := &flakyPinger{}
	m := NewMonitor(pinger, Options{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, loggy.NewNoopLogger())

	changes := make(chan bool, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, func(online bool) { changes <- online })
		close(done)
	}()

	select {
	case online := <-changes:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("no initial state reported")
	}

	pinger.up.Store(true)

	select {
	case online := <-changes:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("coming online was not reported")
	}

	// Stays online: no further notifications
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, changes)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(&flakyPinger{}, Options{MaxInterval: time.Second}, loggy.NewNoopLogger())
	require.Equal(t, 30*time.Second, m.opts.Interval)
	assert.Equal(t, 30*time.Second, m.opts.MaxInterval)
	assert.Equal(t, 10*time.Second, m.opts.Timeout)
}
