package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	mu      gosync.Mutex
	calls   int
	removed int
}

func (p *countingPurger) PurgeExpired(context.Context, time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.removed
}

func (p *countingPurger) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRunOnceReportsRemovals(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &countingPurger{removed: 2}
	s := New(p, time.Hour, nil)
	s.now = func() time.Time { return at }

	assert.Equal(t, 2, s.RunOnce(context.Background()))

	msg := s.WaitForNextResult()()
	assert.Equal(t, PurgeResultMsg{Removed: 2, At: at}, msg)
}

func TestRunOnceWithNothingExpiredSendsNothing(t *testing.T) {
	s := New(&countingPurger{}, time.Hour, nil)

	assert.Zero(t, s.RunOnce(context.Background()))
	assert.Len(t, s.resultCh, 0)
}

func TestStartSweepsPeriodically(t *testing.T) {
	p := &countingPurger{removed: 1}
	s := New(p, 5*time.Millisecond, nil)

	cmd := s.Start()
	require.NotNil(t, cmd)
	assert.Nil(t, s.Start(), "already running")
	assert.True(t, s.Running())

	msg := cmd()
	assert.IsType(t, PurgeResultMsg{}, msg)
	require.Eventually(t, func() bool { return p.Calls() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	calls := p.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, p.Calls())
}

func TestNewDefaultsInterval(t *testing.T) {
	s := New(&countingPurger{}, 0, nil)
	assert.Equal(t, defaultInterval, s.interval)
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	s := New(&countingPurger{}, time.Hour, nil)
	assert.NotPanics(t, s.Stop)
}
