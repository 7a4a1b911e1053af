package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Purger removes expired notifications.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) int
}

// PurgeResultMsg is a tea.Msg sent after a sweep removed at least one entry.
type PurgeResultMsg struct {
	Removed int
	At      time.Time
}

// defaultInterval is used when the configured interval is not positive.
const defaultInterval = 60 * time.Second

// Sweeper periodically purges expired notifications while the session is
// active.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	resultCh chan PurgeResultMsg
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       gosync.Mutex
	running  bool
}

// New creates a sweeper for p.
func New(p Purger, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		purger:   p,
		interval: interval,
		log:      log,
		now:      time.Now,
		resultCh: make(chan PurgeResultMsg, 16),
	}
}

// Start launches the sweep loop and returns a tea.Cmd that waits for the
// first result. Starting a running sweeper returns nil.
func (s *Sweeper) Start() tea.Cmd {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.run(stop, done)

	return s.waitForResult()
}

// Stop halts the sweep loop and waits for it to exit. Stopping a stopped
// sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
}

// Running reports whether the loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce performs a single sweep and returns the number of entries removed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	now := s.now()
	removed := s.purger.PurgeExpired(ctx, now)
	if removed > 0 {
		s.log.Info("purged expired notifications", zap.Int("removed", removed))
		s.sendResult(PurgeResultMsg{Removed: removed, At: now})
	}
	return removed
}

func (s *Sweeper) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.RunOnce(context.Background())
		}
	}
}

// sendResult sends a PurgeResultMsg on the result channel without blocking.
func (s *Sweeper) sendResult(msg PurgeResultMsg) {
	select {
	case s.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the sweeper
	}
}

func (s *Sweeper) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-s.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sweep result.
// Call it after handling a PurgeResultMsg to keep listening.
func (s *Sweeper) WaitForNextResult() tea.Cmd {
	return s.waitForResult()
}
