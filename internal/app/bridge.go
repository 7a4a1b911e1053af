package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/internal/ui/toast"
)

// StateChangedMsg carries a store snapshot after a mutation.
type StateChangedMsg struct {
	State model.NotificationState
}

// ConnStatusMsg carries a connection state change.
type ConnStatusMsg struct {
	State model.ConnectionState
}

// UrgentChangedMsg carries a change of the urgent slot.
type UrgentChangedMsg struct {
	Interaction present.UrgentInteraction
}

// bridgeQueueSize bounds messages waiting for the UI loop.
const bridgeQueueSize = 256

// Sender is the part of *tea.Program the bridge needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards component callbacks into the Bubble Tea program. The
// callbacks fire on store, gate and connection goroutines, sometimes while
// the UI loop itself is busy, so messages are queued and delivered by a
// single pump goroutine in arrival order.
type Bridge struct {
	mu      sync.Mutex
	queue   chan tea.Msg
	started bool
	closed  bool
}

// NewBridge creates a bridge with nothing attached.
func NewBridge() *Bridge {
	return &Bridge{queue: make(chan tea.Msg, bridgeQueueSize)}
}

// Attach starts delivering queued messages to p.
func (b *Bridge) Attach(p Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	go func() {
		for msg := range b.queue {
			p.Send(msg)
		}
	}()
}

// Close stops delivery. Messages posted afterwards are dropped.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}

// post enqueues msg without blocking. It reports false when the program
// is not attached or the queue is full.
func (b *Bridge) post(msg tea.Msg) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started || b.closed {
		return false
	}
	select {
	case b.queue <- msg:
		return true
	default:
		return false
	}
}

// ShowToast implements present.Surface.
func (b *Bridge) ShowToast(t present.Toast) bool {
	return b.post(toast.ShowMsg{Toast: t})
}

// Observable is the set of component hooks the bridge subscribes to.
type Observable interface {
	SubscribeStore(fn func(model.NotificationState))
	OnUrgentChange(fn func(present.UrgentInteraction))
	OnStatus(fn func(model.ConnectionState))
}

// Wire subscribes the bridge to every observable change.
func (b *Bridge) Wire(o Observable) {
	o.SubscribeStore(func(st model.NotificationState) {
		b.post(StateChangedMsg{State: st})
	})
	o.OnUrgentChange(func(u present.UrgentInteraction) {
		b.post(UrgentChangedMsg{Interaction: u})
	})
	o.OnStatus(func(s model.ConnectionState) {
		b.post(ConnStatusMsg{State: s})
	})
}
