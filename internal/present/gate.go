// Package present maps notification priority onto user-facing interruption:
// a passive toast, or the single blocking urgent prompt with looped audio.
package present

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/model"
)

// Toast is a transient, dismiss-on-timeout surface request.
type Toast struct {
	NotificationID string
	Title          string
	Message        string
	Priority       model.Priority
	Duration       time.Duration

	// Action is set when the notification names a subject the user can open.
	Action *Action
}

// Action is the optional button on a toast.
type Action struct {
	Label     string
	SubjectID string
}

// Surface renders toasts. ShowToast reports false when the UI is not able
// to render right now; the toast is then dropped.
type Surface interface {
	ShowToast(t Toast) bool
}

// UrgentInteraction is the state of the blocking urgent prompt.
type UrgentInteraction struct {
	SubjectID      string
	NotificationID string
	Title          string
	Message        string
	Active         bool
	StartedAt      time.Time
}

// Options configures a Gate.
type Options struct {
	ToastDuration time.Duration

	// UrgentTimeout auto-dismisses an unanswered prompt. Zero disables it.
	UrgentTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Gate owns the urgent interaction slot and the audio playing on its
// behalf. At most one audio handle is live at any time.
type Gate struct {
	mu      sync.Mutex
	surface Surface
	player  Player
	opts    Options
	log     *zap.Logger

	current UrgentInteraction
	audio   Handle
	timer   *time.Timer
	gen     uint64

	obsMu     sync.Mutex
	observers []func(UrgentInteraction)
}

// NewGate creates a gate. A nil player plays nothing.
func NewGate(player Player, opts Options) *Gate {
	if player == nil {
		player = NopPlayer{}
	}
	if opts.ToastDuration <= 0 {
		opts.ToastDuration = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{player: player, opts: opts, log: log}
}

// Mount attaches the toast surface. Passing nil unmounts it.
func (g *Gate) Mount(s Surface) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.surface = s
}

// OnChange registers fn to run after every change of the urgent slot.
func (g *Gate) OnChange(fn func(UrgentInteraction)) {
	g.obsMu.Lock()
	defer g.obsMu.Unlock()
	g.observers = append(g.observers, fn)
}

// PresentPassive requests a toast for n. It never blocks on the UI.
func (g *Gate) PresentPassive(n model.Notification) {
	t := Toast{
		NotificationID: n.ID,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
		Duration:       g.opts.ToastDuration,
	}
	if n.HasSubject() {
		t.Action = &Action{Label: "view", SubjectID: n.SubjectID()}
	}

	g.mu.Lock()
	surface := g.surface
	g.mu.Unlock()

	if surface == nil || !surface.ShowToast(t) {
		g.log.Debug("toast dropped, no surface", zap.String("id", n.ID))
	}
}

// PresentUrgent opens the urgent prompt for n. An already active prompt is
// superseded: its audio is stopped before the new audio starts.
func (g *Gate) PresentUrgent(n model.Notification) {
	g.mu.Lock()
	g.releaseLocked()
	g.gen++
	gen := g.gen

	h, err := g.player.Play(CueUrgent)
	if err != nil {
		g.log.Warn("urgent audio failed to start", zap.Error(err))
		h = nil
	}
	g.audio = h

	g.current = UrgentInteraction{
		SubjectID:      n.SubjectID(),
		NotificationID: n.ID,
		Title:          n.Title,
		Message:        n.Message,
		Active:         true,
		StartedAt:      g.opts.Now(),
	}
	if g.opts.UrgentTimeout > 0 {
		g.timer = time.AfterFunc(g.opts.UrgentTimeout, func() { g.expire(gen) })
	}
	snap := g.current
	g.mu.Unlock()

	g.log.Info("urgent interaction opened",
		zap.String("id", n.ID),
		zap.String("subject", snap.SubjectID),
	)
	g.notify(snap)
}

// Dismiss closes the urgent prompt and releases its audio. Calling it with
// no active prompt is a no-op.
func (g *Gate) Dismiss() {
	g.mu.Lock()
	if !g.current.Active {
		g.mu.Unlock()
		return
	}
	g.releaseLocked()
	g.current = UrgentInteraction{}
	snap := g.current
	g.mu.Unlock()

	g.notify(snap)
}

// View dismisses the prompt and returns its subject for the caller's
// "view" action.
func (g *Gate) View() (string, bool) {
	g.mu.Lock()
	cur := g.current
	if !cur.Active {
		g.mu.Unlock()
		return "", false
	}
	g.releaseLocked()
	g.current = UrgentInteraction{}
	snap := g.current
	g.mu.Unlock()

	g.notify(snap)
	return cur.SubjectID, true
}

// Current returns the urgent slot state.
func (g *Gate) Current() UrgentInteraction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// expire dismisses the prompt opened under gen if it is still the active one.
func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.current.Active {
		g.mu.Unlock()
		return
	}
	g.releaseLocked()
	g.current = UrgentInteraction{}
	snap := g.current
	g.mu.Unlock()

	g.log.Info("urgent interaction timed out")
	g.notify(snap)
}

// releaseLocked stops the live audio handle and the timeout timer.
func (g *Gate) releaseLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.audio != nil {
		g.audio.Stop()
		g.audio = nil
	}
}

func (g *Gate) notify(u UrgentInteraction) {
	g.obsMu.Lock()
	obs := make([]func(UrgentInteraction), len(g.observers))
	copy(obs, g.observers)
	g.obsMu.Unlock()

	for _, fn := range obs {
		fn(u)
	}
}
