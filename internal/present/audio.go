package present

import (
	"io"
	"sync"
	"time"
)

// Cue names a sound the gate can request.
type Cue string

// CueUrgent is the looped alert played while an urgent prompt is open.
const CueUrgent Cue = "urgent"

// Player starts audio. Implementations loop the cue until the returned
// handle is stopped.
type Player interface {
	Play(cue Cue) (Handle, error)
}

// Handle owns one playing audio resource.
type Handle interface {
	// Stop ends playback. It is safe to call more than once and returns
	// only after playback has stopped.
	Stop()
}

// NopPlayer plays nothing.
type NopPlayer struct{}

func (NopPlayer) Play(Cue) (Handle, error) { return nopHandle{}, nil }

type nopHandle struct{}

func (nopHandle) Stop() {}

// BellPlayer loops the terminal bell on w.
type BellPlayer struct {
	w        io.Writer
	interval time.Duration
}

// NewBellPlayer returns a player that writes BEL to w every interval.
func NewBellPlayer(w io.Writer, interval time.Duration) *BellPlayer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &BellPlayer{w: w, interval: interval}
}

// Play starts ringing immediately and keeps ringing until stopped.
func (p *BellPlayer) Play(Cue) (Handle, error) {
	if _, err := io.WriteString(p.w, "\a"); err != nil {
		return nil, err
	}

	h := &bellHandle{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				if _, err := io.WriteString(p.w, "\a"); err != nil {
					return
				}
			}
		}
	}()
	return h, nil
}

type bellHandle struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (h *bellHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
