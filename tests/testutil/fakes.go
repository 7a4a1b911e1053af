package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nhle/pushline/internal/conn"
	"github.com/nhle/pushline/internal/present"
)

// ErrChannelClosed is returned by a closed FakeChannel.
var ErrChannelClosed = errors.New("fake channel closed")

// FakeChannel is an in-memory conn.Channel.
type FakeChannel struct {
	in      chan []byte
	dropped chan struct{}
	dropMu  sync.Once

	mu       sync.Mutex
	written  [][]byte
	closed   bool
	writeErr error
}

// NewFakeChannel returns an open channel.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{
		in:      make(chan []byte, 64),
		dropped: make(chan struct{}),
	}
}

func (c *FakeChannel) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.dropped:
		return nil, ErrChannelClosed
	}
}

func (c *FakeChannel) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *FakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Drop()
	return nil
}

// Push delivers an inbound frame.
func (c *FakeChannel) Push(frame string) {
	c.in <- []byte(frame)
}

// Drop simulates the server going away: pending and future reads fail.
func (c *FakeChannel) Drop() {
	c.dropMu.Do(func() { close(c.dropped) })
}

// FailWrites makes every later write return err.
func (c *FakeChannel) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Closed reports whether Close was called.
func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Written returns the decoded outbound frames.
func (c *FakeChannel) Written() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.written))
	for _, data := range c.written {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// WrittenTypes returns the type tag of each outbound frame.
func (c *FakeChannel) WrittenTypes() []string {
	frames := c.Written()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

// DialResult is one scripted outcome of FakeDialer.Dial.
type DialResult struct {
	Channel *FakeChannel
	Err     error
}

// FakeDialer replays scripted results and then succeeds with fresh
// channels.
type FakeDialer struct {
	mu      sync.Mutex
	script  []DialResult
	tokens  []string
	dialed  []*FakeChannel
	Dialed  chan *FakeChannel
	Attempt chan struct{}
}

// NewFakeDialer returns a dialer that plays script first.
func NewFakeDialer(script ...DialResult) *FakeDialer {
	return &FakeDialer{
		script:  script,
		Dialed:  make(chan *FakeChannel, 64),
		Attempt: make(chan struct{}, 64),
	}
}

func (d *FakeDialer) Dial(_ context.Context, token string) (conn.Channel, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	var res DialResult
	if len(d.script) > 0 {
		res = d.script[0]
		d.script = d.script[1:]
	} else {
		res = DialResult{Channel: NewFakeChannel()}
	}
	if res.Err == nil && res.Channel == nil {
		res.Channel = NewFakeChannel()
	}
	if res.Err == nil {
		d.dialed = append(d.dialed, res.Channel)
	}
	d.mu.Unlock()

	select {
	case d.Attempt <- struct{}{}:
	default:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	select {
	case d.Dialed <- res.Channel:
	default:
	}
	return res.Channel, nil
}

// Script appends results to play next.
func (d *FakeDialer) Script(results ...DialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

// Calls returns how many dials were attempted.
func (d *FakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Tokens returns the tokens every dial used.
func (d *FakeDialer) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

// Last returns the most recently opened channel.
func (d *FakeDialer) Last() *FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dialed) == 0 {
		return nil
	}
	return d.dialed[len(d.dialed)-1]
}

// RecordingSurface collects toasts. Set Reject to refuse them.
type RecordingSurface struct {
	mu     sync.Mutex
	toasts []present.Toast
	Reject bool
}

func (s *RecordingSurface) ShowToast(t present.Toast) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reject {
		return false
	}
	s.toasts = append(s.toasts, t)
	return true
}

// Toasts returns every accepted toast.
func (s *RecordingSurface) Toasts() []present.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]present.Toast(nil), s.toasts...)
}

// CountingPlayer tracks how many audio handles are live at once.
type CountingPlayer struct {
	mu      sync.Mutex
	plays   int
	live    int
	maxLive int
	PlayErr error
}

func (p *CountingPlayer) Play(present.Cue) (present.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	p.plays++
	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	return &countingHandle{p: p}, nil
}

// Plays returns how many times audio was started.
func (p *CountingPlayer) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

// Live returns the number of handles not yet stopped.
func (p *CountingPlayer) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// MaxLive returns the highest number of simultaneously live handles.
func (p *CountingPlayer) MaxLive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxLive
}

type countingHandle struct {
	p    *CountingPlayer
	once sync.Once
}

func (h *countingHandle) Stop() {
	h.once.Do(func() {
		h.p.mu.Lock()
		h.p.live--
		h.p.mu.Unlock()
	})
}
