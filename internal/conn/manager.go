// Package conn maintains the single push channel of a session: connect,
// heartbeat, reconnect with fixed backoff, and teardown.
//
// All connection logic runs on one event-loop goroutine. Timers, the socket
// reader and the public methods only post events to that loop, so the state
// machine never sees concurrent transitions. Every timer and reader carries
// the generation it was started under; events from an older generation are
// dropped, which keeps a timer that fires after Disconnect from reviving a
// torn-down channel.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/protocol"
)

// Channel is one open push connection.
type Channel interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a channel authenticated with token. A rejected handshake
// must be reported as an *AuthError.
type Dialer interface {
	Dial(ctx context.Context, token string) (Channel, error)
}

// FrameHandler consumes raw inbound frames and reports their kind.
type FrameHandler interface {
	HandleFrame(ctx context.Context, raw []byte) protocol.Kind
}

// SyncSource supplies the instant sent with every reconnect sync request.
type SyncSource interface {
	LastSync() *time.Time
}

// Options configures a Manager.
type Options struct {
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration

	// TokenCheck, when set, runs before every dial. An error fails the
	// attempt as an authentication failure without touching the network.
	TokenCheck func(token string) error

	Logger *zap.Logger
	Now    func() time.Time
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 10 * time.Second
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 5 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// event is one message to the loop.
type event struct {
	kind eventKind
	gen  uint64

	token string
	ch    Channel
	err   error
	data  []byte

	// done is closed once the loop has handled the event.
	done chan struct{}
}

// sendQueueSize bounds the loop's inbox.
const sendQueueSize = 64

// Manager owns one logical push channel. The zero value is not usable;
// construct with NewManager.
type Manager struct {
	dialer  Dialer
	handler FrameHandler
	sync    SyncSource
	opts    Options
	log     *zap.Logger

	events  chan event
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc

	stateMu sync.RWMutex
	state   model.ConnectionState

	obsMu     sync.Mutex
	observers []func(model.ConnectionState)

	// Owned by the loop goroutine.
	machine   *machine
	token     string
	gen       uint64
	ch        Channel
	pingTimer *time.Timer
	ackTimer  *time.Timer
	retry     *time.Timer
}

// NewManager creates a manager and starts its event loop. sync may be nil,
// in which case sync requests carry a null lastSync.
func NewManager(d Dialer, h FrameHandler, sync SyncSource, opts Options) *Manager {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dialer:  d,
		handler: h,
		sync:    sync,
		opts:    opts,
		log:     opts.Logger,
		events:  make(chan event, sendQueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		machine: newMachine(opts.MaxReconnectAttempts),
	}
	go m.loop()
	return m
}

// Connect opens the channel with token. It is a no-op while connecting or
// connected. From the error status it starts a fresh round of attempts.
// It returns once the loop has accepted the request; the dial itself runs
// in the background.
func (m *Manager) Connect(token string) {
	m.postAndWait(event{kind: evConnect, token: token})
}

// Disconnect tears the channel down and cancels pending heartbeat and
// reconnect timers. It is safe to call repeatedly and in any state.
func (m *Manager) Disconnect() {
	m.postAndWait(event{kind: evDisconnect})
}

// Send queues v for delivery. While not connected, or when the queue is
// full, v is dropped. Send never blocks and never fails.
func (m *Manager) Send(v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		m.log.Warn("dropping unencodable frame", zap.Error(err))
		return
	}
	select {
	case m.events <- event{kind: evSend, data: data}:
	case <-m.stop:
	default:
		m.log.Debug("send queue full, dropping frame")
	}
}

// State returns a snapshot of the connection state.
func (m *Manager) State() model.ConnectionState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// OnStatus registers fn to receive every state change. fn runs on the
// manager's loop and must not call back into the manager.
func (m *Manager) OnStatus(fn func(model.ConnectionState)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Close disconnects and stops the event loop. The manager cannot be used
// afterwards.
func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.stop)
	})
	<-m.stopped
}

func (m *Manager) postAndWait(ev event) {
	ev.done = make(chan struct{})
	select {
	case m.events <- ev:
	case <-m.stop:
		return
	}
	select {
	case <-ev.done:
	case <-m.stopped:
	}
}

// post delivers an event from a timer or reader goroutine.
func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.stop:
	}
}

func (m *Manager) loop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.stop:
			m.teardown()
			m.cancel()
			m.machine.apply(evDisconnect)
			m.publish("")
			return
		case ev := <-m.events:
			m.handle(ev)
			if ev.done != nil {
				close(ev.done)
			}
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case evFrame:
		m.handleFrame(ev)
		return
	case evSend:
		m.write(ev.data)
		return
	case evPingDue:
		m.handlePing(ev)
		return
	}

	if m.isStale(ev) {
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		m.log.Debug("dropping stale event", zap.Stringer("event", ev.kind))
		return
	}

	if ev.kind == evConnect && ev.token != "" {
		m.token = ev.token
	}

	st := m.machine.apply(ev.kind)
	if !st.accepted {
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		return
	}

	lastErr := ""
	if ev.err != nil {
		lastErr = ev.err.Error()
	}
	if st.from != st.to || ev.err != nil {
		m.log.Info("connection transition",
			zap.Stringer("event", ev.kind),
			zap.Stringer("from", st.from),
			zap.Stringer("to", st.to),
			zap.Int("attempt", m.machine.attempt),
			zap.Error(ev.err),
		)
	}

	switch st.action {
	case actDial:
		m.dial()
	case actStartSession:
		m.startSession(ev.ch)
	case actRetry:
		m.teardown()
		m.scheduleRetry()
	case actTeardown:
		m.teardown()
	}

	if st.to == model.StatusError {
		m.log.Warn("reconnect attempts exhausted", zap.Int("attempts", m.machine.attempt))
	}
	m.publish(lastErr)
}

// isStale reports whether a loop-internal event belongs to an older
// generation. Public requests (connect, disconnect) are never stale.
func (m *Manager) isStale(ev event) bool {
	switch ev.kind {
	case evConnect, evDisconnect:
		return false
	}
	return ev.gen != m.gen
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	token := m.token

	go func() {
		if m.opts.TokenCheck != nil {
			if err := m.opts.TokenCheck(token); err != nil {
				m.post(event{kind: evAuthFailed, gen: gen, err: &AuthError{Message: err.Error()}})
				return
			}
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.opts.DialTimeout)
		defer cancel()

		ch, err := m.dialer.Dial(ctx, token)
		switch {
		case err == nil:
			m.post(event{kind: evDialSucceeded, gen: gen, ch: ch})
		case IsAuthError(err):
			m.post(event{kind: evAuthFailed, gen: gen, err: err})
		default:
			m.post(event{kind: evDialFailed, gen: gen, err: err})
		}
	}()
}

func (m *Manager) startSession(ch Channel) {
	m.ch = ch
	gen := m.gen

	go m.read(gen, ch)

	var last *time.Time
	if m.sync != nil {
		last = m.sync.LastSync()
	}
	m.writeValue(protocol.NewSyncRequest(last, m.opts.Now()))
	m.armPing()
}

// read pumps inbound frames into the loop until the channel fails.
func (m *Manager) read(gen uint64, ch Channel) {
	for {
		data, err := ch.ReadMessage()
		if err != nil {
			m.post(event{kind: evClosed, gen: gen, err: fmt.Errorf("reading frame: %w", err)})
			return
		}
		m.post(event{kind: evFrame, gen: gen, data: data})
	}
}

func (m *Manager) handleFrame(ev event) {
	if ev.gen != m.gen || m.ch == nil {
		return
	}
	kind := m.handler.HandleFrame(m.ctx, ev.data)
	if kind != protocol.KindHeartbeatAck {
		return
	}
	if m.ackTimer != nil {
		m.ackTimer.Stop()
		m.ackTimer = nil
	}
	m.stateMu.Lock()
	m.state.LastHeartbeatAt = m.opts.Now()
	m.stateMu.Unlock()
}

func (m *Manager) handlePing(ev event) {
	if ev.gen != m.gen || m.ch == nil {
		return
	}
	m.writeValue(protocol.NewPing(m.opts.Now()))
	if m.ch != nil && m.ackTimer == nil {
		gen := m.gen
		m.ackTimer = time.AfterFunc(m.opts.HeartbeatTimeout, func() {
			m.post(event{
				kind: evHeartbeatTimeout,
				gen:  gen,
				err:  errors.New("heartbeat acknowledgment timed out"),
			})
		})
	}
	m.armPing()
}

func (m *Manager) armPing() {
	if m.ch == nil {
		return
	}
	gen := m.gen
	m.pingTimer = time.AfterFunc(m.opts.HeartbeatInterval, func() {
		m.post(event{kind: evPingDue, gen: gen})
	})
}

func (m *Manager) scheduleRetry() {
	gen := m.gen
	m.retry = time.AfterFunc(m.opts.ReconnectInterval, func() {
		m.post(event{kind: evRetryElapsed, gen: gen})
	})
}

func (m *Manager) writeValue(v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		m.log.Warn("encoding outbound frame", zap.Error(err))
		return
	}
	m.write(data)
}

// write sends data on the open channel. A write failure is handled like an
// unexpected close.
func (m *Manager) write(data []byte) {
	if m.ch == nil || m.machine.status != model.StatusConnected {
		m.log.Debug("not connected, dropping outbound frame")
		return
	}
	if err := m.ch.WriteMessage(data); err != nil {
		m.handle(event{kind: evClosed, gen: m.gen, err: fmt.Errorf("writing frame: %w", err)})
	}
}

// teardown closes the channel, stops every timer and moves to a new
// generation so events already in flight are ignored.
func (m *Manager) teardown() {
	for _, t := range []*time.Timer{m.pingTimer, m.ackTimer, m.retry} {
		if t != nil {
			t.Stop()
		}
	}
	m.pingTimer, m.ackTimer, m.retry = nil, nil, nil

	if m.ch != nil {
		if err := m.ch.Close(); err != nil {
			m.log.Debug("closing channel", zap.Error(err))
		}
		m.ch = nil
	}
	m.gen++
}

func (m *Manager) publish(lastErr string) {
	m.stateMu.Lock()
	prev := m.state
	m.state.Status = m.machine.status
	m.state.Attempt = m.machine.attempt
	if lastErr != "" {
		m.state.LastError = lastErr
	} else if m.state.Status == model.StatusConnected {
		m.state.LastError = ""
	}
	cur := m.state
	m.stateMu.Unlock()

	if cur == prev {
		return
	}

	m.obsMu.Lock()
	obs := make([]func(model.ConnectionState), len(m.observers))
	copy(obs, m.observers)
	m.obsMu.Unlock()

	for _, fn := range obs {
		fn(cur)
	}
}
