package conn_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/conn"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/protocol"
	"github.com/nhle/pushline/tests/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// frameLog decodes and records every inbound frame.
type frameLog struct {
	mu    sync.Mutex
	kinds []protocol.Kind
}

func (f *frameLog) HandleFrame(_ context.Context, raw []byte) protocol.Kind {
	kind := protocol.KindInvalid
	if frame, err := protocol.Decode(raw, time.Now()); err == nil {
		kind = frame.Kind()
	}
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	return kind
}

func (f *frameLog) Kinds() []protocol.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Kind(nil), f.kinds...)
}

type fixedSync struct{ at *time.Time }

func (s fixedSync) LastSync() *time.Time { return s.at }

type statusLog struct {
	mu     sync.Mutex
	states []model.ConnectionStatus
}

func (s *statusLog) record(st model.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st.Status)
}

func (s *statusLog) Statuses() []model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ConnectionStatus(nil), s.states...)
}

func fastOptions() conn.Options {
	return conn.Options{
		HeartbeatInterval:    time.Hour,
		HeartbeatTimeout:     time.Hour,
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectAttempts: 3,
		DialTimeout:          time.Second,
	}
}

func newManager(t *testing.T, d conn.Dialer, h conn.FrameHandler, s conn.SyncSource, opts conn.Options) *conn.Manager {
	t.Helper()
	m := conn.NewManager(d, h, s, opts)
	t.Cleanup(m.Close)
	return m
}

func waitStatus(t *testing.T, m *conn.Manager, want model.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State().Status == want }, waitFor, tick,
		"status never became %s, last %s", want, m.State().Status)
}

func TestConnectSendsSyncRequest(t *testing.T) {
	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, fixedSync{at: &last}, fastOptions())

	log := &statusLog{}
	m.OnStatus(log.record)

	m.Connect("tok-1")
	waitStatus(t, m, model.StatusConnected)

	ch := d.Last()
	require.NotNil(t, ch)
	require.Eventually(t, func() bool { return len(ch.Written()) == 1 }, waitFor, tick)

	req := ch.Written()[0]
	assert.Equal(t, protocol.TypeSync, req["type"])
	assert.Equal(t, "2024-05-01T12:00:00.000Z", req["lastSync"])
	assert.Equal(t, []string{"tok-1"}, d.Tokens())
	assert.Equal(t, []model.ConnectionStatus{model.StatusConnecting, model.StatusConnected}, log.Statuses())
}

func TestSyncRequestWithoutHistoryCarriesNull(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)

	ch := d.Last()
	require.Eventually(t, func() bool { return len(ch.Written()) == 1 }, waitFor, tick)
	v, ok := ch.Written()[0]["lastSync"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestConnectIsIdempotent(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	m.Connect("tok")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.Calls())
}

func TestGivesUpAfterMaxAttemptsAndRecoversOnConnect(t *testing.T) {
	boom := errors.New("connection refused")
	d := testutil.NewFakeDialer(
		testutil.DialResult{Err: boom},
		testutil.DialResult{Err: boom},
		testutil.DialResult{Err: boom},
	)
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusError)

	st := m.State()
	assert.Equal(t, 3, st.Attempt)
	assert.Contains(t, st.LastError, "connection refused")
	assert.Equal(t, 3, d.Calls())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, d.Calls(), "no dials after giving up")

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	st = m.State()
	assert.Equal(t, 0, st.Attempt)
	assert.Empty(t, st.LastError)
}

func TestReconnectsAfterChannelDrops(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	first := d.Last()

	first.Drop()
	require.Eventually(t, func() bool { return d.Calls() == 2 }, waitFor, tick)
	waitStatus(t, m, model.StatusConnected)

	second := d.Last()
	assert.NotSame(t, first, second)
	assert.True(t, first.Closed())
	require.Eventually(t, func() bool { return len(second.WrittenTypes()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{protocol.TypeSync}, second.WrittenTypes())
	assert.Equal(t, []string{"tok", "tok"}, d.Tokens())
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	d := testutil.NewFakeDialer(testutil.DialResult{Err: errors.New("down")})
	opts := fastOptions()
	opts.ReconnectInterval = 30 * time.Millisecond
	m := newManager(t, d, &frameLog{}, nil, opts)

	m.Connect("tok")
	select {
	case <-d.Attempt:
	case <-time.After(waitFor):
		t.Fatal("no dial attempt")
	}
	m.Disconnect()
	m.Disconnect()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, model.StatusDisconnected, m.State().Status)
}

func TestDisconnectClosesChannel(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	m.Disconnect()

	assert.Equal(t, model.StatusDisconnected, m.State().Status)
	assert.True(t, d.Last().Closed())
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	assert.NotPanics(t, func() { m.Send(map[string]string{"type": "ack"}) })

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	ch := d.Last()

	m.Send(map[string]string{"type": "ack", "id": "n1"})
	require.Eventually(t, func() bool { return len(ch.WrittenTypes()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{protocol.TypeSync, "ack"}, ch.WrittenTypes())
}

func TestWriteFailureReconnects(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	d.Last().FailWrites(errors.New("broken pipe"))

	m.Send(map[string]string{"type": "ack"})
	require.Eventually(t, func() bool { return d.Calls() == 2 }, waitFor, tick)
	waitStatus(t, m, model.StatusConnected)
}

func TestFramesReachHandler(t *testing.T) {
	d := testutil.NewFakeDialer()
	h := &frameLog{}
	m := newManager(t, d, h, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)

	ch := d.Last()
	ch.Push(`{"type":"notification","data":{"id":"n1","title":"Hi","message":"there"}}`)
	ch.Push(`not json`)

	require.Eventually(t, func() bool { return len(h.Kinds()) == 2 }, waitFor, tick)
	assert.Equal(t, []protocol.Kind{protocol.KindNotification, protocol.KindInvalid}, h.Kinds())
	assert.Equal(t, model.StatusConnected, m.State().Status)
}

func TestMissingHeartbeatAckReconnects(t *testing.T) {
	d := testutil.NewFakeDialer()
	opts := fastOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	opts.HeartbeatTimeout = 20 * time.Millisecond
	m := newManager(t, d, &frameLog{}, nil, opts)

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	first := d.Last()

	require.Eventually(t, func() bool { return d.Calls() >= 2 }, waitFor, tick)
	assert.True(t, first.Closed())
	assert.Contains(t, first.WrittenTypes(), protocol.TypePing)
}

func TestHeartbeatAckKeepsConnection(t *testing.T) {
	d := testutil.NewFakeDialer()
	opts := fastOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	opts.HeartbeatTimeout = 40 * time.Millisecond
	m := newManager(t, d, &frameLog{}, nil, opts)

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)
	ch := d.Last()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 30; i++ {
			select {
			case <-ticker.C:
				ch.Push(`{"type":"pong"}`)
			case <-done:
				return
			}
		}
	}()
	time.Sleep(120 * time.Millisecond)
	close(done)

	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, model.StatusConnected, m.State().Status)
	assert.False(t, m.State().LastHeartbeatAt.IsZero())
}

func TestTokenCheckFailureStopsWithoutDialing(t *testing.T) {
	d := testutil.NewFakeDialer()
	opts := fastOptions()
	opts.TokenCheck = func(string) error { return errors.New("token expired") }
	m := newManager(t, d, &frameLog{}, nil, opts)

	m.Connect("tok")
	waitStatus(t, m, model.StatusError)

	assert.Equal(t, 0, d.Calls(), "rejected tokens never reach the network")
	assert.Equal(t, 1, m.State().Attempt)
	assert.Contains(t, m.State().LastError, "token expired")
}

func TestServerAuthRejectionIsNotRedialed(t *testing.T) {
	d := testutil.NewFakeDialer(testutil.DialResult{Err: &conn.AuthError{StatusCode: 401, Message: "Unauthorized"}})
	m := newManager(t, d, &frameLog{}, nil, fastOptions())

	m.Connect("bad")
	waitStatus(t, m, model.StatusError)
	assert.Contains(t, m.State().LastError, "401")
	assert.Equal(t, 1, m.State().Attempt)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.Calls(), "rejected credentials must not be redialed")

	m.Connect("good")
	waitStatus(t, m, model.StatusConnected)
	assert.Equal(t, []string{"bad", "good"}, d.Tokens())
	assert.Equal(t, 0, m.State().Attempt)
}

func TestCloseStopsManager(t *testing.T) {
	d := testutil.NewFakeDialer()
	m := conn.NewManager(d, &frameLog{}, nil, fastOptions())

	m.Connect("tok")
	waitStatus(t, m, model.StatusConnected)

	m.Close()
	m.Close()
	assert.Equal(t, model.StatusDisconnected, m.State().Status)
	assert.True(t, d.Last().Closed())
	assert.NotPanics(t, func() {
		m.Connect("tok")
		m.Send(map[string]string{"type": "ack"})
		m.Disconnect()
	})
}

func TestIsAuthError(t *testing.T) {
	err := &conn.AuthError{StatusCode: 403, Message: "Forbidden"}
	assert.True(t, conn.IsAuthError(err))
	assert.True(t, conn.IsAuthError(errors.Join(errors.New("dial"), err)))
	assert.False(t, conn.IsAuthError(errors.New("other")))
	assert.Equal(t, "auth error (403): Forbidden", err.Error())
}
