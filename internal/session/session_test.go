package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/credential"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/session"
	"github.com/nhle/pushline/internal/store"
	"github.com/nhle/pushline/tests/testutil"
)

type harness struct {
	sess      *session.Session
	dialer    *testutil.FakeDialer
	persister *testutil.MemPersister
	player    *testutil.CountingPlayer
	surface   *testutil.RecordingSurface
	vault     *credential.Vault
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer:    testutil.NewFakeDialer(),
		persister: testutil.NewMemPersister(),
		player:    &testutil.CountingPlayer{},
		surface:   &testutil.RecordingSurface{},
		vault:     credential.NewVault(keyring.NewArrayKeyring(nil)),
	}
	h.sess = session.New(context.Background(), session.Deps{
		Config:    model.DefaultConfig(),
		Persister: h.persister,
		Dialer:    h.dialer,
		Player:    h.player,
		Vault:     h.vault,
	})
	h.sess.Mount(h.surface)
	t.Cleanup(h.sess.Close)
	return h
}

func (h *harness) login(t *testing.T) *testutil.FakeChannel {
	t.Helper()
	_, err := h.sess.Login(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.sess.ConnectionState().Status == model.StatusConnected
	}, 2*time.Second, 2*time.Millisecond)
	return h.dialer.Last()
}

func TestLoginRequiresToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.sess.Login(context.Background(), "")
	assert.ErrorIs(t, err, credential.ErrNoToken)
	assert.Zero(t, h.dialer.Calls())
}

func TestLoginConnectsAndRemembersToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	assert.True(t, h.sess.Sweeper().Running())
	assert.Equal(t, []string{"tok-1"}, h.dialer.Tokens())

	tok, err := h.vault.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestPushedNotificationsReachStoreAndGate(t *testing.T) {
	h := newHarness(t)
	ch := h.login(t)

	ch.Push(`{"type":"notification","data":{"id":"n1","type":"order","title":"New order","message":"Order 9","priority":"urgent","metadata":{"orderId":"9"}}}`)
	ch.Push(`{"type":"notification","data":{"id":"n2","title":"Status","message":"Ready","priority":"normal"}}`)
	ch.Push(`{"type":"notification","data":{"id":"n1","title":"New order","message":"Order 9","priority":"urgent"}}`)

	require.Eventually(t, func() bool { return len(h.sess.Store().Active()) == 2 }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.surface.Toasts()) == 1 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, 2, h.sess.Store().UnreadCount())
	cur := h.sess.Gate().Current()
	assert.True(t, cur.Active)
	assert.Equal(t, "9", cur.SubjectID)
	assert.Equal(t, 1, h.player.Plays(), "replayed urgent event is not presented twice")
}

func TestLogoutClearsEverything(t *testing.T) {
	h := newHarness(t)
	ch := h.login(t)

	ch.Push(`{"type":"notification","data":{"id":"n1","title":"New order","message":"Order 9","priority":"urgent","metadata":{"orderId":"9"}}}`)
	require.Eventually(t, func() bool { return h.sess.Gate().Current().Active }, time.Second, 2*time.Millisecond)
	_, persisted := h.persister.Record(store.StateRecordName)
	require.True(t, persisted)

	require.NoError(t, h.sess.Logout(context.Background()))

	assert.Equal(t, model.StatusDisconnected, h.sess.ConnectionState().Status)
	assert.True(t, ch.Closed())
	assert.Empty(t, h.sess.Store().Active())
	assert.Zero(t, h.sess.Store().UnreadCount())
	assert.Nil(t, h.sess.Store().LastSync())
	assert.False(t, h.sess.Gate().Current().Active)
	assert.Zero(t, h.player.Live())
	assert.False(t, h.sess.Sweeper().Running())

	_, persisted = h.persister.Record(store.StateRecordName)
	assert.False(t, persisted)
	_, err := h.vault.Token()
	assert.ErrorIs(t, err, credential.ErrNoToken)

	h.sess.Reconnect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.Calls(), "reconnect without a token does nothing")
}

func TestResolveToken(t *testing.T) {
	v := credential.NewVault(keyring.NewArrayKeyring(nil))

	tok, err := session.ResolveToken("explicit", v)
	require.NoError(t, err)
	assert.Equal(t, "explicit", tok)

	_, err = session.ResolveToken("", v)
	assert.ErrorIs(t, err, credential.ErrNoToken)

	_, err = session.ResolveToken("", nil)
	assert.ErrorIs(t, err, credential.ErrNoToken)

	require.NoError(t, v.SaveToken("stored"))
	tok, err = session.ResolveToken("", v)
	require.NoError(t, err)
	assert.Equal(t, "stored", tok)

	_, err = session.ResolveToken("", brokenVault{})
	assert.ErrorContains(t, err, "reading stored token")
}

type brokenVault struct{}

func (brokenVault) Token() (string, error) { return "", errors.New("keyring locked") }
func (brokenVault) SaveToken(string) error { return nil }
func (brokenVault) ForgetToken() error     { return nil }
