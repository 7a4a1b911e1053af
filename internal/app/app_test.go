package app

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/session"
	"github.com/nhle/pushline/tests/testutil"
)

type fakeReader struct {
	items map[string]model.Notification
	read  []string
}

func (r *fakeReader) Get(id string) (model.Notification, bool) {
	n, ok := r.items[id]
	return n, ok
}

func (r *fakeReader) MarkRead(_ context.Context, id string) {
	r.read = append(r.read, id)
}

func TestLoadOpenMarksRead(t *testing.T) {
	r := &fakeReader{items: map[string]model.Notification{
		"n1": {ID: "n1", Title: "New order", Metadata: map[string]any{"orderId": "9"}},
	}}

	msg, ok := loadOpen(r, "n1", "").(openMsg)
	require.True(t, ok)
	require.NotNil(t, msg.notification)
	assert.True(t, msg.notification.Read)
	assert.Equal(t, "9", msg.subject)
	assert.Equal(t, []string{"n1"}, r.read)
}

func TestLoadOpenFallsBackToSubject(t *testing.T) {
	r := &fakeReader{items: map[string]model.Notification{}}

	assert.Equal(t, openMsg{subject: "9"}, loadOpen(r, "gone", "9"))
	assert.Nil(t, loadOpen(r, "gone", ""))
	assert.Empty(t, r.read)
}

func newModel(t *testing.T) Model {
	t.Helper()
	sess := session.New(context.Background(), session.Deps{
		Persister: testutil.NewMemPersister(),
		Dialer:    testutil.NewFakeDialer(),
	})
	t.Cleanup(sess.Close)
	return New(sess, model.DefaultConfig(), "tok", nil)
}

func TestStatusLineOffersReconnect(t *testing.T) {
	m := newModel(t)
	m.loggedIn = true

	updated, _ := m.Update(ConnStatusMsg{State: model.ConnectionState{
		Status:    model.StatusError,
		Attempt:   5,
		LastError: "connection refused",
	}})
	m = updated.(Model)

	assert.Equal(t, "connection lost: connection refused | r reconnect", m.statusLine())
}

func TestStateChangeUpdatesBadge(t *testing.T) {
	m := newModel(t)
	updated, cmd := m.Update(StateChangedMsg{State: model.NotificationState{UnreadCount: 3}})
	m = updated.(Model)

	assert.Equal(t, 3, m.unread)
	assert.NotNil(t, cmd, "inbox reloads")
	assert.Contains(t, m.badge(), "3 unread")
}

func TestViewBeforeWindowSize(t *testing.T) {
	m := newModel(t)
	assert.Equal(t, "Starting pushline...", m.View())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.NotEqual(t, "Starting pushline...", updated.(Model).View())
}
