package app

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/internal/ui/toast"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *recordingSender) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSender) Msgs() []tea.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tea.Msg(nil), s.msgs...)
}

type hooks struct {
	store  func(model.NotificationState)
	urgent func(present.UrgentInteraction)
	status func(model.ConnectionState)
}

func (h *hooks) SubscribeStore(fn func(model.NotificationState))   { h.store = fn }
func (h *hooks) OnUrgentChange(fn func(present.UrgentInteraction)) { h.urgent = fn }
func (h *hooks) OnStatus(fn func(model.ConnectionState))           { h.status = fn }

func TestBridgeDropsBeforeAttach(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	assert.False(t, b.ShowToast(present.Toast{Title: "early"}))
}

func TestBridgeDeliversInOrder(t *testing.T) {
	b := NewBridge()
	s := &recordingSender{}
	b.Attach(s)

	h := &hooks{}
	b.Wire(h)

	h.status(model.ConnectionState{Status: model.StatusConnecting})
	assert.True(t, b.ShowToast(present.Toast{Title: "hello"}))
	h.store(model.NotificationState{UnreadCount: 1})
	h.urgent(present.UrgentInteraction{Active: true, SubjectID: "9"})

	require.Eventually(t, func() bool { return len(s.Msgs()) == 4 }, time.Second, time.Millisecond)
	msgs := s.Msgs()
	assert.Equal(t, ConnStatusMsg{State: model.ConnectionState{Status: model.StatusConnecting}}, msgs[0])
	assert.Equal(t, toast.ShowMsg{Toast: present.Toast{Title: "hello"}}, msgs[1])
	assert.Equal(t, 1, msgs[2].(StateChangedMsg).State.UnreadCount)
	assert.Equal(t, "9", msgs[3].(UrgentChangedMsg).Interaction.SubjectID)

	b.Close()
	b.Close()
	assert.False(t, b.ShowToast(present.Toast{Title: "late"}))
}
