package toast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/present"
)

func show(m Model, title string, p model.Priority) Model {
	m, _ = m.Update(ShowMsg{Toast: present.Toast{Title: title, Priority: p}})
	return m
}

func titles(m Model) []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.toast.Title
	}
	return out
}

func TestOverflowEvictsLeastInterruptive(t *testing.T) {
	m := New(80)
	m = show(m, "high", model.PriorityHigh)
	m = show(m, "normal-1", model.PriorityNormal)
	m = show(m, "normal-2", model.PriorityNormal)
	m = show(m, "high-2", model.PriorityHigh)

	assert.Equal(t, []string{"high", "normal-2", "high-2"}, titles(m))

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, "high-2", latest.Title)
}

func TestOverflowWithEqualPriorityDropsOldest(t *testing.T) {
	m := New(80)
	for _, title := range []string{"a", "b", "c", "d"} {
		m = show(m, title, model.PriorityNormal)
	}
	assert.Equal(t, []string{"b", "c", "d"}, titles(m))
}

func TestExpiryRemovesOnlyItsToast(t *testing.T) {
	m, cmd := New(80).Update(ShowMsg{Toast: present.Toast{Title: "a"}})
	require.NotNil(t, cmd, "schedules its expiry")
	m = show(m, "b", model.PriorityNormal)

	m, _ = m.Update(expireMsg{seq: 1})
	assert.Equal(t, []string{"b"}, titles(m))
	assert.Equal(t, 1, m.Len())

	m, _ = m.Update(expireMsg{seq: 1})
	assert.Equal(t, 1, m.Len(), "expiring twice is harmless")
}
