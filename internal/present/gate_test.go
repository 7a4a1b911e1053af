package present_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/tests/testutil"
)

func urgent(id, order string) model.Notification {
	return model.Notification{
		ID:       id,
		Title:    "New order",
		Message:  "Order " + order,
		Priority: model.PriorityUrgent,
		Metadata: map[string]any{"orderId": order},
	}
}

func TestPresentPassiveBuildsToast(t *testing.T) {
	g := present.NewGate(nil, present.Options{ToastDuration: 3 * time.Second})
	surface := &testutil.RecordingSurface{}
	g.Mount(surface)

	g.PresentPassive(model.Notification{ID: "a", Title: "Status", Message: "Ready", Priority: model.PriorityHigh, Metadata: map[string]any{"orderId": "9"}})
	g.PresentPassive(model.Notification{ID: "b", Title: "System", Message: "Maintenance"})

	toasts := surface.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "Status", toasts[0].Title)
	assert.Equal(t, 3*time.Second, toasts[0].Duration)
	require.NotNil(t, toasts[0].Action)
	assert.Equal(t, "9", toasts[0].Action.SubjectID)
	assert.Nil(t, toasts[1].Action)
}

func TestPresentPassiveWithoutSurfaceIsDropped(t *testing.T) {
	g := present.NewGate(nil, present.Options{})
	assert.NotPanics(t, func() { g.PresentPassive(model.Notification{ID: "a", Title: "x"}) })

	surface := &testutil.RecordingSurface{Reject: true}
	g.Mount(surface)
	g.PresentPassive(model.Notification{ID: "a", Title: "x"})
	assert.Empty(t, surface.Toasts())
}

func TestUrgentSupersedesAndReleasesAudio(t *testing.T) {
	player := &testutil.CountingPlayer{}
	g := present.NewGate(player, present.Options{})

	g.PresentUrgent(urgent("n1", "1"))
	g.PresentUrgent(urgent("n2", "2"))

	cur := g.Current()
	assert.True(t, cur.Active)
	assert.Equal(t, "2", cur.SubjectID)
	assert.Equal(t, "n2", cur.NotificationID)
	assert.Equal(t, 2, player.Plays())
	assert.Equal(t, 1, player.Live())
	assert.Equal(t, 1, player.MaxLive(), "previous audio stops before the next starts")
}

func TestDismissIsIdempotent(t *testing.T) {
	player := &testutil.CountingPlayer{}
	g := present.NewGate(player, present.Options{})

	var changes []present.UrgentInteraction
	g.OnChange(func(u present.UrgentInteraction) { changes = append(changes, u) })

	g.Dismiss()
	assert.Empty(t, changes)

	g.PresentUrgent(urgent("n1", "1"))
	g.Dismiss()
	g.Dismiss()

	assert.False(t, g.Current().Active)
	assert.Equal(t, 0, player.Live())
	require.Len(t, changes, 2)
	assert.True(t, changes[0].Active)
	assert.False(t, changes[1].Active)
}

func TestViewReturnsSubjectAndReleases(t *testing.T) {
	player := &testutil.CountingPlayer{}
	g := present.NewGate(player, present.Options{})

	_, ok := g.View()
	assert.False(t, ok)

	g.PresentUrgent(urgent("n1", "77"))
	subject, ok := g.View()
	assert.True(t, ok)
	assert.Equal(t, "77", subject)
	assert.False(t, g.Current().Active)
	assert.Equal(t, 0, player.Live())
}

func TestUrgentTimeoutAutoDismisses(t *testing.T) {
	player := &testutil.CountingPlayer{}
	g := present.NewGate(player, present.Options{UrgentTimeout: 20 * time.Millisecond})

	g.PresentUrgent(urgent("n1", "1"))
	assert.Eventually(t, func() bool { return !g.Current().Active }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, player.Live())
}

func TestStaleTimeoutDoesNotDismissNewerPrompt(t *testing.T) {
	player := &testutil.CountingPlayer{}
	g := present.NewGate(player, present.Options{UrgentTimeout: 50 * time.Millisecond})

	g.PresentUrgent(urgent("n1", "1"))
	time.Sleep(30 * time.Millisecond)
	g.PresentUrgent(urgent("n2", "2"))
	time.Sleep(30 * time.Millisecond)

	cur := g.Current()
	assert.True(t, cur.Active, "first prompt's timer must not close the second")
	assert.Equal(t, "n2", cur.NotificationID)
}

func TestAudioFailureStillOpensPrompt(t *testing.T) {
	player := &testutil.CountingPlayer{PlayErr: errors.New("no audio device")}
	g := present.NewGate(player, present.Options{})

	g.PresentUrgent(urgent("n1", "1"))
	assert.True(t, g.Current().Active)
	assert.NotPanics(t, g.Dismiss)
}
