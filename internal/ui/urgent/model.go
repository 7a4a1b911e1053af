package urgent

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/internal/theme"
)

// ViewMsg is dispatched when the user chooses to open the subject.
type ViewMsg struct {
	NotificationID string
}

// DismissMsg is dispatched when the user dismisses the prompt.
type DismissMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	view bool
}

// Model is the blocking prompt shown while an urgent interaction is active.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	current present.UrgentInteraction
	width   int
	height  int
}

// New creates an inactive prompt.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Open shows the prompt for u, replacing any prompt already open.
func (m *Model) Open(u present.UrgentInteraction) tea.Cmd {
	m.current = u
	m.fb.view = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(u.Title).
				Description(u.Message).
				Affirmative("View order").
				Negative("Dismiss").
				Value(&m.fb.view),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
	return m.form.Init()
}

// Close hides the prompt.
func (m *Model) Close() {
	m.form = nil
	m.current = present.UrgentInteraction{}
}

// Active reports whether the prompt is showing.
func (m Model) Active() bool {
	return m.form != nil
}

// Current returns the interaction the prompt was opened for.
func (m Model) Current() present.UrgentInteraction {
	return m.current
}

// Update forwards input to the confirm form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		view := m.fb.view
		id := m.current.NotificationID
		m.Close()
		if view {
			return m, func() tea.Msg { return ViewMsg{NotificationID: id} }
		}
		return m, func() tea.Msg { return DismissMsg{} }
	case huh.StateAborted:
		m.Close()
		return m, func() tea.Msg { return DismissMsg{} }
	}

	return m, cmd
}

// View renders the prompt, or "" when inactive.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	heading := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorRed).
		Render("URGENT")

	since := ""
	if !m.current.StartedAt.IsZero() {
		since = theme.HelpStyle.Render(
			fmt.Sprintf("waiting %s", time.Since(m.current.StartedAt).Truncate(time.Second)),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, heading, "", m.form.View(), since)
	return theme.ModalStyle.Render(content)
}

// SetSize updates the prompt dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 10
	if w < 30 {
		w = 30
	}
	if w > 70 {
		w = 70
	}
	return w
}
