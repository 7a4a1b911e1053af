package toast

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/internal/theme"
)

// ShowMsg asks the toast stack to display t.
type ShowMsg struct {
	Toast present.Toast
}

// expireMsg removes the toast shown under seq.
type expireMsg struct {
	seq int
}

// maxVisible bounds the stack. When it overflows, the least interruptive
// toast goes first, the oldest among equals.
const maxVisible = 3

type entry struct {
	seq   int
	toast present.Toast
}

// Model is a stack of transient toasts, newest at the bottom.
type Model struct {
	entries []entry
	seq     int
	width   int
}

// New creates an empty toast stack.
func New(width int) Model {
	return Model{width: width}
}

// Update handles ShowMsg and the expiry ticks it schedules.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ShowMsg:
		m.seq++
		seq := m.seq
		m.entries = append(m.entries, entry{seq: seq, toast: msg.Toast})
		for len(m.entries) > maxVisible {
			i := m.evictIndex()
			m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
		}
		d := msg.Toast.Duration
		if d <= 0 {
			d = 5 * time.Second
		}
		return m, tea.Tick(d, func(time.Time) tea.Msg { return expireMsg{seq: seq} })

	case expireMsg:
		for i, e := range m.entries {
			if e.seq == msg.seq {
				m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
				break
			}
		}
	}
	return m, nil
}

func (m Model) evictIndex() int {
	idx := 0
	for i, e := range m.entries {
		if e.toast.Priority.Rank() < m.entries[idx].toast.Priority.Rank() {
			idx = i
		}
	}
	return idx
}

// Len returns the number of visible toasts.
func (m Model) Len() int {
	return len(m.entries)
}

// Latest returns the most recent visible toast.
func (m Model) Latest() (present.Toast, bool) {
	if len(m.entries) == 0 {
		return present.Toast{}, false
	}
	return m.entries[len(m.entries)-1].toast, true
}

// View renders the stack, or "" when empty.
func (m Model) View() string {
	if len(m.entries) == 0 {
		return ""
	}
	width := min(max(m.width-2, 20), 60)

	boxes := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		t := e.toast
		title := theme.PriorityStyle(t.Priority).Render(t.Title)
		body := t.Message
		if t.Action != nil {
			body += "\n" + theme.HelpStyle.Render("enter/v to "+t.Action.Label)
		}
		boxes = append(boxes, theme.ToastStyle.
			Width(width).
			Render(lipgloss.JoinVertical(lipgloss.Left, title, body)))
	}
	stack := lipgloss.JoinVertical(lipgloss.Right, boxes...)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, stack)
}

// SetWidth updates the available width.
func (m *Model) SetWidth(width int) {
	m.width = width
}
