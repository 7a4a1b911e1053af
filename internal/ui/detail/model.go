package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pushline/internal/keys"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Model shows one notification and the subject it refers to.
type Model struct {
	n        *model.Notification
	subject  string
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.n == nil && m.subject == "" {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Notification no longer available")
	}
	return m.viewport.View()
}

// Show displays n. A nil n with a subject shows only the subject, which
// happens when the notification was evicted before the user opened it.
func (m *Model) Show(n *model.Notification, subject string) {
	m.n = n
	m.subject = subject
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Subject returns the subject currently shown.
func (m Model) Subject() string {
	return m.subject
}

func (m Model) renderContent() string {
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-10s", label+":")), valStyle.Render(value))
	}

	var sections []string
	if m.n == nil {
		sections = append(sections, titleStyle.Render("Order "+m.subject))
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	n := m.n
	sections = append(sections, titleStyle.Render(n.Title))
	sections = append(sections, theme.PriorityStyle(n.Priority).Render(strings.ToUpper(string(n.Priority))))
	sections = append(sections, "")

	sections = append(sections, row("Type", n.Type))
	if m.subject != "" && m.subject != n.ID {
		sections = append(sections, row("Order", m.subject))
	}
	sections = append(sections, row("Received", n.Timestamp.Local().Format("2006-01-02 15:04:05")))
	if n.ExpiresAt != nil {
		sections = append(sections, row("Expires", n.ExpiresAt.Local().Format("2006-01-02 15:04:05")))
	}
	state := "unread"
	switch {
	case n.Archived:
		state = "archived"
	case n.Read:
		state = "read"
	}
	sections = append(sections, row("State", state))

	if len(n.Metadata) > 0 {
		names := make([]string, 0, len(n.Metadata))
		for k := range n.Metadata {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			sections = append(sections, row(k, fmt.Sprint(n.Metadata[k])))
		}
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	}
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
