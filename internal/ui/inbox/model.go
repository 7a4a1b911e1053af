package inbox

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pushline/internal/keys"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/theme"
)

// Source supplies the notifications shown in the inbox.
type Source interface {
	Active() []model.Notification
	Unread() []model.Notification
	Archived() []model.Notification
}

// ItemsLoadedMsg carries a fresh list of notifications.
type ItemsLoadedMsg struct {
	Archived      bool
	UnreadOnly    bool
	Notifications []model.Notification
}

// MarkReadMsg asks the parent to mark a notification read.
type MarkReadMsg struct{ ID string }

// ArchiveMsg asks the parent to archive a notification.
type ArchiveMsg struct{ ID string }

// MarkAllReadMsg asks the parent to mark every active notification read.
type MarkAllReadMsg struct{}

// OpenMsg asks the parent to show a notification in full.
type OpenMsg struct{ ID string }

// Model is the notification list view component.
type Model struct {
	list       list.Model
	source     Source
	keys       *keys.KeyMap
	archived   bool
	unreadOnly bool
	width      int
	height     int
}

// New creates a new inbox model.
func New(src Source, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	// The app owns these keys.
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)
	l.KeyMap.NextPage = key.NewBinding(key.WithKeys("right", "pgdown"))
	l.KeyMap.PrevPage = key.NewBinding(key.WithKeys("left", "pgup"))

	return Model{
		list:   l,
		source: src,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init returns a command that loads the initial set of notifications.
func (m Model) Init() tea.Cmd {
	return m.LoadItems()
}

// Update handles messages for the inbox.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ItemsLoadedMsg:
		if msg.Archived != m.archived || msg.UnreadOnly != m.unreadOnly {
			return m, nil
		}
		items := make([]list.Item, len(msg.Notifications))
		for i, n := range msg.Notifications {
			items[i] = NotificationItem{Notification: n}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleView):
		m.archived = !m.archived
		m.unreadOnly = false
		m.refreshTitle()
		m.list.ResetSelected()
		return m, m.LoadItems()

	case key.Matches(msg, m.keys.UnreadOnly):
		if m.archived {
			return m, nil
		}
		m.unreadOnly = !m.unreadOnly
		m.refreshTitle()
		m.list.ResetSelected()
		return m, m.LoadItems()

	case key.Matches(msg, m.keys.MarkAllRead):
		if m.archived {
			return m, nil
		}
		return m, func() tea.Msg { return MarkAllReadMsg{} }

	case key.Matches(msg, m.keys.MarkRead):
		if id, ok := m.selectedID(); ok {
			return m, func() tea.Msg { return MarkReadMsg{ID: id} }
		}
		return m, nil

	case key.Matches(msg, m.keys.Archive):
		if id, ok := m.selectedID(); ok && !m.archived {
			return m, func() tea.Msg { return ArchiveMsg{ID: id} }
		}
		return m, nil

	case key.Matches(msg, m.keys.View):
		if id, ok := m.selectedID(); ok {
			return m, func() tea.Msg { return OpenMsg{ID: id} }
		}
		return m, nil
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selectedID() (string, bool) {
	it, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return "", false
	}
	return it.Notification.ID, true
}

func (m *Model) refreshTitle() {
	switch {
	case m.archived:
		m.list.Title = "Archived"
	case m.unreadOnly:
		m.list.Title = "Unread"
	default:
		m.list.Title = "Inbox"
	}
}

// ShowingUnreadOnly reports whether the inbox hides read notifications.
func (m Model) ShowingUnreadOnly() bool {
	return m.unreadOnly
}

// ShowingArchived reports whether the archived view is active.
func (m Model) ShowingArchived() bool {
	return m.archived
}

// View renders the inbox.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.archived {
		return style.Render("Nothing archived.\n\nPress tab to return to the inbox.")
	}
	if m.unreadOnly {
		return style.Render("All caught up.\n\nPress u to show read notifications too.")
	}
	return style.Render("No notifications yet.\n\nNew orders and updates appear here as they arrive.")
}

// LoadItems returns a tea.Cmd that reads the current view from the source.
func (m Model) LoadItems() tea.Cmd {
	src := m.source
	archived, unreadOnly := m.archived, m.unreadOnly
	return func() tea.Msg {
		switch {
		case archived:
			return ItemsLoadedMsg{Archived: true, Notifications: src.Archived()}
		case unreadOnly:
			return ItemsLoadedMsg{UnreadOnly: true, Notifications: src.Unread()}
		default:
			return ItemsLoadedMsg{Notifications: src.Active()}
		}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
