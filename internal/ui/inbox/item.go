package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string { return i.Notification.Title }

// Title returns the notification title for the list.
func (i NotificationItem) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i NotificationItem) Description() string {
	parts := []string{
		i.Notification.Type,
		string(i.Notification.Priority),
		relativeTime(i.Notification.Timestamp, time.Now()),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(NotificationItem)
	if !ok {
		return
	}
	n := it.Notification
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	marker := "○"
	if n.IsUnread() {
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	priBadge := theme.PriorityStyle(n.Priority).Render(priorityLabel(n.Priority))

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.Timestamp, now()))

	title := n.Title
	if title == "" {
		title = n.Message
	}

	line := fmt.Sprintf("%s %s %s  %s", marker, priBadge, title, timeStr)

	if !n.IsUnread() {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}

// priorityLabel returns a fixed-width label for p.
func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "URG"
	case model.PriorityHigh:
		return "HI "
	case model.PriorityLow:
		return "LO "
	default:
		return "   "
	}
}
