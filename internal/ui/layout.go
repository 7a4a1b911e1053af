package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pushline/internal/theme"
)

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top bar: title on the left, then the already
// styled right-hand segments (connection indicator, unread badge).
func (l Layout) RenderHeader(title string, right ...string) string {
	titleRendered := theme.HeaderStyle.Render(title)
	rightRendered := lipgloss.JoinHorizontal(lipgloss.Top, right...)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(rightRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		rightRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}

// Center places box in the middle of the content area, replacing whatever
// was rendered there.
func (l Layout) Center(box string) string {
	return lipgloss.Place(
		l.ContentWidth(),
		l.ContentHeight(),
		lipgloss.Center,
		lipgloss.Center,
		box,
	)
}

// StackBottom appends overlay beneath content and trims content so the
// pair fits in the content area.
func (l Layout) StackBottom(content, overlay string) string {
	if overlay == "" {
		return content
	}
	room := l.ContentHeight() - lipgloss.Height(overlay)
	if room < 0 {
		room = 0
	}
	trimmed := lipgloss.NewStyle().MaxHeight(room).Render(content)
	body := lipgloss.PlaceVertical(room, lipgloss.Top, trimmed)
	return lipgloss.JoinVertical(lipgloss.Left, body, overlay)
}
