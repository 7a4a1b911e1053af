package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/keys"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/session"
	appsync "github.com/nhle/pushline/internal/sync"
	"github.com/nhle/pushline/internal/theme"
	"github.com/nhle/pushline/internal/ui"
	"github.com/nhle/pushline/internal/ui/detail"
	helpview "github.com/nhle/pushline/internal/ui/help"
	"github.com/nhle/pushline/internal/ui/inbox"
	"github.com/nhle/pushline/internal/ui/toast"
	"github.com/nhle/pushline/internal/ui/urgent"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
)

// loginResultMsg reports the outcome of the initial login.
type loginResultMsg struct {
	sweep tea.Cmd
	err   error
}

// logoutResultMsg reports the outcome of a logout.
type logoutResultMsg struct {
	err error
}

// openMsg carries the notification (or only the subject) to show in the
// detail view.
type openMsg struct {
	notification *model.Notification
	subject      string
}

// Model is the root Bubble Tea model that manages view routing, layout,
// and access to the push session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	sess         *session.Session
	cfg          *model.AppConfig
	log          *zap.Logger
	keys         *keys.KeyMap
	inbox        inbox.Model
	detail       detail.Model
	helpView     helpview.Model
	toasts       toast.Model
	prompt       urgent.Model
	token        string
	conn         model.ConnectionState
	unread       int
	loggedIn     bool
	statusNote   string
	ready        bool
}

// New creates the root model for sess. token is used to log in on Init.
func New(sess *session.Session, cfg *model.AppConfig, token string, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewList,
		sess:        sess,
		cfg:         cfg,
		log:         log,
		keys:        k,
		inbox:       inbox.New(sess.Store(), k, 80, 22),
		detail:      detail.New(k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		toasts:      toast.New(80),
		prompt:      urgent.New(80, 22),
		token:       token,
		conn:        sess.ConnectionState(),
		unread:      sess.Store().UnreadCount(),
	}
}

// Init loads the inbox and logs in.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.Init(),
		m.login(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.toasts.SetWidth(w)
		m.prompt.SetSize(w, h)
		return m, nil

	case loginResultMsg:
		if msg.err != nil {
			m.log.Warn("login failed", zap.Error(msg.err))
			m.statusNote = "login failed: " + msg.err.Error()
			return m, nil
		}
		m.loggedIn = true
		return m, msg.sweep

	case logoutResultMsg:
		m.loggedIn = false
		m.token = ""
		m.currentView = ViewList
		m.prompt.Close()
		if msg.err != nil {
			m.statusNote = "logged out, token not removed: " + msg.err.Error()
		} else {
			m.statusNote = "logged out"
		}
		return m, m.inbox.LoadItems()

	case StateChangedMsg:
		m.unread = msg.State.UnreadCount
		return m, m.inbox.LoadItems()

	case ConnStatusMsg:
		m.conn = msg.State
		return m, nil

	case UrgentChangedMsg:
		u := msg.Interaction
		if !u.Active {
			m.prompt.Close()
			return m, nil
		}
		if !m.prompt.Active() || m.prompt.Current().NotificationID != u.NotificationID {
			return m, m.prompt.Open(u)
		}
		return m, nil

	case appsync.PurgeResultMsg:
		m.statusNote = fmt.Sprintf("%d expired notifications removed", msg.Removed)
		return m, m.sess.Sweeper().WaitForNextResult()

	case toast.ShowMsg:
		var cmd tea.Cmd
		m.toasts, cmd = m.toasts.Update(msg)
		return m, cmd

	case urgent.ViewMsg:
		return m, m.viewUrgent(msg.NotificationID)

	case urgent.DismissMsg:
		return m, m.dismissUrgent()

	case inbox.ItemsLoadedMsg:
		var cmd tea.Cmd
		m.inbox, cmd = m.inbox.Update(msg)
		return m, cmd

	case inbox.MarkReadMsg:
		return m, m.storeCmd(func(ctx context.Context) { m.sess.Store().MarkRead(ctx, msg.ID) })

	case inbox.ArchiveMsg:
		return m, m.storeCmd(func(ctx context.Context) { m.sess.Store().Archive(ctx, msg.ID) })

	case inbox.MarkAllReadMsg:
		return m, m.storeCmd(func(ctx context.Context) { m.sess.Store().MarkAllRead(ctx) })

	case inbox.OpenMsg:
		return m, m.open(msg.ID, "")

	case openMsg:
		m.detail.Show(msg.notification, msg.subject)
		if m.currentView != ViewDetail {
			m.previousView = m.currentView
		}
		m.currentView = ViewDetail
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Toast expiry ticks and anything else the children scheduled.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.toasts, cmd = m.toasts.Update(msg)
	cmds = append(cmds, cmd)
	if m.prompt.Active() {
		m.prompt, cmd = m.prompt.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// The urgent prompt blocks every other interaction.
	if m.prompt.Active() {
		switch {
		case key.Matches(msg, m.keys.Dismiss):
			m.prompt.Close()
			return m, m.dismissUrgent()
		case key.Matches(msg, m.keys.View):
			id := m.prompt.Current().NotificationID
			m.prompt.Close()
			return m, m.viewUrgent(id)
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
		} else {
			m.previousView = m.currentView
			m.currentView = ViewHelp
		}
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		if !m.loggedIn {
			return m, m.login()
		}
		m.statusNote = ""
		s := m.sess
		return m, func() tea.Msg {
			s.Reconnect()
			return nil
		}

	case key.Matches(msg, m.keys.Logout):
		if !m.loggedIn {
			return m, nil
		}
		return m, m.logout()
	}

	switch m.currentView {
	case ViewHelp:
		if key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
		}
		return m, nil

	case ViewDetail:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	// An actionable toast takes "view" before the list does.
	if key.Matches(msg, m.keys.View) {
		if t, ok := m.toasts.Latest(); ok && t.Action != nil {
			return m, m.open(t.NotificationID, t.Action.SubjectID)
		}
	}

	var cmd tea.Cmd
	m.inbox, cmd = m.inbox.Update(msg)
	return m, cmd
}

// View renders the full terminal frame.
func (m Model) View() string {
	if !m.ready {
		return "Starting pushline..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.connIndicator(), m.badge())
	statusBar := m.layout.RenderStatusBar(m.statusLine())
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	if m.prompt.Active() {
		return m.layout.Center(m.prompt.View())
	}

	var content string
	switch m.currentView {
	case ViewDetail:
		content = m.detail.View()
	case ViewHelp:
		content = m.helpView.View()
	default:
		content = m.inbox.View()
	}
	return m.layout.StackBottom(content, m.toasts.View())
}

func (m Model) headerTitle() string {
	if m.cfg == nil || m.cfg.Role == "" {
		return "pushline"
	}
	return "pushline · " + m.cfg.Role
}

func (m Model) connIndicator() string {
	label := "● " + m.conn.Status.String()
	if m.conn.Status == model.StatusConnecting && m.conn.Attempt > 0 {
		label = fmt.Sprintf("● reconnecting (%d)", m.conn.Attempt)
	}
	return theme.ConnectionStyle(m.conn.Status).
		Background(theme.HeaderStyle.GetBackground()).
		Render(label)
}

func (m Model) badge() string {
	if m.unread == 0 {
		return ""
	}
	return theme.BadgeStyle.Render(fmt.Sprintf("%d unread", m.unread))
}

// statusLine returns the status bar text: the reconnect affordance when the
// channel gave up, otherwise the last note or keyboard hints.
func (m Model) statusLine() string {
	if m.conn.Status == model.StatusError && m.loggedIn {
		msg := "connection lost"
		if m.conn.LastError != "" {
			msg += ": " + m.conn.LastError
		}
		return msg + " | r reconnect"
	}
	if m.statusNote != "" {
		return m.statusNote
	}

	switch {
	case m.prompt.Active():
		return "v view order | d dismiss"
	case m.currentView == ViewHelp:
		return "? close help | esc back"
	case m.currentView == ViewDetail:
		return "esc back | j/k scroll"
	case m.inbox.ShowingArchived():
		return "tab inbox | q quit | ? help"
	case m.inbox.ShowingUnreadOnly():
		return "u show all | enter read | x archive | q quit"
	default:
		return "q quit | ? help | enter read | x archive | A all read | u unread | tab archived"
	}
}

func (m Model) login() tea.Cmd {
	s := m.sess
	token := m.token
	return func() tea.Msg {
		sweep, err := s.Login(context.Background(), token)
		return loginResultMsg{sweep: sweep, err: err}
	}
}

func (m Model) logout() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return logoutResultMsg{err: s.Logout(context.Background())}
	}
}

func (m Model) dismissUrgent() tea.Cmd {
	g := m.sess.Gate()
	return func() tea.Msg {
		g.Dismiss()
		return nil
	}
}

// viewUrgent releases the urgent interaction and opens its subject.
func (m Model) viewUrgent(id string) tea.Cmd {
	g := m.sess.Gate()
	st := m.sess.Store()
	return func() tea.Msg {
		subject, ok := g.View()
		if !ok {
			return nil
		}
		return loadOpen(st, id, subject)
	}
}

// open shows the notification id and marks it read.
func (m Model) open(id, subject string) tea.Cmd {
	st := m.sess.Store()
	return func() tea.Msg {
		return loadOpen(st, id, subject)
	}
}

func loadOpen(st notificationReader, id, subject string) tea.Msg {
	n, ok := st.Get(id)
	if !ok {
		if subject == "" {
			return nil
		}
		return openMsg{subject: subject}
	}
	st.MarkRead(context.Background(), id)
	n.Read = true
	if subject == "" {
		subject = n.SubjectID()
	}
	return openMsg{notification: &n, subject: subject}
}

// notificationReader is the part of the store the open action needs.
type notificationReader interface {
	Get(id string) (model.Notification, bool)
	MarkRead(ctx context.Context, id string)
}

func (m Model) storeCmd(fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		fn(context.Background())
		return nil
	}
}
