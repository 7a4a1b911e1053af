// Package session composes the notification store, push connection,
// router, presentation gate and expiry sweeper into one owned instance per
// signed-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/conn"
	"github.com/nhle/pushline/internal/credential"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/internal/router"
	"github.com/nhle/pushline/internal/store"
	sweep "github.com/nhle/pushline/internal/sync"
)

// TokenVault persists the push token between runs.
type TokenVault interface {
	Token() (string, error)
	SaveToken(token string) error
	ForgetToken() error
}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Config    *model.AppConfig
	Persister store.Persister
	Dialer    conn.Dialer

	// Player plays the urgent cue. Nil plays nothing.
	Player present.Player

	// Vault, when set, remembers the token across runs.
	Vault TokenVault

	Logger *zap.Logger
	Now    func() time.Time
}

// Session owns one instance of every push component.
type Session struct {
	store   *store.NotificationStore
	gate    *present.Gate
	manager *conn.Manager
	sweeper *sweep.Sweeper
	vault   TokenVault
	log     *zap.Logger

	mu    sync.Mutex
	token string
}

// New loads the notification history and wires the components together.
// No connection is opened until Login.
func New(ctx context.Context, d Deps) *Session {
	cfg := d.Config
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	st := store.Open(ctx, d.Persister, store.Options{
		MaxRetained: cfg.Store.MaxRetained,
		Logger:      log.Named("store"),
		Now:         now,
	})
	gate := present.NewGate(d.Player, present.Options{
		ToastDuration: cfg.Presentation.ToastDuration(),
		UrgentTimeout: cfg.Presentation.UrgentTimeout(),
		Logger:        log.Named("present"),
		Now:           now,
	})
	rt := router.New(st, gate, log.Named("router"))
	mgr := conn.NewManager(d.Dialer, rt, st, conn.Options{
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval(),
		HeartbeatTimeout:     cfg.Connection.HeartbeatTimeout(),
		ReconnectInterval:    cfg.Connection.ReconnectInterval(),
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		DialTimeout:          cfg.Connection.HandshakeTimeout(),
		TokenCheck: func(token string) error {
			return credential.CheckToken(token, now())
		},
		Logger: log.Named("conn"),
		Now:    now,
	})

	return &Session{
		store:   st,
		gate:    gate,
		manager: mgr,
		sweeper: sweep.New(st, cfg.Store.PurgeInterval(), log.Named("sweeper")),
		vault:   d.Vault,
		log:     log,
	}
}

// Store returns the notification store.
func (s *Session) Store() *store.NotificationStore { return s.store }

// Gate returns the presentation gate.
func (s *Session) Gate() *present.Gate { return s.gate }

// Sweeper returns the expiry sweeper.
func (s *Session) Sweeper() *sweep.Sweeper { return s.sweeper }

// ConnectionState returns the push channel state.
func (s *Session) ConnectionState() model.ConnectionState { return s.manager.State() }

// OnStatus registers fn for connection state changes.
func (s *Session) OnStatus(fn func(model.ConnectionState)) { s.manager.OnStatus(fn) }

// SubscribeStore registers fn for notification store changes.
func (s *Session) SubscribeStore(fn func(model.NotificationState)) { s.store.Subscribe(fn) }

// OnUrgentChange registers fn for changes of the urgent prompt.
func (s *Session) OnUrgentChange(fn func(present.UrgentInteraction)) { s.gate.OnChange(fn) }

// Mount attaches the toast surface.
func (s *Session) Mount(surface present.Surface) { s.gate.Mount(surface) }

// Send queues an outbound frame on the push channel.
func (s *Session) Send(v any) { s.manager.Send(v) }

// Login remembers token, sweeps expired history, starts the periodic sweeper
// and opens the push channel. The returned command delivers sweep results to
// the UI.
func (s *Session) Login(ctx context.Context, token string) (tea.Cmd, error) {
	if token == "" {
		return nil, credential.ErrNoToken
	}

	if s.vault != nil {
		if err := s.vault.SaveToken(token); err != nil {
			s.log.Warn("token not saved, continuing with this run only", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.sweeper.RunOnce(ctx)
	cmd := s.sweeper.Start()
	s.manager.Connect(token)

	s.log.Info("session started", zap.Int("history", len(s.store.Active())))
	return cmd, nil
}

// Reconnect starts a fresh round of connection attempts with the current
// token. It does nothing while already connecting or connected.
func (s *Session) Reconnect() {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return
	}
	s.manager.Connect(token)
}

// Logout closes the channel, clears every trace of the user's notifications
// and forgets the stored token.
func (s *Session) Logout(ctx context.Context) error {
	s.manager.Disconnect()
	s.gate.Dismiss()
	s.sweeper.Stop()
	s.store.Clear(ctx)

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	s.log.Info("session ended")

	if s.vault == nil {
		return nil
	}
	if err := s.vault.ForgetToken(); err != nil {
		return fmt.Errorf("forgetting token: %w", err)
	}
	return nil
}

// Close releases every component but keeps the notification history.
func (s *Session) Close() {
	s.sweeper.Stop()
	s.gate.Dismiss()
	s.manager.Close()
}

// ResolveToken returns explicit if set, otherwise the vault's stored token.
func ResolveToken(explicit string, v TokenVault) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v == nil {
		return "", credential.ErrNoToken
	}
	token, err := v.Token()
	if errors.Is(err, credential.ErrNoToken) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("reading stored token: %w", err)
	}
	return token, nil
}
