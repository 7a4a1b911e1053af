package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/app"
	"github.com/nhle/pushline/internal/conn"
	"github.com/nhle/pushline/internal/credential"
	"github.com/nhle/pushline/internal/logging"
	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/present"
	"github.com/nhle/pushline/internal/session"
	"github.com/nhle/pushline/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pushline:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	token := flag.String("token", "", "push auth token (defaults to the keyring, then $PUSHLINE_TOKEN)")
	endpoint := flag.String("endpoint", "", "override the push endpoint")
	writeConfig := flag.Bool("write-config", false, "write the effective config to --config and exit")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *writeConfig {
		if err := model.SaveConfig(*configPath, cfg); err != nil {
			return err
		}
		fmt.Println("wrote", *configPath)
		return nil
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	// A missing keyring only costs token persistence between runs.
	var vault session.TokenVault
	if v, err := credential.Open(); err != nil {
		log.Warn("keyring unavailable", zap.Error(err))
	} else {
		vault = v
	}

	tok, err := session.ResolveToken(*token, vault)
	if errors.Is(err, credential.ErrNoToken) {
		tok = os.Getenv("PUSHLINE_TOKEN")
	} else if err != nil {
		return err
	}
	if tok == "" {
		return errors.New("no push token: pass --token or set PUSHLINE_TOKEN")
	}

	var player present.Player = present.NopPlayer{}
	if cfg.Presentation.Audio == "bell" {
		player = present.NewBellPlayer(os.Stdout, 0)
	}

	ctx := context.Background()
	sess := session.New(ctx, session.Deps{
		Config:    cfg,
		Persister: db,
		Dialer:    conn.NewWebSocketDialer(cfg.Endpoint, cfg.Role, cfg.Connection.HandshakeTimeout()),
		Player:    player,
		Vault:     vault,
		Logger:    log,
	})
	defer sess.Close()

	bridge := app.NewBridge()
	defer bridge.Close()
	bridge.Wire(sess)
	sess.Mount(bridge)

	p := tea.NewProgram(
		app.New(sess, cfg, tok, log),
		tea.WithAltScreen(),
	)
	bridge.Attach(p)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		p.Quit()
	}()

	log.Info("starting", zap.String("endpoint", cfg.Endpoint), zap.String("role", cfg.Role))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
