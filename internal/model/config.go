package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConnectionConfig holds the push channel tuning values. None of them are
// structural; they are product-tuning knobs.
type ConnectionConfig struct {
	// HeartbeatIntervalSec is how often a ping is sent while connected.
	HeartbeatIntervalSec int `mapstructure:"heartbeat_interval_sec" yaml:"heartbeat_interval_sec"`

	// HeartbeatTimeoutSec bounds the wait for a heartbeat acknowledgment.
	HeartbeatTimeoutSec int `mapstructure:"heartbeat_timeout_sec" yaml:"heartbeat_timeout_sec"`

	// ReconnectIntervalSec is the fixed backoff between reconnect attempts.
	ReconnectIntervalSec int `mapstructure:"reconnect_interval_sec" yaml:"reconnect_interval_sec"`

	// MaxReconnectAttempts is the number of failed attempts after which the
	// connection settles to the error status.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`

	// HandshakeTimeoutSec bounds a single dial.
	HandshakeTimeoutSec int `mapstructure:"handshake_timeout_sec" yaml:"handshake_timeout_sec"`
}

// HeartbeatInterval returns the configured heartbeat interval.
func (c ConnectionConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

// HeartbeatTimeout returns the configured heartbeat acknowledgment timeout.
func (c ConnectionConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSec) * time.Second
}

// ReconnectInterval returns the configured reconnect backoff.
func (c ConnectionConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSec) * time.Second
}

// HandshakeTimeout returns the configured dial timeout.
func (c ConnectionConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSec) * time.Second
}

// StoreConfig holds notification history settings.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// MaxRetained caps the number of stored notifications.
	MaxRetained int `mapstructure:"max_retained" yaml:"max_retained"`

	// PurgeIntervalSec is how often expired notifications are swept.
	PurgeIntervalSec int `mapstructure:"purge_interval_sec" yaml:"purge_interval_sec"`
}

// PurgeInterval returns the configured sweep interval.
func (c StoreConfig) PurgeInterval() time.Duration {
	return time.Duration(c.PurgeIntervalSec) * time.Second
}

// PresentationConfig holds toast and urgent prompt settings.
type PresentationConfig struct {
	ToastDurationSec int `mapstructure:"toast_duration_sec" yaml:"toast_duration_sec"`

	// UrgentTimeoutSec auto-dismisses an unanswered urgent prompt.
	// Zero keeps the prompt until the user acts.
	UrgentTimeoutSec int `mapstructure:"urgent_timeout_sec" yaml:"urgent_timeout_sec"`

	// Audio selects the urgent audio backend: "bell" or "none".
	Audio string `mapstructure:"audio" yaml:"audio"`
}

// ToastDuration returns how long a toast stays visible.
func (c PresentationConfig) ToastDuration() time.Duration {
	return time.Duration(c.ToastDurationSec) * time.Second
}

// UrgentTimeout returns the urgent auto-dismiss timeout, zero if disabled.
func (c PresentationConfig) UrgentTimeout() time.Duration {
	return time.Duration(c.UrgentTimeoutSec) * time.Second
}

// LogConfig holds log file settings.
type LogConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	Level      string `mapstructure:"level" yaml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Endpoint is the websocket URL of the push server.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Role names the client app (rider, customer, vendor). Shown in the
	// header and sent as a query parameter on connect.
	Role string `mapstructure:"role" yaml:"role"`

	Connection   ConnectionConfig   `mapstructure:"connection" yaml:"connection"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Presentation PresentationConfig `mapstructure:"presentation" yaml:"presentation"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/pushline/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "pushline", "config.yaml")
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Endpoint: "ws://localhost:8080/ws",
		Role:     "vendor",
		Connection: ConnectionConfig{
			HeartbeatIntervalSec: 30,
			HeartbeatTimeoutSec:  10,
			ReconnectIntervalSec: 5,
			MaxReconnectAttempts: 5,
			HandshakeTimeoutSec:  10,
		},
		Store: StoreConfig{
			Path:             "~/.local/share/pushline/pushline.db",
			MaxRetained:      50,
			PurgeIntervalSec: 60,
		},
		Presentation: PresentationConfig{
			ToastDurationSec: 5,
			UrgentTimeoutSec: 0,
			Audio:            "bell",
		},
		Log: LogConfig{
			Path:       "~/.local/state/pushline/pushline.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Environment variables prefixed with PUSHLINE_ override file values
// (e.g. PUSHLINE_ENDPOINT, PUSHLINE_CONNECTION_MAX_RECONNECT_ATTEMPTS).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("pushline")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	def := DefaultConfig()
	v.SetDefault("endpoint", def.Endpoint)
	v.SetDefault("role", def.Role)
	v.SetDefault("connection.heartbeat_interval_sec", def.Connection.HeartbeatIntervalSec)
	v.SetDefault("connection.heartbeat_timeout_sec", def.Connection.HeartbeatTimeoutSec)
	v.SetDefault("connection.reconnect_interval_sec", def.Connection.ReconnectIntervalSec)
	v.SetDefault("connection.max_reconnect_attempts", def.Connection.MaxReconnectAttempts)
	v.SetDefault("connection.handshake_timeout_sec", def.Connection.HandshakeTimeoutSec)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("store.max_retained", def.Store.MaxRetained)
	v.SetDefault("store.purge_interval_sec", def.Store.PurgeIntervalSec)
	v.SetDefault("presentation.toast_duration_sec", def.Presentation.ToastDurationSec)
	v.SetDefault("presentation.urgent_timeout_sec", def.Presentation.UrgentTimeoutSec)
	v.SetDefault("presentation.audio", def.Presentation.Audio)
	v.SetDefault("log.path", def.Log.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Store.Path = ExpandHome(cfg.Store.Path)
	cfg.Log.Path = ExpandHome(cfg.Log.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that every interval and cap is usable.
func (c *AppConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	checks := []struct {
		name  string
		value int
	}{
		{"connection.heartbeat_interval_sec", c.Connection.HeartbeatIntervalSec},
		{"connection.heartbeat_timeout_sec", c.Connection.HeartbeatTimeoutSec},
		{"connection.reconnect_interval_sec", c.Connection.ReconnectIntervalSec},
		{"connection.max_reconnect_attempts", c.Connection.MaxReconnectAttempts},
		{"connection.handshake_timeout_sec", c.Connection.HandshakeTimeoutSec},
		{"store.max_retained", c.Store.MaxRetained},
		{"store.purge_interval_sec", c.Store.PurgeIntervalSec},
		{"presentation.toast_duration_sec", c.Presentation.ToastDurationSec},
	}
	for _, ch := range checks {
		if ch.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", ch.name, ch.value)
		}
	}
	if c.Presentation.UrgentTimeoutSec < 0 {
		return fmt.Errorf("presentation.urgent_timeout_sec must not be negative")
	}
	switch c.Presentation.Audio {
	case "bell", "none":
	default:
		return fmt.Errorf("presentation.audio must be bell or none, got %q", c.Presentation.Audio)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("endpoint", cfg.Endpoint)
	v.Set("role", cfg.Role)
	v.Set("connection", cfg.Connection)
	v.Set("store", cfg.Store)
	v.Set("presentation", cfg.Presentation)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
