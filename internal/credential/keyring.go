// Package credential keeps the push auth token in the OS keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "pushline"

	// TokenKey is the keyring entry holding the push auth token.
	TokenKey = "push-token"
)

// ErrNoToken is returned when no token has been stored.
var ErrNoToken = errors.New("no push token stored")

// Vault reads and writes the session token.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a vault backed by the system keyring, falling back to an
// encrypted file under ~/.config/pushline/credentials.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/pushline/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("pushline-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an existing keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Token returns the stored token, or ErrNoToken.
func (v *Vault) Token() (string, error) {
	item, err := v.ring.Get(TokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", TokenKey, err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoToken
	}
	return string(item.Data), nil
}

// SaveToken stores token, replacing any previous one.
func (v *Vault) SaveToken(token string) error {
	err := v.ring.Set(keyring.Item{
		Key:   TokenKey,
		Data:  []byte(token),
		Label: "pushline session token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", TokenKey, err)
	}
	return nil
}

// ForgetToken removes the stored token. A missing token is not an error.
func (v *Vault) ForgetToken() error {
	err := v.ring.Remove(TokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", TokenKey, err)
	}
	return nil
}
