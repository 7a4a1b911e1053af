package conn

import (
	"errors"
	"fmt"
)

// AuthError indicates that the push server rejected the credentials
// presented during the handshake, or that the token was rejected locally
// before dialing.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
