package conn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// maxFrameSize is the largest inbound frame accepted.
	maxFrameSize = 1 << 20
)

// WebSocketDialer opens push channels over websocket. The token travels
// both as a query parameter, for servers behind proxies that strip headers,
// and as a bearer Authorization header.
type WebSocketDialer struct {
	endpoint string
	role     string
	dialer   *websocket.Dialer
}

var _ Dialer = (*WebSocketDialer)(nil)

// NewWebSocketDialer creates a dialer for endpoint. role, when non-empty,
// is sent as the "role" query parameter.
func NewWebSocketDialer(endpoint, role string, handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		endpoint: endpoint,
		role:     role,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Dial performs the websocket handshake. A 401 or 403 response is
// returned as *AuthError.
func (d *WebSocketDialer) Dial(ctx context.Context, token string) (Channel, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	if d.role != "" {
		q.Set("role", d.role)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			return nil, &AuthError{StatusCode: resp.StatusCode, Message: msg}
		}
		return nil, fmt.Errorf("dialing %s://%s%s: %w", u.Scheme, u.Host, u.Path, err)
	}

	conn.SetReadLimit(maxFrameSize)
	return &wsChannel{conn: conn}, nil
}

// wsChannel adapts a gorilla connection to Channel. Reads happen on the
// manager's reader goroutine, writes on its loop goroutine.
type wsChannel struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsChannel) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsChannel) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
