// Package protocol defines the frames exchanged over the push channel.
//
// Inbound frames share the envelope {type, data?, error?}. Decoding yields
// one of a closed set of variants; unrecognized type tags decode to
// UnknownFrame so new server-side event kinds never break the client.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/pushline/internal/model"
)

// ErrMalformed is wrapped by every decoding failure.
var ErrMalformed = errors.New("malformed frame")

// Kind identifies the variant of a decoded frame.
type Kind int

const (
	KindInvalid Kind = iota
	KindNotification
	KindHeartbeatAck
	KindError
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindHeartbeatAck:
		return "heartbeat-ack"
	case KindError:
		return "error"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Inbound type tags.
const (
	TypeNotification = "notification"
	TypePong         = "pong"
	TypeHeartbeatAck = "heartbeat-ack"
	TypeError        = "error"
)

// Frame is a decoded inbound frame.
type Frame interface {
	Kind() Kind
}

// NotificationFrame carries one notification payload.
type NotificationFrame struct {
	Notification model.Notification

	// Stamped reports whether the payload carried its own timestamp. When
	// false, Notification.Timestamp is the receive time.
	Stamped bool
}

// HeartbeatAckFrame acknowledges a ping.
type HeartbeatAckFrame struct {
	// At is the server timestamp if one was sent, else zero.
	At time.Time
}

// ErrorFrame carries a server diagnostic. It never affects stored state.
type ErrorFrame struct {
	Message string
}

// UnknownFrame is any frame whose type tag this client does not know.
type UnknownFrame struct {
	Type string
}

func (NotificationFrame) Kind() Kind { return KindNotification }
func (HeartbeatAckFrame) Kind() Kind { return KindHeartbeatAck }
func (ErrorFrame) Kind() Kind        { return KindError }
func (UnknownFrame) Kind() Kind      { return KindUnknown }

// envelope is the raw inbound shape.
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// notificationPayload mirrors model.Notification on the wire but keeps the
// loosely typed fields as strings so bad values can be normalized.
type notificationPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  string         `json:"priority"`
	Read      bool           `json:"read"`
	Archived  bool           `json:"archived"`
	Timestamp string         `json:"timestamp"`
	ExpiresAt string         `json:"expiresAt"`
	Metadata  map[string]any `json:"metadata"`
}

// Decode parses one inbound frame. now is used as the notification
// timestamp when the payload omits one.
func Decode(raw []byte, now time.Time) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch strings.TrimSpace(env.Type) {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	case TypeNotification:
		n, stamped, err := decodeNotification(env.Data, now)
		if err != nil {
			return nil, err
		}
		return NotificationFrame{Notification: n, Stamped: stamped}, nil

	case TypePong, TypeHeartbeatAck:
		ack := HeartbeatAckFrame{}
		if ts, err := parseTime(env.Timestamp); err == nil {
			ack.At = ts
		}
		return ack, nil

	case TypeError:
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return ErrorFrame{Message: msg}, nil

	default:
		return UnknownFrame{Type: env.Type}, nil
	}
}

func decodeNotification(data json.RawMessage, now time.Time) (model.Notification, bool, error) {
	if len(data) == 0 || string(data) == "null" {
		return model.Notification{}, false, fmt.Errorf("%w: notification without data", ErrMalformed)
	}

	var p notificationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Notification{}, false, fmt.Errorf("%w: notification data: %v", ErrMalformed, err)
	}
	if p.Title == "" && p.Message == "" {
		return model.Notification{}, false, fmt.Errorf("%w: notification without title or message", ErrMalformed)
	}

	n := model.Notification{
		ID:        strings.TrimSpace(p.ID),
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Priority:  model.ParsePriority(p.Priority),
		Read:      p.Read,
		Archived:  p.Archived,
		Timestamp: now.UTC(),
		Metadata:  p.Metadata,
	}
	if n.Type == "" {
		n.Type = model.TypeSystem
	}

	if p.Timestamp != "" {
		ts, err := parseTime(p.Timestamp)
		if err != nil {
			return model.Notification{}, false, fmt.Errorf("%w: notification timestamp: %v", ErrMalformed, err)
		}
		n.Timestamp = ts
	}
	if p.ExpiresAt != "" {
		exp, err := parseTime(p.ExpiresAt)
		if err != nil {
			return model.Notification{}, false, fmt.Errorf("%w: notification expiresAt: %v", ErrMalformed, err)
		}
		n.ExpiresAt = &exp
	}

	return n, p.Timestamp != "", nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
