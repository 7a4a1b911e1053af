package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority drives how a notification is presented to the user.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a wire value onto a known priority. Empty and
// unrecognized values resolve to PriorityNormal.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityUrgent:
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Rank orders priorities from least (0) to most (3) interruptive.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Well-known notification types. The set is open; servers may send others.
const (
	TypeNewOrder       = "new_order"
	TypeOrderStatus    = "order_status"
	TypeDeliveryUpdate = "delivery_update"
	TypeSystem         = "system"
)

// Metadata keys that identify the subject of a notification, checked in order.
var subjectKeys = []string{"orderId", "order_id", "subjectId", "subject_id"}

// Notification is a single event delivered over the push channel.
type Notification struct {
	// ID is the dedup key. Unique within the stored collection.
	ID string `json:"id"`

	// Type tags the semantic event (new_order, order_status, ...).
	Type string `json:"type"`

	Title   string `json:"title"`
	Message string `json:"message"`

	Priority Priority `json:"priority"`

	// Read is set once the user has viewed the notification.
	Read bool `json:"read"`

	// Archived entries are kept for history but excluded from the
	// unread count and the active list.
	Archived bool `json:"archived"`

	// Timestamp is the creation instant and the primary sort key.
	Timestamp time.Time `json:"timestamp"`

	// ExpiresAt, when set, marks the instant after which the entry is purged.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// Metadata is opaque to the store; presentation code reads subject ids
	// and deep links from it.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsUnread reports whether the notification counts toward the unread badge.
func (n Notification) IsUnread() bool {
	return !n.Read && !n.Archived
}

// IsExpired reports whether the notification's expiry lies before now.
func (n Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// SubjectID returns the identifier of the entity the notification is about
// (usually an order id), falling back to the notification ID.
func (n Notification) SubjectID() string {
	for _, k := range subjectKeys {
		v, ok := n.Metadata[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case float64:
			return fmt.Sprintf("%.0f", val)
		default:
			return fmt.Sprint(val)
		}
	}
	return n.ID
}

// HasSubject reports whether the metadata names a subject distinct from
// the notification itself.
func (n Notification) HasSubject() bool {
	return n.SubjectID() != n.ID
}

// Clone returns a copy that shares no mutable state with n.
func (n Notification) Clone() Notification {
	c := n
	if n.ExpiresAt != nil {
		t := *n.ExpiresAt
		c.ExpiresAt = &t
	}
	if n.Metadata != nil {
		c.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Newer reports whether a sorts before b in most-recent-first order.
// Equal timestamps fall back to ID so the order is total.
func Newer(a, b Notification) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}
