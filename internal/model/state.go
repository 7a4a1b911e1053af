package model

import "time"

// StateVersion is the schema version written with every persisted record.
const StateVersion = 1

// NotificationState is the persisted notification aggregate.
type NotificationState struct {
	Version int `json:"version"`

	// Notifications is ordered most recent first and bounded in length.
	Notifications []Notification `json:"notifications"`

	// LastSync is the last instant the client is known to be in sync
	// with the server; sent with every reconnect sync request.
	LastSync *time.Time `json:"lastSync"`

	// UnreadCount is derived. It is written for readers of the raw record
	// but always recomputed on load.
	UnreadCount int `json:"unreadCount"`
}

// CountUnread returns the number of unread, non-archived entries.
func CountUnread(ns []Notification) int {
	count := 0
	for _, n := range ns {
		if n.IsUnread() {
			count++
		}
	}
	return count
}

// Clone deep-copies the aggregate.
func (s NotificationState) Clone() NotificationState {
	c := s
	c.Notifications = make([]Notification, len(s.Notifications))
	for i, n := range s.Notifications {
		c.Notifications[i] = n.Clone()
	}
	if s.LastSync != nil {
		t := *s.LastSync
		c.LastSync = &t
	}
	return c
}
