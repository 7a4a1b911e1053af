package protocol

import (
	"encoding/json"
	"time"
)

// Outbound type tags.
const (
	TypeSync = "sync"
	TypePing = "ping"
)

// timeLayout is RFC 3339 in UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SyncRequest asks the server to replay events missed since LastSync.
// It is sent once per successful (re)connect.
type SyncRequest struct {
	Type      string  `json:"type"`
	LastSync  *string `json:"lastSync"`
	Timestamp string  `json:"timestamp"`
}

// Ping is the heartbeat liveness check.
type Ping struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// NewSyncRequest builds a sync request. A nil lastSync encodes as null.
func NewSyncRequest(lastSync *time.Time, now time.Time) SyncRequest {
	req := SyncRequest{Type: TypeSync, Timestamp: FormatTime(now)}
	if lastSync != nil {
		s := FormatTime(*lastSync)
		req.LastSync = &s
	}
	return req
}

// NewPing builds a heartbeat ping.
func NewPing(now time.Time) Ping {
	return Ping{Type: TypePing, Timestamp: FormatTime(now)}
}

// Encode marshals an outbound frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// FormatTime renders t in the wire time format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
