package model

import "time"

// ConnectionStatus is the lifecycle state of the push channel.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionState is a point-in-time view of the connection manager.
// It is never persisted.
type ConnectionState struct {
	Status ConnectionStatus

	// Attempt counts failed reconnect attempts since the last successful
	// connect.
	Attempt int

	// LastHeartbeatAt is when the last heartbeat acknowledgment arrived.
	LastHeartbeatAt time.Time

	// LastError describes the most recent transport fault, if any.
	LastError string
}
