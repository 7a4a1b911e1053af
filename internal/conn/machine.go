package conn

import "github.com/nhle/pushline/internal/model"

// eventKind enumerates everything the manager's event loop reacts to.
// Only the machine events reach the transition table.
type eventKind int

const (
	// Machine events.
	evConnect eventKind = iota
	evDialSucceeded
	evDialFailed
	evAuthFailed
	evClosed
	evHeartbeatTimeout
	evRetryElapsed
	evDisconnect

	// Loop-only events.
	evFrame
	evSend
	evPingDue
)

func (k eventKind) String() string {
	switch k {
	case evConnect:
		return "connect"
	case evDialSucceeded:
		return "dial-succeeded"
	case evDialFailed:
		return "dial-failed"
	case evAuthFailed:
		return "auth-failed"
	case evClosed:
		return "closed"
	case evHeartbeatTimeout:
		return "heartbeat-timeout"
	case evRetryElapsed:
		return "retry-elapsed"
	case evDisconnect:
		return "disconnect"
	case evFrame:
		return "frame"
	case evSend:
		return "send"
	case evPingDue:
		return "ping-due"
	default:
		return "unknown"
	}
}

// action is the side effect the manager performs after a transition.
type action int

const (
	actNone action = iota
	// actDial opens a new channel.
	actDial
	// actStartSession adopts the dialed channel, starts the reader and the
	// heartbeat, and sends the sync request.
	actStartSession
	// actRetry tears down any channel and schedules a reconnect after the
	// backoff interval.
	actRetry
	// actTeardown closes the channel and cancels every timer.
	actTeardown
)

func (a action) String() string {
	switch a {
	case actDial:
		return "dial"
	case actStartSession:
		return "start-session"
	case actRetry:
		return "retry"
	case actTeardown:
		return "teardown"
	default:
		return "none"
	}
}

// transitions lists the events each status accepts. Events missing from a
// status' row are ignored in that status.
var transitions = map[model.ConnectionStatus]map[eventKind]bool{
	model.StatusDisconnected: {
		evConnect:    true,
		evDisconnect: true,
	},
	model.StatusConnecting: {
		evConnect:       true,
		evDialSucceeded: true,
		evDialFailed:    true,
		evAuthFailed:    true,
		evRetryElapsed:  true,
		evDisconnect:    true,
	},
	model.StatusConnected: {
		evConnect:          true,
		evClosed:           true,
		evHeartbeatTimeout: true,
		evDisconnect:       true,
	},
	model.StatusError: {
		evConnect:    true,
		evDisconnect: true,
	},
}

// step describes the outcome of applying one event.
type step struct {
	from     model.ConnectionStatus
	to       model.ConnectionStatus
	action   action
	accepted bool
}

// machine is the connection state machine. It holds no timers or sockets;
// the manager executes the actions it returns.
type machine struct {
	status      model.ConnectionStatus
	attempt     int
	maxAttempts int
}

func newMachine(maxAttempts int) *machine {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &machine{status: model.StatusDisconnected, maxAttempts: maxAttempts}
}

// apply feeds ev to the machine and returns the resulting step.
func (m *machine) apply(ev eventKind) step {
	s := step{from: m.status, to: m.status}
	if !transitions[m.status][ev] {
		return s
	}
	s.accepted = true

	switch ev {
	case evConnect:
		if m.status == model.StatusConnecting || m.status == model.StatusConnected {
			break
		}
		m.attempt = 0
		m.status = model.StatusConnecting
		s.action = actDial

	case evDialSucceeded:
		m.attempt = 0
		m.status = model.StatusConnected
		s.action = actStartSession

	case evDialFailed:
		m.attempt++
		if m.attempt >= m.maxAttempts {
			m.status = model.StatusError
			s.action = actTeardown
			break
		}
		s.action = actRetry

	case evAuthFailed:
		// Rejected credentials are never redialed automatically; only a
		// new Connect leaves the error status.
		m.attempt++
		m.status = model.StatusError
		s.action = actTeardown

	case evClosed, evHeartbeatTimeout:
		m.status = model.StatusConnecting
		s.action = actRetry

	case evRetryElapsed:
		s.action = actDial

	case evDisconnect:
		m.attempt = 0
		m.status = model.StatusDisconnected
		s.action = actTeardown
	}

	s.to = m.status
	return s
}
