package wsclient

import (
	"time"

	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// State is the client-tracked connection state.
type State int32

const (
	// StateClosed means no transport is held.
	StateClosed State = iota
	// StateConnecting means a transport exists and has not opened yet.
	StateConnecting
	// StateOpen means the transport opened and has not been torn down.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification. State is StateOpen or StateClosed.
type Event struct {
	State     State
	AttemptID string
	// Cause is what triggered the transition; nil for StateOpen.
	Cause error
	// Err is the last transport error recorded during the attempt.
	Err error
	At  time.Time
}

// Message is one inbound frame, delivered verbatim.
type Message struct {
	AttemptID  string
	Frame      transport.Frame
	ReceivedAt time.Time
}

// Text returns the frame payload as a string.
func (m Message) Text() string {
	return string(m.Frame.Data)
}

// DefaultConnectTimeout bounds ConnectWithConfig when Timeout is zero.
const DefaultConnectTimeout = 5 * time.Second

// ConnectConfig describes a bounded connect.
type ConnectConfig struct {
	Target string
	// Timeout bounds the wait for the attempt to resolve. The attempt itself
	// keeps running after the timeout fires.
	Timeout time.Duration
	// IgnoreConnectError turns a failed or timed out connect into StatusSkipped.
	IgnoreConnectError bool
}

func (c ConnectConfig) withDefaults() ConnectConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultConnectTimeout
	}
	return c
}

// ConnectStatus is the status carried by a ConnectResult.
type ConnectStatus int

const (
	// StatusConnecting is emitted once, right after the attempt starts.
	StatusConnecting ConnectStatus = iota
	// StatusOpen means the transport opened.
	StatusOpen
	// StatusSkipped means the attempt failed or timed out and the failure
	// was downgraded by IgnoreConnectError. Err holds the cause.
	StatusSkipped
	// StatusFailed means the attempt failed. Err holds the cause.
	StatusFailed
)

func (s ConnectStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectResult is one value on a connect result channel.
type ConnectResult struct {
	Status    ConnectStatus
	AttemptID string
	Err       error
}

// Final reports whether r resolves the connect call.
func (r ConnectResult) Final() bool {
	return r.Status != StatusConnecting
}
