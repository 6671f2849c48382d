// Package transport defines the duplex channel contract the connection
// client drives. Implementations live in subpackages.
package transport

import (
	"fmt"
)

// ReadyState mirrors the readiness of an underlying duplex channel.
type ReadyState int32

const (
	// Connecting means the handshake has not completed yet.
	Connecting ReadyState = iota
	// Open means frames can be sent and received.
	Open
	// Closing means a close was requested and is in progress.
	Closing
	// Closed means the channel is finished and will fire no more callbacks.
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// FrameType distinguishes text and binary payloads.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

func (t FrameType) String() string {
	if t == FrameBinary {
		return "binary"
	}
	return "text"
}

// Frame is a single opaque payload exchanged over a transport.
type Frame struct {
	Type FrameType
	Data []byte
}

// TextFrame builds a text frame from s.
func TextFrame(s string) Frame {
	return Frame{Type: FrameText, Data: []byte(s)}
}

// BinaryFrame builds a binary frame from b.
func BinaryFrame(b []byte) Frame {
	return Frame{Type: FrameBinary, Data: b}
}

// Handlers receives transport callbacks.
//
// All callbacks of one transport are serialized and never overlap.
// OnClose fires exactly once and nothing fires after it.
// Nil handlers are skipped.
type Handlers struct {
	OnOpen    func()
	OnMessage func(Frame)
	OnError   func(error)
	OnClose   func(cause error)
}

// Open invokes OnOpen when set.
func (h Handlers) Open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

// Message invokes OnMessage when set.
func (h Handlers) Message(f Frame) {
	if h.OnMessage != nil {
		h.OnMessage(f)
	}
}

// Error invokes OnError when set.
func (h Handlers) Error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Close invokes OnClose when set.
func (h Handlers) Close(cause error) {
	if h.OnClose != nil {
		h.OnClose(cause)
	}
}

// Transport is a live duplex channel handle.
type Transport interface {
	// Send hands a frame to the transport without waiting for delivery.
	Send(f Frame) error

	// Close requests shutdown. It must not block and must not invoke
	// handlers synchronously. Calling it more than once is a no-op.
	Close() error

	// ReadyState reports the transport's own view of readiness.
	ReadyState() ReadyState
}

// Dialer constructs transports.
type Dialer interface {
	// Dial returns as soon as the transport is constructed. The handshake
	// continues in the background and reports through h. A returned error
	// means construction failed and no handler will ever fire.
	Dial(target string, h Handlers) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(target string, h Handlers) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(target string, h Handlers) (Transport, error) {
	return f(target, h)
}

// Close codes used by CloseError.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// CloseError describes why a transport closed.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport closed: code %d", e.Code)
	}
	return fmt.Sprintf("transport closed: code %d: %s", e.Code, e.Reason)
}
