// Package ws implements transport.Dialer on top of github.com/coder/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/transport"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendQueueSize    = 64
)

var (
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrMissingHost       = errors.New("missing host")
	ErrNotOpen           = errors.New("websocket is not open")
	ErrSendQueueFull     = errors.New("send queue full")
)

// Dialer opens websocket transports. The zero value is usable.
type Dialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendQueueSize    int
	// ReadLimit caps inbound frame size in bytes; zero keeps the library default.
	ReadLimit int64
	Header    http.Header
	Logger    *zerolog.Logger
}

// Dial validates target and starts the handshake in the background.
func (d *Dialer) Dial(target string, h transport.Handlers) (transport.Transport, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingHost, target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		target:       u.String(),
		handlers:     h,
		log:          d.logger(),
		writeTimeout: orDuration(d.WriteTimeout, defaultWriteTimeout),
		outbound:     make(chan transport.Frame, d.sendQueueSize()),
		closeReq:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.state.Store(int32(transport.Connecting))

	opts := &websocket.DialOptions{HTTPHeader: d.Header}
	go c.run(opts, orDuration(d.HandshakeTimeout, defaultHandshakeTimeout), d.ReadLimit)

	return c, nil
}

func (d *Dialer) logger() *zerolog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func (d *Dialer) sendQueueSize() int {
	if d.SendQueueSize > 0 {
		return d.SendQueueSize
	}
	return defaultSendQueueSize
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// Conn is a websocket transport handle.
type Conn struct {
	target       string
	handlers     transport.Handlers
	log          *zerolog.Logger
	writeTimeout time.Duration

	state    atomic.Int32
	outbound chan transport.Frame
	closeReq chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// ReadyState implements transport.Transport.
func (c *Conn) ReadyState() transport.ReadyState {
	return transport.ReadyState(c.state.Load())
}

// Send queues f for the write loop.
func (c *Conn) Send(f transport.Frame) error {
	if c.ReadyState() != transport.Open {
		return ErrNotOpen
	}
	select {
	case c.outbound <- f:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close aborts a pending handshake or starts a normal closure handshake.
func (c *Conn) Close() error {
	for {
		s := c.ReadyState()
		if s == transport.Closing || s == transport.Closed {
			return nil
		}
		if !c.state.CompareAndSwap(int32(s), int32(transport.Closing)) {
			continue
		}

		if s == transport.Connecting {
			c.cancel()
			return nil
		}

		// The write loop flushes queued frames, then runs the close handshake.
		close(c.closeReq)
		return nil
	}
}

func (c *Conn) run(opts *websocket.DialOptions, handshakeTimeout time.Duration, readLimit int64) {
	dialCtx, cancelDial := context.WithTimeout(c.ctx, handshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.target, opts)
	cancelDial()
	if err != nil {
		c.state.Store(int32(transport.Closed))
		if c.ctx.Err() != nil {
			c.handlers.Close(&transport.CloseError{Code: transport.CloseNormal, Reason: "closed during handshake"})
			return
		}
		c.handlers.Error(fmt.Errorf("dial %s: %w", c.target, err))
		c.handlers.Close(&transport.CloseError{Code: transport.CloseAbnormal, Reason: err.Error()})
		return
	}
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}

	if !c.state.CompareAndSwap(int32(transport.Connecting), int32(transport.Open)) {
		// Close won the race against the handshake.
		_ = conn.CloseNow()
		c.state.Store(int32(transport.Closed))
		c.handlers.Close(&transport.CloseError{Code: transport.CloseNormal, Reason: "closed during handshake"})
		return
	}

	c.log.Debug().Str("target", c.target).Msg("ws open")
	c.handlers.Open()

	writerDone := make(chan struct{})
	go c.writeLoop(conn, writerDone)

	cause := c.readLoop(conn)

	c.cancel()
	<-writerDone
	_ = conn.CloseNow()
	c.state.Store(int32(transport.Closed))
	c.handlers.Close(cause)
}

func (c *Conn) readLoop(conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(c.ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				return &transport.CloseError{Code: int(ce.Code), Reason: ce.Reason}
			}
			if c.ReadyState() == transport.Closing {
				return &transport.CloseError{Code: transport.CloseNormal}
			}
			c.handlers.Error(fmt.Errorf("read: %w", err))
			return &transport.CloseError{Code: transport.CloseAbnormal, Reason: err.Error()}
		}

		ft := transport.FrameText
		if typ == websocket.MessageBinary {
			ft = transport.FrameBinary
		}
		c.handlers.Message(transport.Frame{Type: ft, Data: data})
	}
}

func (c *Conn) writeLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.closeReq:
			c.flush(conn)
			if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
				c.log.Debug().Err(err).Str("target", c.target).Msg("ws close handshake")
			}
			c.cancel()
			return
		case f := <-c.outbound:
			if err := c.write(conn, f); err != nil {
				c.log.Warn().Err(err).Str("target", c.target).Msg("write ws frame")
				// The read loop observes the dead connection and reports it.
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// flush writes frames queued before Close. Send rejects new frames once the
// state left Open, so the queue only shrinks.
func (c *Conn) flush(conn *websocket.Conn) {
	for {
		select {
		case f := <-c.outbound:
			if err := c.write(conn, f); err != nil {
				c.log.Debug().Err(err).Str("target", c.target).Msg("flush ws frame")
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(conn *websocket.Conn, f transport.Frame) error {
	typ := websocket.MessageText
	if f.Type == transport.FrameBinary {
		typ = websocket.MessageBinary
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return conn.Write(ctx, typ, f.Data)
}
