// Package wsclient manages the lifecycle of a single duplex connection:
// connect with an optional bounded wait, readiness-guarded send, one teardown
// path, and broadcast streams for lifecycle events and inbound messages.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/broadcast"
	"github.com/vovakirdan/wirechat-client/internal/transport"
	"github.com/vovakirdan/wirechat-client/internal/utils"
)

// attempt tracks one connect call from start until it leaves StateConnecting.
type attempt struct {
	id      string
	target  string
	started time.Time

	settled chan struct{}
	once    sync.Once
	err     error // read only after settled is closed
}

func newAttempt(target string) *attempt {
	return &attempt{
		id:      utils.NewID(),
		target:  target,
		started: time.Now(),
		settled: make(chan struct{}),
	}
}

func (a *attempt) settle(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.settled)
	})
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// Client owns at most one transport at a time.
//
// All state lives behind mu. Lifecycle events and messages are published
// while mu is held, so subscribers see them in the same order the state
// changed, and a Closed event is only ever observed after the handle is gone.
type Client struct {
	dialer transport.Dialer
	log    *zerolog.Logger

	mu      sync.Mutex
	state   State
	handle  transport.Transport
	current *attempt
	lastErr error

	events   *broadcast.Broadcaster[Event]
	messages *broadcast.Broadcaster[Message]
}

// New builds a Client that opens transports through dialer.
func New(dialer transport.Dialer, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		dialer:   dialer,
		log:      &nop,
		state:    StateClosed,
		events:   broadcast.New[Event](),
		messages: broadcast.New[Message](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts an attempt with no bound on the wait other than ctx.
// See ConnectWithConfig for the result channel contract.
func (c *Client) Connect(ctx context.Context, target string) <-chan ConnectResult {
	return c.connect(ctx, ConnectConfig{Target: target}, false)
}

// ConnectWithConfig starts an attempt whose wait is bounded by cfg.Timeout.
//
// The returned channel gets StatusConnecting as soon as the attempt starts,
// then one final result, and is then closed. A call made while connecting or
// open gets a single StatusFailed result wrapping ErrAlreadyConnected.
//
// A timeout ends only the wait. The transport keeps connecting, and a late
// open or close still changes state and reaches Events subscribers.
func (c *Client) ConnectWithConfig(ctx context.Context, cfg ConnectConfig) <-chan ConnectResult {
	return c.connect(ctx, cfg.withDefaults(), true)
}

// Dial runs ConnectWithConfig and waits for the final result.
func (c *Client) Dial(ctx context.Context, cfg ConnectConfig) (ConnectResult, error) {
	var last ConnectResult
	for r := range c.ConnectWithConfig(ctx, cfg) {
		last = r
	}
	if last.Status == StatusFailed {
		return last, last.Err
	}
	return last, nil
}

func (c *Client) connect(ctx context.Context, cfg ConnectConfig, bounded bool) <-chan ConnectResult {
	results := make(chan ConnectResult, 2)

	a, err := c.start(cfg.Target, results)
	if err != nil {
		id := ""
		if a != nil {
			id = a.id
		}
		results <- resolve(cfg, id, err)
		close(results)
		return results
	}

	go func() {
		defer close(results)

		var timeout <-chan time.Time
		if bounded {
			timer := time.NewTimer(cfg.Timeout - time.Since(a.started))
			defer timer.Stop()
			timeout = timer.C
		}

		var err error
		select {
		case <-a.settled:
			err = a.err
		case <-timeout:
			err = fmt.Errorf("%w after %s", ErrConnectTimeout, cfg.Timeout)
			c.log.Warn().
				Str("attempt_id", a.id).
				Str("target", a.target).
				Dur("timeout", cfg.Timeout).
				Msg("connect wait timed out, attempt continues")
		case <-ctx.Done():
			err = ctx.Err()
		}

		results <- resolve(cfg, a.id, err)
	}()

	return results
}

func resolve(cfg ConnectConfig, attemptID string, err error) ConnectResult {
	switch {
	case err == nil:
		return ConnectResult{Status: StatusOpen, AttemptID: attemptID}
	case cfg.IgnoreConnectError && !errors.Is(err, ErrAlreadyConnected):
		return ConnectResult{Status: StatusSkipped, AttemptID: attemptID, Err: err}
	default:
		return ConnectResult{Status: StatusFailed, AttemptID: attemptID, Err: err}
	}
}

// start performs the Closed -> Connecting transition and constructs the
// transport. The returned attempt is non-nil whenever the transition happened.
func (c *Client) start(target string, results chan<- ConnectResult) (*attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		return nil, ErrAlreadyConnected
	}

	a := newAttempt(target)
	c.state = StateConnecting
	c.lastErr = nil
	results <- ConnectResult{Status: StatusConnecting, AttemptID: a.id}

	c.log.Info().Str("attempt_id", a.id).Str("target", target).Msg("connecting")

	// mu is held across Dial so callbacks for this attempt cannot run until
	// the handle is recorded.
	h, err := c.dialer.Dial(target, c.handlersFor(a))
	if err != nil {
		c.state = StateClosed
		c.log.Error().Err(err).Str("attempt_id", a.id).Str("target", target).Msg("construct transport")
		return a, fmt.Errorf("%w: %w", ErrTransportConstruction, err)
	}

	c.handle = h
	c.current = a
	return a, nil
}

func (c *Client) handlersFor(a *attempt) transport.Handlers {
	return transport.Handlers{
		OnOpen:    func() { c.handleOpen(a) },
		OnMessage: func(f transport.Frame) { c.handleMessage(a, f) },
		OnError:   func(err error) { c.handleError(a, err) },
		OnClose:   func(cause error) { c.teardown(a, cause) },
	}
}

func (c *Client) handleOpen(a *attempt) {
	c.mu.Lock()
	if c.current != a || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	c.events.Publish(Event{State: StateOpen, AttemptID: a.id, At: time.Now()})
	c.mu.Unlock()

	a.settle(nil)
	c.log.Info().Str("attempt_id", a.id).Dur("elapsed", time.Since(a.started)).Msg("connection open")
}

func (c *Client) handleMessage(a *attempt, f transport.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != a {
		return
	}
	c.messages.Publish(Message{AttemptID: a.id, Frame: f, ReceivedAt: time.Now()})
}

func (c *Client) handleError(a *attempt, err error) {
	c.mu.Lock()
	if c.current == a {
		c.lastErr = err
	}
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("attempt_id", a.id).Msg("transport error")
	c.teardown(a, err)
}

// teardown is the only way out of StateConnecting or StateOpen. A nil a
// means a user close, which applies to whatever attempt is current.
func (c *Client) teardown(a *attempt, cause error) {
	c.mu.Lock()
	if c.handle == nil || (a != nil && c.current != a) {
		c.mu.Unlock()
		return
	}

	h, cur, lastErr := c.handle, c.current, c.lastErr
	if err := h.Close(); err != nil {
		c.log.Warn().Err(err).Str("attempt_id", cur.id).Msg("close transport")
	}
	c.handle = nil
	c.current = nil
	c.state = StateClosed
	c.events.Publish(Event{
		State:     StateClosed,
		AttemptID: cur.id,
		Cause:     cause,
		Err:       lastErr,
		At:        time.Now(),
	})
	c.mu.Unlock()

	c.log.Info().Err(cause).Str("attempt_id", cur.id).Msg("connection closed")

	// No-op when the attempt already opened.
	failure := lastErr
	if failure == nil {
		failure = cause
	}
	if failure == nil {
		cur.settle(ErrConnectFailed)
		return
	}
	cur.settle(fmt.Errorf("%w: %w", ErrConnectFailed, failure))
}

// Close tears down the current connection. It is a no-op when closed.
func (c *Client) Close() {
	c.teardown(nil, ErrClosedByUser)
}

// Shutdown closes the connection and drops every subscriber.
func (c *Client) Shutdown() {
	c.Close()
	c.events.Close()
	c.messages.Close()
}

// Send hands f to the transport if the connection is ready.
func (c *Client) Send(f transport.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyLocked() {
		return ErrNotReady
	}
	if err := c.handle.Send(f); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportSend, err)
	}
	return nil
}

// SendText sends s as a text frame.
func (c *Client) SendText(s string) error {
	return c.Send(transport.TextFrame(s))
}

// SendBinary sends b as a binary frame.
func (c *Client) SendBinary(b []byte) error {
	return c.Send(transport.BinaryFrame(b))
}

// IsReady reports whether a handle exists, the transport says it is open,
// and the tracked state is StateOpen.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyLocked()
}

func (c *Client) readyLocked() bool {
	return c.handle != nil &&
		c.handle.ReadyState() == transport.Open &&
		c.state == StateOpen
}

// State returns the tracked state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events streams lifecycle events.
func (c *Client) Events() broadcast.Stream[Event] {
	return c.events
}

// Messages streams inbound frames.
func (c *Client) Messages() broadcast.Stream[Message] {
	return c.messages
}
