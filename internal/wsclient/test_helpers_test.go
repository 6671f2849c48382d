package wsclient

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/broadcast"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// fakeTransport is a scripted transport. Tests drive its callbacks directly,
// which keeps them serialized like a real transport's read goroutine.
type fakeTransport struct {
	target   string
	handlers transport.Handlers

	mu       sync.Mutex
	ready    transport.ReadyState
	sent     []transport.Frame
	sendErr  error
	closeErr error
	closes   int
}

func (f *fakeTransport) Send(fr transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.ready != transport.Closed {
		f.ready = transport.Closing
	}
	return f.closeErr
}

func (f *fakeTransport) ReadyState() transport.ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) setReady(s transport.ReadyState) {
	f.mu.Lock()
	f.ready = s
	f.mu.Unlock()
}

func (f *fakeTransport) open() {
	f.setReady(transport.Open)
	f.handlers.Open()
}

func (f *fakeTransport) receive(s string) {
	f.handlers.Message(transport.TextFrame(s))
}

func (f *fakeTransport) fail(err error) {
	f.handlers.Error(err)
}

func (f *fakeTransport) remoteClose(code int, reason string) {
	f.setReady(transport.Closed)
	f.handlers.Close(&transport.CloseError{Code: code, Reason: reason})
}

func (f *fakeTransport) sentFrames() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Frame(nil), f.sent...)
}

func (f *fakeTransport) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeDialer struct {
	mu      sync.Mutex
	dialed  []*fakeTransport
	dialErr error
}

func (d *fakeDialer) Dial(target string, h transport.Handlers) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	t := &fakeTransport{target: target, handlers: h, ready: transport.Connecting}
	d.dialed = append(d.dialed, t)
	return t, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func (d *fakeDialer) last(t *testing.T) *fakeTransport {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dialed) == 0 {
		t.Fatal("no transport dialed")
	}
	return d.dialed[len(d.dialed)-1]
}

func newTestClient() (*Client, *fakeDialer) {
	d := &fakeDialer{}
	return New(d), d
}

func mustResult(t *testing.T, ch <-chan ConnectResult, status ConnectStatus) ConnectResult {
	t.Helper()

	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatalf("result channel closed, expected %s", status)
		}
		if r.Status != status {
			t.Fatalf("expected status %s, got %s (err=%v)", status, r.Status, r.Err)
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("expected connect result %s not received", status)
		return ConnectResult{}
	}
}

func mustClosedChannel(t *testing.T, ch <-chan ConnectResult) {
	t.Helper()

	select {
	case r, ok := <-ch:
		if ok {
			t.Fatalf("unexpected extra connect result: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("result channel not closed")
	}
}

func subscribeEvents(t *testing.T, c *Client) <-chan Event {
	t.Helper()
	ch, stop := broadcast.Channel(c.Events(), 16)
	t.Cleanup(stop)
	return ch
}

func subscribeMessages(t *testing.T, c *Client) <-chan Message {
	t.Helper()
	ch, stop := broadcast.Channel(c.Messages(), 16)
	t.Cleanup(stop)
	return ch
}

func mustEvent(t *testing.T, ch <-chan Event, state State) Event {
	t.Helper()

	select {
	case ev := <-ch:
		if ev.State != state {
			t.Fatalf("expected %s event, got %s (cause=%v)", state, ev.State, ev.Cause)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s event not received", state)
		return Event{}
	}
}

func mustNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %s (cause=%v)", ev.State, ev.Cause)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustMessage(t *testing.T, ch <-chan Message, text string) Message {
	t.Helper()

	select {
	case m := <-ch:
		if m.Text() != text {
			t.Fatalf("expected message %q, got %q", text, m.Text())
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("expected message %q not received", text)
		return Message{}
	}
}

// openClient connects c and drives the fake transport open.
func openClient(t *testing.T, c *Client, d *fakeDialer) *fakeTransport {
	t.Helper()

	results := c.Connect(t.Context(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)
	tr := d.last(t)
	tr.open()
	mustResult(t, results, StatusOpen)
	mustClosedChannel(t, results)
	return tr
}

var errBoom = errors.New("boom")
