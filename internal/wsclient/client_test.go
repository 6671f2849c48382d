package wsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/broadcast"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

func TestIsReadyTracksLifecycle(t *testing.T) {
	c, d := newTestClient()

	if c.IsReady() || c.State() != StateClosed {
		t.Fatal("new client must be closed and not ready")
	}

	results := c.Connect(context.Background(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)
	if c.IsReady() || c.State() != StateConnecting {
		t.Fatalf("expected connecting and not ready, got %s ready=%v", c.State(), c.IsReady())
	}

	tr := d.last(t)
	tr.open()
	mustResult(t, results, StatusOpen)
	if !c.IsReady() || c.State() != StateOpen {
		t.Fatalf("expected open and ready, got %s ready=%v", c.State(), c.IsReady())
	}

	// Transport-level readiness alone drops readiness.
	tr.setReady(transport.Closing)
	if c.IsReady() {
		t.Fatal("IsReady() must be false when the transport is not open")
	}
	tr.setReady(transport.Open)

	c.Close()
	if c.IsReady() || c.State() != StateClosed {
		t.Fatalf("expected closed and not ready after Close, got %s", c.State())
	}
}

func TestConnectWhileConnectingOrOpenFails(t *testing.T) {
	c, d := newTestClient()

	results := c.Connect(context.Background(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)

	again := c.Connect(context.Background(), "ws://chat.test/ws")
	r := mustResult(t, again, StatusFailed)
	if !errors.Is(r.Err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", r.Err)
	}
	mustClosedChannel(t, again)

	d.last(t).open()
	mustResult(t, results, StatusOpen)

	// Ignoring connect errors never hides a second connect.
	r2 := mustResult(t, c.ConnectWithConfig(context.Background(), ConnectConfig{
		Target:             "ws://chat.test/ws",
		IgnoreConnectError: true,
	}), StatusFailed)
	if Code(r2.Err) != ErrCodeAlreadyConnected {
		t.Fatalf("expected already_connected code, got %s", Code(r2.Err))
	}

	if d.count() != 1 {
		t.Fatalf("expected exactly one transport, got %d", d.count())
	}
}

func TestOpenPublishesEvent(t *testing.T) {
	c, d := newTestClient()
	events := subscribeEvents(t, c)

	openClient(t, c, d)

	ev := mustEvent(t, events, StateOpen)
	if ev.AttemptID == "" || ev.Cause != nil {
		t.Fatalf("unexpected open event: %+v", ev)
	}
	mustNoEvent(t, events)
}

func TestCloseEmitsExactlyOneClosedEventPerSubscriber(t *testing.T) {
	c, d := newTestClient()
	tr := openClient(t, c, d)

	first := subscribeEvents(t, c)
	second := subscribeEvents(t, c)

	c.Close()
	c.Close()

	for _, ch := range []<-chan Event{first, second} {
		ev := mustEvent(t, ch, StateClosed)
		if !errors.Is(ev.Cause, ErrClosedByUser) {
			t.Fatalf("expected user close cause, got %v", ev.Cause)
		}
		mustNoEvent(t, ch)
	}

	// The transport confirming the close afterwards changes nothing.
	tr.remoteClose(transport.CloseNormal, "")
	mustNoEvent(t, first)

	if tr.closeCalls() != 1 {
		t.Fatalf("expected transport Close once, got %d", tr.closeCalls())
	}
}

func TestCloseWhenClosedIsNoop(t *testing.T) {
	c, _ := newTestClient()
	events := subscribeEvents(t, c)

	c.Close()
	mustNoEvent(t, events)
}

func TestSendRequiresOpen(t *testing.T) {
	c, d := newTestClient()

	if err := c.SendText("hello"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before connect, got %v", err)
	}

	results := c.Connect(context.Background(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)
	tr := d.last(t)

	if err := c.SendText("hello"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady while connecting, got %v", err)
	}
	if len(tr.sentFrames()) != 0 {
		t.Fatal("transport must not be invoked while not ready")
	}

	tr.open()
	mustResult(t, results, StatusOpen)

	if err := c.SendText("ping"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if err := c.SendBinary([]byte{0x01}); err != nil {
		t.Fatalf("SendBinary() error = %v", err)
	}
	sent := tr.sentFrames()
	if len(sent) != 2 || string(sent[0].Data) != "ping" || sent[1].Type != transport.FrameBinary {
		t.Fatalf("unexpected sent frames: %+v", sent)
	}

	c.Close()
	if err := c.SendText("late"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after close, got %v", err)
	}
	if len(tr.sentFrames()) != 2 {
		t.Fatal("transport must not be invoked after close")
	}
}

func TestSendForwardsTransportFailure(t *testing.T) {
	c, d := newTestClient()
	tr := openClient(t, c, d)

	tr.mu.Lock()
	tr.sendErr = errBoom
	tr.mu.Unlock()

	err := c.SendText("ping")
	if !errors.Is(err, ErrTransportSend) || !errors.Is(err, errBoom) {
		t.Fatalf("expected ErrTransportSend wrapping cause, got %v", err)
	}
	if Code(err) != ErrCodeTransportSend {
		t.Fatalf("unexpected code %s", Code(err))
	}
	if !c.IsReady() {
		t.Fatal("send failure must not tear down the connection")
	}
}

func TestConnectTimeoutDoesNotCancelAttempt(t *testing.T) {
	c, d := newTestClient()
	events := subscribeEvents(t, c)

	start := time.Now()
	results := c.ConnectWithConfig(context.Background(), ConnectConfig{
		Target:  "ws://chat.test/ws",
		Timeout: 50 * time.Millisecond,
	})
	mustResult(t, results, StatusConnecting)

	r := mustResult(t, results, StatusFailed)
	elapsed := time.Since(start)
	if !errors.Is(r.Err, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", r.Err)
	}
	if elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Fatalf("timeout resolved after %s, want about 50ms", elapsed)
	}
	mustClosedChannel(t, results)

	tr := d.last(t)
	if tr.closeCalls() != 0 {
		t.Fatal("timeout must not close the transport")
	}
	if c.State() != StateConnecting {
		t.Fatalf("expected attempt still connecting, got %s", c.State())
	}

	// The late open still lands.
	tr.open()
	ev := mustEvent(t, events, StateOpen)
	if ev.AttemptID != r.AttemptID {
		t.Fatalf("late open event for attempt %s, want %s", ev.AttemptID, r.AttemptID)
	}
	if !c.IsReady() {
		t.Fatal("expected ready after late open")
	}
}

func TestConnectTimeoutIgnored(t *testing.T) {
	c, _ := newTestClient()

	results := c.ConnectWithConfig(context.Background(), ConnectConfig{
		Target:             "ws://chat.test/ws",
		Timeout:            50 * time.Millisecond,
		IgnoreConnectError: true,
	})
	mustResult(t, results, StatusConnecting)
	r := mustResult(t, results, StatusSkipped)
	if !errors.Is(r.Err, ErrConnectTimeout) {
		t.Fatalf("expected skipped timeout cause, got %v", r.Err)
	}
	mustClosedChannel(t, results)
}

func TestConnectDefaultTimeout(t *testing.T) {
	cfg := ConnectConfig{Target: "ws://chat.test/ws"}.withDefaults()
	if cfg.Timeout != DefaultConnectTimeout {
		t.Fatalf("default timeout = %s, want %s", cfg.Timeout, DefaultConnectTimeout)
	}
	if cfg.IgnoreConnectError {
		t.Fatal("IgnoreConnectError must default to false")
	}
}

func TestConstructionFailure(t *testing.T) {
	c, d := newTestClient()
	d.dialErr = errBoom

	results := c.Connect(context.Background(), "bogus://")
	mustResult(t, results, StatusConnecting)
	r := mustResult(t, results, StatusFailed)
	if !errors.Is(r.Err, ErrTransportConstruction) || !errors.Is(r.Err, errBoom) {
		t.Fatalf("expected construction error wrapping cause, got %v", r.Err)
	}
	mustClosedChannel(t, results)

	if c.State() != StateClosed {
		t.Fatalf("expected closed after construction failure, got %s", c.State())
	}

	skipped := c.ConnectWithConfig(context.Background(), ConnectConfig{
		Target:             "bogus://",
		IgnoreConnectError: true,
	})
	mustResult(t, skipped, StatusConnecting)
	mustResult(t, skipped, StatusSkipped)

	// A later connect is allowed.
	d.dialErr = nil
	openClient(t, c, d)
}

func TestTransportErrorIsFoldedIntoClosedEvent(t *testing.T) {
	c, d := newTestClient()
	events := subscribeEvents(t, c)

	results := c.Connect(context.Background(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)
	tr := d.last(t)

	tr.fail(errBoom)
	tr.remoteClose(transport.CloseAbnormal, "dial failed")

	ev := mustEvent(t, events, StateClosed)
	if !errors.Is(ev.Err, errBoom) {
		t.Fatalf("expected last error in closed event, got %v", ev.Err)
	}
	mustNoEvent(t, events)

	r := mustResult(t, results, StatusFailed)
	if !errors.Is(r.Err, ErrConnectFailed) || !errors.Is(r.Err, errBoom) {
		t.Fatalf("expected ErrConnectFailed wrapping cause, got %v", r.Err)
	}
	if c.State() != StateClosed || c.IsReady() {
		t.Fatal("expected closed after transport error")
	}
}

func TestRemoteCloseAfterOpen(t *testing.T) {
	c, d := newTestClient()
	tr := openClient(t, c, d)
	events := subscribeEvents(t, c)

	tr.remoteClose(transport.CloseGoingAway, "bye")

	ev := mustEvent(t, events, StateClosed)
	var ce *transport.CloseError
	if !errors.As(ev.Cause, &ce) || ce.Code != transport.CloseGoingAway {
		t.Fatalf("expected remote close cause, got %v", ev.Cause)
	}
	mustNoEvent(t, events)

	if c.IsReady() {
		t.Fatal("expected not ready after remote close")
	}
	if err := c.SendText("ping"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestStaleTransportCallbacksAreIgnored(t *testing.T) {
	c, d := newTestClient()

	results := c.Connect(context.Background(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)
	old := d.last(t)

	c.Close()
	r := mustResult(t, results, StatusFailed)
	if !errors.Is(r.Err, ErrClosedByUser) {
		t.Fatalf("expected user close to fail the pending connect, got %v", r.Err)
	}

	tr := openClient(t, c, d)
	events := subscribeEvents(t, c)
	messages := subscribeMessages(t, c)

	old.open()
	old.receive("stale")
	old.remoteClose(transport.CloseNormal, "")

	mustNoEvent(t, events)
	select {
	case m := <-messages:
		t.Fatalf("stale message delivered: %q", m.Text())
	case <-time.After(50 * time.Millisecond):
	}
	if !c.IsReady() {
		t.Fatal("stale callbacks must not affect the current connection")
	}

	tr.receive("fresh")
	mustMessage(t, messages, "fresh")
}

func TestMessagesReachEverySubscriberInOrder(t *testing.T) {
	c, d := newTestClient()
	tr := openClient(t, c, d)

	a := subscribeMessages(t, c)
	b := subscribeMessages(t, c)

	tr.receive("one")
	tr.receive("two")
	tr.receive("three")

	for _, ch := range []<-chan Message{a, b} {
		mustMessage(t, ch, "one")
		mustMessage(t, ch, "two")
		mustMessage(t, ch, "three")
	}
}

func TestCloseTransportErrorIsNotFatal(t *testing.T) {
	c, d := newTestClient()
	tr := openClient(t, c, d)
	events := subscribeEvents(t, c)

	tr.mu.Lock()
	tr.closeErr = errBoom
	tr.mu.Unlock()

	c.Close()

	mustEvent(t, events, StateClosed)
	if c.State() != StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
}

func TestConnectContextCancel(t *testing.T) {
	c, _ := newTestClient()

	ctx, cancel := context.WithCancel(context.Background())
	results := c.Connect(ctx, "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)

	cancel()
	r := mustResult(t, results, StatusFailed)
	if !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", r.Err)
	}
	if c.State() != StateConnecting {
		t.Fatal("abandoning the wait must not cancel the attempt")
	}
}

func TestDialReturnsFinalResult(t *testing.T) {
	c, d := newTestClient()
	d.dialErr = errBoom

	r, err := c.Dial(context.Background(), ConnectConfig{Target: "ws://chat.test/ws"})
	if err == nil || r.Status != StatusFailed {
		t.Fatalf("expected failed dial, got %+v", r)
	}

	r, err = c.Dial(context.Background(), ConnectConfig{Target: "ws://chat.test/ws", IgnoreConnectError: true})
	if err != nil || r.Status != StatusSkipped {
		t.Fatalf("expected skipped dial without error, got %+v err=%v", r, err)
	}
}

func TestCallbacksMayReenterClient(t *testing.T) {
	c, d := newTestClient()

	replied := make(chan error, 1)
	unsubscribe := c.Events().Subscribe(func(ev Event) {
		if ev.State == StateOpen {
			replied <- c.SendText("hello from callback")
			c.Close()
		}
	})
	defer unsubscribe()

	results := c.Connect(context.Background(), "ws://chat.test/ws")
	mustResult(t, results, StatusConnecting)
	tr := d.last(t)
	tr.open()

	select {
	case err := <-replied:
		if err != nil {
			t.Fatalf("send from callback error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not run")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateClosed {
		if time.Now().After(deadline) {
			t.Fatal("close from callback did not take effect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShutdownDropsSubscribers(t *testing.T) {
	c, d := newTestClient()
	openClient(t, c, d)

	c.Events().Subscribe(func(Event) {})
	c.Shutdown()

	if c.State() != StateClosed {
		t.Fatal("expected closed after Shutdown")
	}

	called := make(chan struct{}, 1)
	c.Messages().Subscribe(func(Message) { called <- struct{}{} })

	openClient(t, c, d).receive("after shutdown")
	select {
	case <-called:
		t.Fatal("subscriber added after Shutdown must not run")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdownWithStalledChannelConsumer(t *testing.T) {
	c, d := newTestClient()

	_, stop := broadcast.Channel(c.Events(), 0)
	defer stop()
	openClient(t, c, d)
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown blocked on an events consumer that stopped reading")
	}
}
