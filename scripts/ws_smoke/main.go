package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
	"github.com/vovakirdan/wirechat-client/internal/wsclient"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "username to announce with hello")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := wsclient.New(&ws.Dialer{})
	defer client.Shutdown()

	// Resolves once our own message comes back from the room.
	done := make(chan error, 1)
	unsubscribe := client.Messages().Subscribe(func(m wsclient.Message) {
		out, payload, err := proto.DecodeOutbound(m.Frame.Data)
		if err != nil {
			fmt.Printf("Raw data: %s\n", m.Text())
			return
		}
		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()

		switch evt := payload.(type) {
		case proto.EventMessage:
			fmt.Printf("EventMessage: room=%s user=%s text=%q ts=%d\n", evt.Room, evt.User, evt.Text, evt.TS)
			if evt.User == *user && evt.Text == *text {
				select {
				case done <- nil:
				default:
				}
			}
		case proto.EventUserJoined:
			fmt.Printf("Join: room=%s user=%s\n", evt.Room, evt.User)
		case proto.EventUserLeft:
			fmt.Printf("Left: room=%s user=%s\n", evt.Room, evt.User)
		case *proto.Error:
			fmt.Printf("Error: %s\n", evt.Error())
		}
	})
	defer unsubscribe()

	stopEvents := client.Events().Subscribe(func(ev wsclient.Event) {
		if ev.State == wsclient.StateClosed && !errors.Is(ev.Cause, wsclient.ErrClosedByUser) {
			select {
			case done <- fmt.Errorf("connection closed: %w", ev.Cause):
			default:
			}
		}
	})
	defer stopEvents()

	if _, err := client.Dial(ctx, wsclient.ConnectConfig{Target: *addr, Timeout: *timeout}); err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	for _, payload := range []func() ([]byte, error){
		func() ([]byte, error) { return proto.Hello(*user, "") },
		func() ([]byte, error) { return proto.Join(*room) },
		func() ([]byte, error) { return proto.Msg(*room, *text) },
	} {
		b, err := payload()
		if err != nil {
			return err
		}
		if err := client.SendText(string(b)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for echo: %w", ctx.Err())
	}
}
