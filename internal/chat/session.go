// Package chat runs an interactive wirechat session on top of a connection
// client: it speaks the JSON protocol, renders server events, and records
// received messages in a history store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/wsclient"
)

const (
	DefaultRoom = "general"
	saveTimeout = 2 * time.Second
)

// ErrEmptyUser is returned by NewSession when no user name is set.
var ErrEmptyUser = errors.New("user is required")

// Options configures a Session.
type Options struct {
	User  string
	Room  string
	Token string

	// History is optional; received messages are not persisted without it.
	History store.HistoryStore
	// Metrics is optional.
	Metrics *metrics.Collector
	Out     io.Writer
	Logger  *zerolog.Logger
}

// Session joins one room and relays chat traffic through a client.
type Session struct {
	client  *wsclient.Client
	user    string
	room    string
	token   string
	history store.HistoryStore
	metrics *metrics.Collector
	log     *zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	mu          sync.Mutex
	unsubscribe []func()
	started     bool
	stopping    atomic.Bool

	// joinMu serializes hello/join so each attempt joins the room once,
	// whether it opened before Start returned or later.
	joinMu sync.Mutex
	joined string

	membersMu sync.Mutex
	members   map[string]struct{}
}

// NewSession builds a session for client.
func NewSession(client *wsclient.Client, opts Options) (*Session, error) {
	if strings.TrimSpace(opts.User) == "" {
		return nil, ErrEmptyUser
	}
	room := opts.Room
	if room == "" {
		room = DefaultRoom
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Session{
		client:  client,
		user:    opts.User,
		room:    room,
		token:   opts.Token,
		history: opts.History,
		metrics: opts.Metrics,
		log:     logger,
		out:     out,
		members: make(map[string]struct{}),
	}, nil
}

// Room returns the room the session joins.
func (s *Session) Room() string {
	return s.room
}

// Start subscribes to the client streams, connects, and joins the room.
// A skipped connect is not an error; the session stays offline.
func (s *Session) Start(ctx context.Context, cfg wsclient.ConnectConfig) (wsclient.ConnectResult, error) {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.stopping.Store(false)
		s.unsubscribe = append(s.unsubscribe,
			s.client.Events().Subscribe(s.handleEvent),
			s.client.Messages().Subscribe(s.handleMessage),
		)
		if s.metrics != nil {
			s.unsubscribe = append(s.unsubscribe, s.metrics.Observe(s.client))
		}
	}
	s.mu.Unlock()

	started := time.Now()
	res, err := s.client.Dial(ctx, cfg)
	if s.metrics != nil {
		s.metrics.ObserveConnect(res, time.Since(started))
	}
	if err != nil {
		return res, fmt.Errorf("connect %s: %w", cfg.Target, err)
	}
	if res.Status == wsclient.StatusSkipped {
		s.log.Warn().Err(res.Err).Str("target", cfg.Target).Msg("connect skipped, staying offline")
		s.printf("* offline: %v\n", res.Err)
		return res, nil
	}

	if err := s.join(res.AttemptID); err != nil {
		return res, err
	}
	return res, nil
}

// join announces the user and joins the room on the given attempt. It does
// nothing when that attempt has already joined.
func (s *Session) join(attemptID string) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	if s.joined == attemptID {
		return nil
	}
	if err := s.send(proto.Hello(s.user, s.token)); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	if err := s.send(proto.Join(s.room)); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	s.joined = attemptID
	s.log.Info().Str("user", s.user).Str("room", s.room).Str("attempt_id", attemptID).Msg("joined room")
	return nil
}

// Say sends text to the room. Blank input is ignored.
func (s *Session) Say(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.send(proto.Msg(s.room, text))
}

// Stop leaves the room if connected, closes the client, and unsubscribes.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.stopping.Store(true)

	if s.client.IsReady() {
		if err := s.send(proto.Leave(s.room)); err != nil {
			s.log.Debug().Err(err).Msg("send leave")
		}
	}
	s.client.Close()

	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
	s.started = false
}

// Members returns the users currently known to be in the room, sorted.
// The set is built from join and leave events and reset on disconnect.
func (s *Session) Members() []string {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()

	out := make([]string, 0, len(s.members))
	for user := range s.members {
		out = append(out, user)
	}
	slices.Sort(out)
	return out
}

func (s *Session) setMember(user string, present bool) {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()
	if present {
		s.members[user] = struct{}{}
	} else {
		delete(s.members, user)
	}
}

func (s *Session) resetMembers() {
	s.membersMu.Lock()
	clear(s.members)
	s.membersMu.Unlock()
}

// Recent returns up to n stored messages of the session room.
func (s *Session) Recent(ctx context.Context, n int) ([]*store.Message, error) {
	if s.history == nil {
		return nil, nil
	}
	msgs, err := s.history.RecentMessages(ctx, s.room, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return msgs, nil
}

func (s *Session) send(payload []byte, err error) error {
	if err != nil {
		return err
	}
	err = s.client.SendText(string(payload))
	if s.metrics != nil {
		s.metrics.ObserveSend(err)
	}
	return err
}

func (s *Session) handleEvent(ev wsclient.Event) {
	switch ev.State {
	case wsclient.StateOpen:
		s.printf("* connected\n")
		if s.stopping.Load() {
			return
		}
		if err := s.join(ev.AttemptID); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", ev.AttemptID).Msg("join after open")
			s.printf("! join: %v\n", err)
		}
	case wsclient.StateClosed:
		s.resetMembers()
		if s.stopping.Load() || errors.Is(ev.Cause, wsclient.ErrClosedByUser) {
			return
		}
		reason := ev.Cause
		if ev.Err != nil {
			reason = ev.Err
		}
		s.log.Warn().Err(reason).Str("attempt_id", ev.AttemptID).Msg("connection lost")
		s.printf("* disconnected: %v\n", reason)
	}
}

func (s *Session) handleMessage(m wsclient.Message) {
	_, payload, err := proto.DecodeOutbound(m.Frame.Data)
	if err != nil {
		s.log.Debug().Err(err).Str("attempt_id", m.AttemptID).Msg("ignore frame")
		return
	}

	switch p := payload.(type) {
	case proto.EventMessage:
		s.printf("%s\n", formatMessage(p))
		s.save(p)
	case proto.EventUserJoined:
		if p.Room == s.room {
			s.setMember(p.User, true)
		}
		s.printf("* %s joined %s\n", p.User, p.Room)
	case proto.EventUserLeft:
		if p.Room == s.room {
			s.setMember(p.User, false)
		}
		s.printf("* %s left %s\n", p.User, p.Room)
	case proto.EventHistory:
		s.printf("-- history of %s (%d) --\n", p.Room, len(p.Messages))
		for _, msg := range p.Messages {
			if msg.Room == "" {
				msg.Room = p.Room
			}
			s.printf("%s\n", formatMessage(msg))
			s.save(msg)
		}
	case *proto.Error:
		s.printf("! error %s: %s\n", p.Code, p.Msg)
	}
}

func (s *Session) save(m proto.EventMessage) {
	if s.history == nil {
		return
	}
	room := m.Room
	if room == "" {
		room = s.room
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := s.history.SaveMessage(ctx, &store.Message{
		ServerID:  m.ID,
		Room:      room,
		User:      m.User,
		Body:      m.Text,
		CreatedAt: messageTime(m),
	})
	if err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("save message")
	}
}

func (s *Session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func messageTime(m proto.EventMessage) time.Time {
	if m.TS == 0 {
		return time.Now()
	}
	return time.Unix(m.TS, 0)
}

func formatMessage(m proto.EventMessage) string {
	return fmt.Sprintf("[%s] %s: %s", messageTime(m).Format("15:04"), m.User, m.Text)
}
