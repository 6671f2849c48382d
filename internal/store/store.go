package store

import (
	"context"
	"time"
)

// Message represents a persisted chat message seen by the client.
type Message struct {
	ID        int64
	ServerID  int64 // id assigned by the server, 0 when unknown
	Room      string
	User      string
	Body      string
	CreatedAt time.Time
}

// HistoryStore persists chat messages received by a session.
type HistoryStore interface {
	// SaveMessage stores msg and sets msg.ID. Messages carrying a ServerID
	// already stored for the same room are skipped.
	SaveMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to limit messages of room in chronological order.
	RecentMessages(ctx context.Context, room string, limit int) ([]*Message, error)

	Close() error
}
