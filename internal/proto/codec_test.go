package proto

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeInbound(t *testing.T) {
	b, err := Hello("alice", "")
	if err != nil {
		t.Fatalf("Hello() error = %v", err)
	}
	want := `{"type":"hello","data":{"user":"alice","protocol":1}}`
	if string(b) != want {
		t.Fatalf("Hello() = %s, want %s", b, want)
	}

	b, err = Msg("general", "hi")
	if err != nil {
		t.Fatalf("Msg() error = %v", err)
	}
	var env struct {
		Type string  `json:"type"`
		Data MsgData `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != InboundTypeMsg || env.Data.Room != "general" || env.Data.Text != "hi" {
		t.Fatalf("unexpected msg envelope: %+v", env)
	}
}

func TestDecodeOutbound(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, payload any)
	}{
		{
			name:  "message",
			input: `{"type":"event","event":"message","data":{"id":3,"room":"general","user":"bob","text":"yo","ts":1700000000}}`,
			check: func(t *testing.T, payload any) {
				m, ok := payload.(EventMessage)
				if !ok || m.User != "bob" || m.Text != "yo" || m.ID != 3 {
					t.Fatalf("unexpected payload: %#v", payload)
				}
			},
		},
		{
			name:  "user joined",
			input: `{"type":"event","event":"user_joined","data":{"room":"general","user":"bob"}}`,
			check: func(t *testing.T, payload any) {
				if j, ok := payload.(EventUserJoined); !ok || j.User != "bob" {
					t.Fatalf("unexpected payload: %#v", payload)
				}
			},
		},
		{
			name:  "user left",
			input: `{"type":"event","event":"user_left","data":{"room":"general","user":"bob"}}`,
			check: func(t *testing.T, payload any) {
				if l, ok := payload.(EventUserLeft); !ok || l.Room != "general" {
					t.Fatalf("unexpected payload: %#v", payload)
				}
			},
		},
		{
			name:  "history",
			input: `{"type":"event","event":"history","data":{"room":"general","messages":[{"user":"a","text":"1","ts":1},{"user":"b","text":"2","ts":2}]}}`,
			check: func(t *testing.T, payload any) {
				h, ok := payload.(EventHistory)
				if !ok || len(h.Messages) != 2 || h.Messages[1].Text != "2" {
					t.Fatalf("unexpected payload: %#v", payload)
				}
			},
		},
		{
			name:  "error",
			input: `{"type":"error","error":{"code":"not_in_room","msg":"join first"}}`,
			check: func(t *testing.T, payload any) {
				e, ok := payload.(*Error)
				if !ok || e.Code != "not_in_room" {
					t.Fatalf("unexpected payload: %#v", payload)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, payload, err := DecodeOutbound([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeOutbound() error = %v", err)
			}
			tt.check(t, payload)
		})
	}
}

func TestDecodeOutboundRejects(t *testing.T) {
	if _, _, err := DecodeOutbound([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
	if _, _, err := DecodeOutbound([]byte(`{"type":"weird"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, _, err := DecodeOutbound([]byte(`{"type":"event","event":"typing"}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}
