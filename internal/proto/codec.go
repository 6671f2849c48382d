package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType  = errors.New("unknown outbound type")
	ErrUnknownEvent = errors.New("unknown event")
)

// EncodeInbound marshals an inbound envelope of the given type.
func EncodeInbound(typ string, data any) ([]byte, error) {
	b, err := json.Marshal(Inbound{Type: typ, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return b, nil
}

// Hello builds a hello frame payload.
func Hello(user, token string) ([]byte, error) {
	return EncodeInbound(InboundTypeHello, HelloData{User: user, Token: token, Protocol: ProtocolVersion})
}

// Join builds a join frame payload.
func Join(room string) ([]byte, error) {
	return EncodeInbound(InboundTypeJoin, JoinData{Room: room})
}

// Leave builds a leave frame payload.
func Leave(room string) ([]byte, error) {
	return EncodeInbound(InboundTypeLeave, LeaveData{Room: room})
}

// Msg builds a chat message frame payload.
func Msg(room, text string) ([]byte, error) {
	return EncodeInbound(InboundTypeMsg, MsgData{Room: room, Text: text})
}

// DecodeOutbound parses a server frame and returns the envelope together with
// its decoded payload: one of EventMessage, EventUserJoined, EventUserLeft,
// EventHistory, or *Error.
func DecodeOutbound(b []byte) (Outbound, any, error) {
	var out Outbound
	if err := json.Unmarshal(b, &out); err != nil {
		return out, nil, fmt.Errorf("decode outbound: %w", err)
	}

	switch out.Type {
	case OutboundTypeError:
		if out.Error == nil {
			return out, &Error{Code: "unknown", Msg: "unknown error"}, nil
		}
		return out, out.Error, nil
	case OutboundTypeEvent:
	default:
		return out, nil, fmt.Errorf("%w: %q", ErrUnknownType, out.Type)
	}

	var (
		payload any
		err     error
	)
	switch out.Event {
	case EventMessageName:
		payload, err = decodeData[EventMessage](out.Data)
	case EventUserJoinedName:
		payload, err = decodeData[EventUserJoined](out.Data)
	case EventUserLeftName:
		payload, err = decodeData[EventUserLeft](out.Data)
	case EventHistoryName:
		payload, err = decodeData[EventHistory](out.Data)
	default:
		return out, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, out.Event)
	}
	if err != nil {
		return out, nil, fmt.Errorf("decode %s: %w", out.Event, err)
	}
	return out, payload, nil
}

func decodeData[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
