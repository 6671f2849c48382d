package wsclient

import "errors"

// Error codes for connection client failures.
const (
	ErrCodeAlreadyConnected      = "already_connected"
	ErrCodeTransportConstruction = "transport_construction_failed"
	ErrCodeConnectTimeout        = "connect_timeout"
	ErrCodeConnectFailed         = "connect_failed"
	ErrCodeNotReady              = "not_ready"
	ErrCodeTransportSend         = "transport_send_failed"
	ErrCodeClosedByUser          = "closed_by_user"
	ErrCodeUnknown               = "unknown"
)

var (
	ErrAlreadyConnected      = &Error{Code: ErrCodeAlreadyConnected, Message: "already connected"}
	ErrTransportConstruction = &Error{Code: ErrCodeTransportConstruction, Message: "transport construction failed"}
	ErrConnectTimeout        = &Error{Code: ErrCodeConnectTimeout, Message: "connect timeout"}
	ErrConnectFailed         = &Error{Code: ErrCodeConnectFailed, Message: "connect failed"}
	ErrNotReady              = &Error{Code: ErrCodeNotReady, Message: "websocket is not ready"}
	ErrTransportSend         = &Error{Code: ErrCodeTransportSend, Message: "transport send failed"}
	ErrClosedByUser          = &Error{Code: ErrCodeClosedByUser, Message: "close by user"}
)

// Error is a client failure with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Code returns the code of the first *Error in err's chain.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}
