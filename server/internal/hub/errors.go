package hub

import (
	"errors"

	"github.com/storyhub/presencehub/server/internal/auth"
)

// ErrClosed is returned by producers once Run has returned.
var ErrClosed = errors.New("hub: closed")

// ErrInvalidPayload is returned by the push API for payloads that are not
// valid JSON, or a story without an id.
var ErrInvalidPayload = errors.New("hub: invalid payload")

// ProtocolError is a malformed frame, an unknown type, a missing field or a
// precondition failure. It is answered with an error frame to the sender
// only and never closes the connection.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Message }

func protocolErr(msg string) *ProtocolError { return &ProtocolError{Message: msg} }

// AuthError is a failed auth frame. Err matches one of auth.ErrTokenExpired,
// auth.ErrTokenInvalid or auth.ErrTokenMalformed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "Authentication failed: " + auth.Reason(e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// clientMessage is the text put in the error frame sent back for err.
func clientMessage(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Message
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return "Internal error"
}

// errorKind labels err for metrics: "protocol", "auth" or "internal".
func errorKind(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "protocol"
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return "auth"
	}
	return "internal"
}
