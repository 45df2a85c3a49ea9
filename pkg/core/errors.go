package core

import (
	"errors"
	"fmt"
)

// Error represents a classified bridge error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Wrapped error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrProtocol marks a malformed or unexpected frame on the telephony side.
	ErrProtocol ErrorType = "protocol_error"
	// ErrDisconnected marks a closed transport.
	ErrDisconnected ErrorType = "disconnected"
	// ErrCodec marks a malformed audio payload.
	ErrCodec ErrorType = "codec_error"
	// ErrUpstream marks an AI endpoint error event or unexpected close.
	ErrUpstream ErrorType = "upstream_error"
	// ErrPersistence marks an unreachable external store. Never fatal to a call.
	ErrPersistence ErrorType = "persistence_error"
)

// NewProtocolError creates a protocol error for a malformed telephony frame.
func NewProtocolError(message string) *Error {
	return &Error{Type: ErrProtocol, Message: message}
}

// NewProtocolErrorWithParam creates a protocol error naming the offending field.
func NewProtocolErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrProtocol, Message: message, Param: param}
}

// NewDisconnectedError creates a transport-closed error.
func NewDisconnectedError(message string, wrapped error) *Error {
	return &Error{Type: ErrDisconnected, Message: message, Wrapped: wrapped}
}

// NewCodecError creates a malformed-audio error.
func NewCodecError(message string) *Error {
	return &Error{Type: ErrCodec, Message: message}
}

// NewUpstreamError creates an AI-endpoint error.
func NewUpstreamError(message string, wrapped error) *Error {
	return &Error{Type: ErrUpstream, Message: message, Wrapped: wrapped}
}

// NewPersistenceError creates an external-store error.
func NewPersistenceError(message string, wrapped error) *Error {
	return &Error{Type: ErrPersistence, Message: message, Wrapped: wrapped}
}

// IsType reports whether err is (or wraps) an Error of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type == t
}

// IsFatalToSession reports whether err must escalate to session teardown.
// Persistence errors are swallowed by the caller; everything else classified
// here ends the call.
func IsFatalToSession(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return err != nil
	}
	return ce.Type != ErrPersistence
}
