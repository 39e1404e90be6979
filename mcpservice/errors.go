package mcpservice

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
)

// ErrorKind classifies protocol failures. Every kind is recoverable: the
// dispatcher answers with an error response and the session continues.
type ErrorKind int

const (
	// KindMalformedMessage covers invalid syntax, unknown envelope shapes
	// and responses that match no pending request.
	KindMalformedMessage ErrorKind = iota + 1
	// KindMethodNotFound means no handler is registered for the method.
	KindMethodNotFound
	// KindSessionNotReady means a request arrived before initialize completed.
	KindSessionNotReady
	// KindInvalidHandshake means the initialize payload was rejected.
	KindInvalidHandshake
	// KindInvalidParams means the method parameters could not be decoded.
	KindInvalidParams
	// KindInternalError covers handler failures and recovered panics.
	KindInternalError
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedMessage:
		return "MalformedMessage"
	case KindMethodNotFound:
		return "MethodNotFound"
	case KindSessionNotReady:
		return "SessionNotReady"
	case KindInvalidHandshake:
		return "InvalidHandshake"
	case KindInvalidParams:
		return "InvalidParams"
	case KindInternalError:
		return "InternalError"
	default:
		return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ProtocolError is a failure that the dispatcher reports to the peer as a
// JSON-RPC error response. Cause is retained for logging only and is never
// sent on the wire.
type ProtocolError struct {
	Kind    ErrorKind
	Message string
	// Method is the offending method name, when known.
	Method string
	Cause  error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// Is matches another *ProtocolError of the same kind, so callers can write
// errors.Is(err, &ProtocolError{Kind: KindSessionNotReady}).
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

// MalformedMessage reports an undecodable or unexpected frame.
func MalformedMessage(cause error) *ProtocolError {
	return &ProtocolError{Kind: KindMalformedMessage, Message: "malformed message", Cause: cause}
}

// MethodNotFound reports an unbound method.
func MethodNotFound(method string) *ProtocolError {
	return &ProtocolError{Kind: KindMethodNotFound, Message: "method not found", Method: method}
}

// SessionNotReady reports a request received before initialize completed.
func SessionNotReady(method string) *ProtocolError {
	return &ProtocolError{Kind: KindSessionNotReady, Message: "session not initialized", Method: method}
}

// InvalidHandshake reports a rejected initialize request.
func InvalidHandshake(format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: KindInvalidHandshake, Message: fmt.Sprintf(format, args...)}
}

// InvalidParams reports undecodable or semantically invalid parameters.
func InvalidParams(message string, cause error) *ProtocolError {
	return &ProtocolError{Kind: KindInvalidParams, Message: message, Cause: cause}
}

// InternalError wraps an unexpected failure.
func InternalError(cause error) *ProtocolError {
	return &ProtocolError{Kind: KindInternalError, Message: "internal error", Cause: cause}
}

// AsProtocolError returns err as a *ProtocolError, wrapping anything else as
// an InternalError.
func AsProtocolError(err error) *ProtocolError {
	if err == nil {
		return nil
	}
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr
	}
	return InternalError(err)
}

// PanicError carries a value recovered from a panicking handler together with
// the stack at the point of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack. Call it from the deferred
// function that recovered v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
