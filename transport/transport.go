// Package transport defines the framed, bidirectional message channel the
// dispatcher runs on. The stdio package provides the newline-delimited
// implementation; other byte streams can be plugged in behind the same
// interface.
package transport

import (
	"context"
	"errors"
	"iter"
)

// Transport carries whole frames between the server and its single peer.
//
// Implementations must make Send atomic with respect to concurrent Send calls
// and Close idempotent.
type Transport interface {
	// Open establishes the stream endpoints. It fails if the transport was
	// already opened or closed, or the underlying stream is unusable.
	Open(ctx context.Context) error
	// Receive returns the lazy sequence of inbound frames. The sequence ends
	// when the peer closes the stream or the transport is closed. It is not
	// restartable: a second call yields ErrClosed.
	Receive() iter.Seq2[[]byte, error]
	// Send writes one frame.
	Send(ctx context.Context, frame []byte) error
	// Close releases the stream. Calling it more than once is harmless.
	Close() error
}

// ErrClosed reports use of a closed transport.
var ErrClosed = errors.New("transport closed")

// Error is a failure of the underlying stream. It is fatal to the session.
type Error struct {
	Op  string // "open", "receive", "send" or "close"
	Err error
}

func (e *Error) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error for op, leaving nil and existing *Error
// values untouched.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Err: err}
}
