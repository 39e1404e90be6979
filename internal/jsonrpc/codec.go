package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode parses one wire frame into an AnyMessage. Every failure wraps
// ErrMalformed. Unknown fields are ignored.
func Decode(frame []byte) (*AnyMessage, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	var msg AnyMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &msg, nil
}

// Encode marshals a message into a single frame. The output never contains a
// raw newline so it can be newline-delimited on the wire.
func Encode(msg any) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("jsonrpc: cannot encode nil message")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode: %w", err)
	}
	return b, nil
}

// PeekID extracts the id from a frame that failed validation, when the frame
// is at least syntactically valid JSON. It returns nil if no usable id exists.
func PeekID(frame []byte) *RequestID {
	var probe struct {
		ID *RequestID `json:"id"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil
	}
	if probe.ID.IsNil() {
		return nil
	}
	return probe.ID
}
