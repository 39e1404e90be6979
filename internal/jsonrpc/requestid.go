package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or a number.
//
// Numeric ids keep their literal text and are never converted to a float, so
// an id echoes back to the peer byte for byte.
type RequestID struct {
	raw      string
	isString bool
}

// NewRequestID creates a RequestID from a string, an integer or a json.Number.
// Any other type yields a nil-valued id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string:
		return &RequestID{raw: v, isString: true}
	case json.Number:
		return &RequestID{raw: v.String()}
	case int:
		return &RequestID{raw: strconv.Itoa(v)}
	case int32:
		return &RequestID{raw: strconv.FormatInt(int64(v), 10)}
	case int64:
		return &RequestID{raw: strconv.FormatInt(v, 10)}
	case uint32:
		return &RequestID{raw: strconv.FormatUint(uint64(v), 10)}
	case uint64:
		return &RequestID{raw: strconv.FormatUint(v, 10)}
	default:
		return &RequestID{}
	}
}

// String returns the string representation of the ID.
func (id *RequestID) String() string {
	if id == nil {
		return ""
	}
	return id.raw
}

// IsString reports whether the id was sent as a JSON string.
func (id *RequestID) IsString() bool {
	return id != nil && id.isString
}

// IsNil returns true if the ID is nil/empty.
func (id *RequestID) IsNil() bool {
	if id == nil {
		return true
	}
	return id.raw == "" && !id.isString
}

// Key returns a map key that distinguishes the string "1" from the number 1.
func (id *RequestID) Key() string {
	if id.IsNil() {
		return ""
	}
	if id.isString {
		return "s:" + id.raw
	}
	return "n:" + id.raw
}

// Equal reports whether both ids carry the same token with the same type.
func (id *RequestID) Equal(other *RequestID) bool {
	if id.IsNil() || other.IsNil() {
		return id.IsNil() && other.IsNil()
	}
	return *id == *other
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	if id.isString {
		return json.Marshal(id.raw)
	}
	return []byte(id.raw), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("JSON-RPC ID must be a string or number, got empty input")
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RequestID{raw: s, isString: true}
		return nil
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
		}
		*id = RequestID{raw: n.String()}
		return nil
	default:
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
	}
}
