package jsonrpc

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDecode_ClassifiesEnvelopes(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, TypeRequest},
		{"string id request", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, TypeRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, TypeNotification},
		{"result response", `{"jsonrpc":"2.0","id":7,"result":{}}`, TypeResponse},
		{"error response", `{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"nope"}}`, TypeResponse},
		{"unknown fields ignored", `{"jsonrpc":"2.0","id":2,"method":"ping","extra":{"x":1}}`, TypeRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := msg.Type(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDecode_MalformedFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"invalid syntax", `{"jsonrpc":"2.0",`},
		{"empty", `   `},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"request with result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`},
		{"response with result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`},
		{"neither method nor result", `{"jsonrpc":"2.0","id":1}`},
		{"result without id", `{"jsonrpc":"2.0","result":{}}`},
		{"object id", `{"jsonrpc":"2.0","id":{"a":1},"method":"ping"}`},
		{"bool id", `{"jsonrpc":"2.0","id":true,"method":"ping"}`},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	msgs := []*AnyMessage{
		{JSONRPCVersion: ProtocolVersion, Method: "tools/call", Params: json.RawMessage(`{"name":"hello","arguments":{"name":"Ada"}}`), ID: NewRequestID(int64(42))},
		{JSONRPCVersion: ProtocolVersion, Method: "ping", ID: NewRequestID("req-1")},
		{JSONRPCVersion: ProtocolVersion, Method: "notifications/initialized"},
		{JSONRPCVersion: ProtocolVersion, Result: json.RawMessage(`{"tools":[]}`), ID: NewRequestID(json.Number("9007199254740993"))},
		{JSONRPCVersion: ProtocolVersion, Error: &Error{Code: ErrorCodeMethodNotFound, Message: "method not found"}, ID: NewRequestID("x")},
	}
	for _, m := range msgs {
		frame, err := Encode(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if strings.ContainsRune(string(frame), '\n') {
			t.Fatalf("encoded frame contains a newline: %s", frame)
		}
		got, err := Decode(frame)
		if err != nil {
			t.Fatalf("decode %s: %v", frame, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, m)
		}
	}
}

func TestEncode_CompactsPrettyParams(t *testing.T) {
	req := &Request{JSONRPCVersion: ProtocolVersion, Method: "x", Params: json.RawMessage("{\n  \"a\": 1\n}")}
	frame, err := Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsRune(string(frame), '\n') {
		t.Fatalf("expected compact output, got %q", frame)
	}
}

func TestPeekID(t *testing.T) {
	if id := PeekID([]byte(`{"jsonrpc":"2.0","id":5}`)); id == nil || id.String() != "5" {
		t.Fatalf("expected id 5, got %v", id)
	}
	if id := PeekID([]byte(`{"id":"abc","jsonrpc":"1.0"}`)); id == nil || !id.IsString() {
		t.Fatalf("expected string id, got %v", id)
	}
	if id := PeekID([]byte(`{not json`)); id != nil {
		t.Fatalf("expected nil id for invalid JSON, got %v", id)
	}
	if id := PeekID([]byte(`{"jsonrpc":"2.0","id":null}`)); id != nil {
		t.Fatalf("expected nil for null id, got %v", id)
	}
}
