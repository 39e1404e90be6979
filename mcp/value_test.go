package mcp

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValue_UnmarshalPreservesKinds(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"s":"x","n":12345678901234567890,"f":1.5,"b":true,"a":[1,"two",null],"o":{"k":false},"z":null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Kind() != KindObject {
		t.Fatalf("expected object, got %s", v.Kind())
	}

	cases := map[string]Kind{"s": KindString, "n": KindNumber, "f": KindNumber, "b": KindBool, "a": KindArray, "o": KindObject, "z": KindNull}
	for key, want := range cases {
		got, ok := v.Get(key)
		if !ok {
			t.Fatalf("missing key %q", key)
		}
		if got.Kind() != want {
			t.Fatalf("key %q: expected %s, got %s", key, want, got.Kind())
		}
	}

	n, _ := v.Get("n")
	if lit, _ := n.NumberLiteral(); lit != "12345678901234567890" {
		t.Fatalf("large integer literal was reinterpreted: %q", lit)
	}
	a, _ := v.Get("a")
	if items := a.Items(); len(items) != 3 || !items[2].IsNull() {
		t.Fatalf("unexpected array items: %+v", items)
	}
}

func TestValue_MarshalRoundTrip(t *testing.T) {
	in := Object(map[string]Value{
		"type": String("object"),
		"properties": Object(map[string]Value{
			"name": Object(map[string]Value{"type": String("string")}),
		}),
		"required": Array(String("name")),
		"max":      Int(10),
		"ratio":    Number(0.25),
		"strict":   Bool(false),
	})
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Value
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !in.Equal(out) {
		t.Fatalf("round trip mismatch: %s", string(b))
	}
}

func TestValue_ZeroValuesMarshal(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Value{}, "null"},
		{"empty object", Object(nil), "{}"},
		{"empty array", Array(), "[]"},
		{"bool", Bool(true), "true"},
		{"string", String("a\"b"), `"a\"b"`},
		{"nan", Number(math.NaN()), "null"},
		{"positive infinity", Number(math.Inf(1)), "null"},
		{"negative infinity", Number(math.Inf(-1)), "null"},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.v)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.name, err)
		}
		if string(b) != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, string(b))
		}
	}
}

func TestValue_Accessors(t *testing.T) {
	if _, ok := Int(3).AsString(); ok {
		t.Fatalf("number must not read as string")
	}
	if s, ok := String("Ada").AsString(); !ok || s != "Ada" {
		t.Fatalf("unexpected string accessor result %q %v", s, ok)
	}
	if f, ok := Int(3).AsNumber(); !ok || f != 3 {
		t.Fatalf("unexpected number accessor result %v %v", f, ok)
	}
	obj := Object(map[string]Value{"a": Int(1)})
	with := obj.With("b", Bool(true))
	if _, ok := obj.Get("b"); ok {
		t.Fatalf("With mutated the receiver")
	}
	if _, ok := with.Get("b"); !ok {
		t.Fatalf("With did not add the key")
	}
	if _, ok := with.Without("a").Get("a"); ok {
		t.Fatalf("Without did not remove the key")
	}
}

func TestValue_Decode(t *testing.T) {
	v := Object(map[string]Value{"name": String("Ada")})
	var dst struct {
		Name string `json:"name"`
	}
	if err := v.Decode(&dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dst.Name != "Ada" {
		t.Fatalf("expected Ada, got %q", dst.Name)
	}
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(map[string]any{"k": []int{1, 2}})
	if err != nil {
		t.Fatalf("ValueOf: %v", err)
	}
	k, ok := v.Get("k")
	if !ok || k.Kind() != KindArray || len(k.Items()) != 2 {
		t.Fatalf("unexpected value: %+v", v)
	}
}
