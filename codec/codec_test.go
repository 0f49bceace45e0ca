package codec

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type profile struct {
	Name  string   `json:"name" toml:"name"`
	Age   int      `json:"age" toml:"age"`
	Tags  []string `json:"tags" toml:"tags"`
	Admin bool     `json:"admin" toml:"admin"`
}

func TestJSON_StringEncoding(t *testing.T) {
	raw, err := JSON[string]{}.Serialize("John Doe")
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	if raw != `"John Doe"` {
		t.Errorf("raw = %s, want %s", raw, `"John Doe"`)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		for _, v := range []string{"", "Burt", "with \"quotes\"", "ünïcode"} {
			roundTrip[string](t, JSON[string]{}, v)
		}
	})
	t.Run("int", func(t *testing.T) {
		for _, v := range []int{0, -1, 42, 1 << 40} {
			roundTrip[int](t, JSON[int]{}, v)
		}
	})
	t.Run("struct", func(t *testing.T) {
		roundTrip[profile](t, JSON[profile]{}, profile{Name: "Daffodil", Age: 7, Tags: []string{"a", "b"}, Admin: true})
	})
	t.Run("map", func(t *testing.T) {
		roundTrip[map[string]int](t, JSON[map[string]int]{}, map[string]int{"a": 1, "b": 2})
	})
}

func roundTrip[T any](t *testing.T, c Codec[T], v T) {
	t.Helper()
	raw, err := c.Serialize(v)
	if err != nil {
		t.Fatalf("Serialize(%v) error: %v", v, err)
	}
	got, err := c.Deserialize(raw)
	if err != nil {
		t.Fatalf("Deserialize(%q) error: %v", raw, err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("round trip = %#v, want %#v", got, v)
	}
}

func TestJSON_DeserializeErrors(t *testing.T) {
	tests := []string{"", "{", `"unterminated`, "not json"}
	for _, raw := range tests {
		if _, err := (JSON[string]{}).Deserialize(raw); err == nil {
			t.Errorf("Deserialize(%q) should fail", raw)
		}
	}
}

func TestJSON_SerializeError(t *testing.T) {
	if _, err := (JSON[chan int]{}).Serialize(make(chan int)); err == nil {
		t.Error("channels should not serialize")
	}
}

func TestTOML_RoundTrip(t *testing.T) {
	roundTrip[profile](t, TOML[profile]{}, profile{Name: "Magoo", Age: 70, Tags: []string{"x"}})

	raw, err := TOML[profile]{}.Serialize(profile{Name: "Magoo"})
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	if !strings.Contains(raw, `name = "Magoo"`) {
		t.Errorf("expected toml key/value, got: %s", raw)
	}
}

func TestTOML_DeserializeError(t *testing.T) {
	if _, err := (TOML[profile]{}).Deserialize("name = "); err == nil {
		t.Error("malformed toml should fail")
	}
}

func TestFuncs(t *testing.T) {
	upper := func(v string) (string, error) { return strings.ToUpper(v), nil }
	c := Override[string](JSON[string]{}, upper, nil)

	raw, err := c.Serialize("burt")
	if err != nil || raw != "BURT" {
		t.Errorf("Serialize = %q, %v; want BURT", raw, err)
	}
	// Parser falls back to JSON.
	got, err := c.Deserialize(`"x"`)
	if err != nil || got != "x" {
		t.Errorf("Deserialize = %q, %v; want x", got, err)
	}

	failing := Override[string](nil, nil, func(string) (string, error) { return "", fmt.Errorf("nope") })
	if _, err := failing.Deserialize(`"x"`); err == nil {
		t.Error("custom parser error should surface")
	}
	// nil base means JSON.
	raw, err = failing.Serialize("x")
	if err != nil || raw != `"x"` {
		t.Errorf("Serialize = %q, %v; want \"x\"", raw, err)
	}
}

func TestOverride_NoFuncsReturnsBase(t *testing.T) {
	base := TOML[profile]{}
	if got := Override[profile](base, nil, nil); got != Codec[profile](base) {
		t.Errorf("Override without funcs should return base, got %T", got)
	}
}

func TestString(t *testing.T) {
	roundTrip[string](t, String{}, "")
	roundTrip[string](t, String{}, "not json at all")
}
