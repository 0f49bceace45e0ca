package storage

import (
	"reflect"
	"testing"
)

// testAreaContract exercises the behaviour every Area must share.
func testAreaContract(t *testing.T, a Area) {
	t.Helper()

	t.Run("missing key is absent", func(t *testing.T) {
		v, ok, err := a.Get("missing")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if ok || v != "" {
			t.Errorf("Get(missing) = %q, %v; want absent", v, ok)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		if err := a.Set("username", `"Burt"`); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		v, ok, err := a.Get("username")
		if err != nil || !ok || v != `"Burt"` {
			t.Errorf("Get = %q, %v, %v; want \"Burt\"", v, ok, err)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := a.Set("username", `"Daffodil"`); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		v, _, _ := a.Get("username")
		if v != `"Daffodil"` {
			t.Errorf("Get = %q, want \"Daffodil\"", v)
		}
	})

	t.Run("empty value is present", func(t *testing.T) {
		if err := a.Set("blank", ""); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		v, ok, err := a.Get("blank")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if !ok || v != "" {
			t.Errorf("Get(blank) = %q, %v; want present empty", v, ok)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := a.Remove("username"); err != nil {
			t.Fatalf("Remove error: %v", err)
		}
		if _, ok, _ := a.Get("username"); ok {
			t.Error("key should be absent after Remove")
		}
		if err := a.Remove("username"); err != nil {
			t.Errorf("removing a missing key should not fail: %v", err)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		if err := a.Set("", "x"); err == nil {
			t.Error("empty key should be rejected")
		}
		if _, _, err := a.Get(""); err == nil {
			t.Error("empty key should be rejected")
		}
	})

	if l, ok := a.(Lister); ok {
		t.Run("keys", func(t *testing.T) {
			_ = a.Set("prefs.theme", `"dark"`)
			_ = a.Set("prefs.lang", `"en"`)
			keys, err := l.Keys("prefs.*")
			if err != nil {
				t.Fatalf("Keys error: %v", err)
			}
			want := []string{"prefs.lang", "prefs.theme"}
			if !reflect.DeepEqual(keys, want) {
				t.Errorf("Keys = %v, want %v", keys, want)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	long := make([]byte, MaxKeyLength+1)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"username", false},
		{"with space", false},
		{"", true},
		{string(long), true},
		{string(long[:MaxKeyLength]), false},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateKey(len %d) = %v, wantErr %v", len(tt.key), err, tt.wantErr)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"*", "anything", true},
		{"", "anything", true},
		{"prefs.*", "prefs.theme", true},
		{"prefs.*", "other", false},
		{"username", "username", true},
		{"username", "username2", false},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.key); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}
