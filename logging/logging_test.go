package logging

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	kverrors "github.com/vinayprograms/kvmirror/errors"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARN ", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithComponent("mirror").Info("test message")

	output := buf.String()
	if !strings.Contains(output, "[mirror]") {
		t.Errorf("expected component 'mirror' in log, got: %s", output)
	}
}

func TestLogger_WithContextID(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithContextID("ctx-1").Info("test message")

	if !strings.Contains(buf.String(), "ctx=ctx-1") {
		t.Errorf("expected ctx field, got: %s", buf.String())
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.WithComponent("test").Info("hello world", map[string]interface{}{"b": 2, "a": 1})

	output := buf.String()
	// Format: LEVEL TIMESTAMP [component] message key=value
	if !strings.HasPrefix(output, "INFO ") {
		t.Errorf("expected line to start with 'INFO ', got: %s", output)
	}
	if !strings.Contains(output, "[test] hello world a=1 b=2") {
		t.Errorf("expected sorted fields after message, got: %s", output)
	}
}

func TestLogger_Discard(t *testing.T) {
	// Must not panic or write anywhere visible.
	Discard().Error("nothing")
}

func TestLogger_EngineEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelDebug)

	logger.Resolved("username", "memory:test", "fallback")
	logger.KeySwitched("username", "password")
	logger.NotificationApplied("username", "ctx-2", true)

	output := buf.String()
	for _, want := range []string{
		"resolved", "source=fallback",
		"key_switch", "from=username", "to=password",
		"notification_applied", "deleted=true", "origin=ctx-2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestLogger_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Failure(kverrors.Codec("deserialize", "username", fmt.Errorf("bad json")))

	output := buf.String()
	if !strings.HasPrefix(output, "ERROR") {
		t.Errorf("failure should log at ERROR, got: %s", output)
	}
	for _, want := range []string{"code=CODEC_ERROR", "key=username", "op=deserialize", "bad json"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}

	buf.Reset()
	logger.Failure(fmt.Errorf("plain"))
	if strings.Contains(buf.String(), "code=") {
		t.Errorf("plain error should have no code, got: %s", buf.String())
	}
}
