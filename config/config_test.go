package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/kvmirror/change"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvmirror.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Area.Kind != AreaMemory || cfg.Transport.Kind != TransportNone {
		t.Errorf("kinds = %q/%q", cfg.Area.Kind, cfg.Transport.Kind)
	}
	if !cfg.Engine.SyncAcrossContexts {
		t.Error("sync_across_contexts should default to true")
	}
	if cfg.Transport.Subject != change.DefaultSubject {
		t.Errorf("subject = %q", cfg.Transport.Subject)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[area]
kind = "bolt"
path = "/var/lib/kvmirror/prefs.db"
bucket = "prefs"

[transport]
kind = "nats"
url = "nats://localhost:4222"
subject = "prefs.changes"

[engine]
sync_across_contexts = false

[log]
level = "debug"
`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Area.Kind != AreaBolt || cfg.Area.Path != "/var/lib/kvmirror/prefs.db" || cfg.Area.Bucket != "prefs" {
		t.Errorf("area = %+v", cfg.Area)
	}
	if cfg.Transport.URL != "nats://localhost:4222" || cfg.Transport.Subject != "prefs.changes" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Engine.SyncAcrossContexts {
		t.Error("sync_across_contexts not applied")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Area.Table != "kvmirror" || cfg.Telemetry.ServiceName != "kvmirror" {
		t.Errorf("defaults lost: %+v %+v", cfg.Area, cfg.Telemetry)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("[area\nkind="); err == nil {
		t.Error("expected TOML syntax error")
	}
}

func TestLoad_UnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[area]
kind = "memory"
colour = "blue"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "area.colour") {
		t.Errorf("Load error = %v, want unknown key area.colour", err)
	}
}

func TestParse_UnknownKeys(t *testing.T) {
	_, err := Parse(`
[telemetry]
protocol = "http"
sampler = "always"
`)
	if err == nil || !strings.Contains(err.Error(), "telemetry.sampler") {
		t.Errorf("Parse error = %v, want unknown key telemetry.sampler", err)
	}
}

func TestParse_TelemetryProtocol(t *testing.T) {
	cfg, err := Parse(`
[telemetry]
endpoint = "http://collector:4318"
protocol = "http"
`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Telemetry.Protocol != "http" {
		t.Errorf("protocol = %q, want http", cfg.Telemetry.Protocol)
	}
	if Default().Telemetry.Protocol != "grpc" {
		t.Errorf("default protocol = %q, want grpc", Default().Telemetry.Protocol)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[area]
kind = "memory"
name = "from-file"

[log]
level = "warn"
`)
	t.Setenv("KVMIRROR_AREA_NAME", "from-env")
	t.Setenv("KVMIRROR_AREA_QUOTA", "4096")
	t.Setenv("KVMIRROR_ENGINE_SYNC_ACROSS_CONTEXTS", "false")
	t.Setenv("KVMIRROR_TELEMETRY_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Area.Name != "from-env" || cfg.Area.Quota != 4096 {
		t.Errorf("area = %+v", cfg.Area)
	}
	if cfg.Engine.SyncAcrossContexts {
		t.Error("env did not disable sync")
	}
	if !cfg.Telemetry.Debug {
		t.Error("env did not enable debug")
	}
	// Values not in the environment come from the file.
	if cfg.Log.Level != "warn" {
		t.Errorf("level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("KVMIRROR_AREA_KIND", "sqlite")
	t.Setenv("KVMIRROR_AREA_PATH", "/tmp/kv.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Area.Kind != AreaSQLite || cfg.Area.Path != "/tmp/kv.db" {
		t.Errorf("area = %+v", cfg.Area)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("KVMIRROR_AREA_QUOTA", "lots")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric quota")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"unknown area", func(c *Config) { c.Area.Kind = "redis" }, "unknown area kind"},
		{"bolt without path", func(c *Config) { c.Area.Kind = AreaBolt }, "requires path"},
		{"sqlite without path", func(c *Config) { c.Area.Kind = AreaSQLite }, "requires path"},
		{"nats area without url", func(c *Config) { c.Area.Kind = AreaNATS }, "requires url"},
		{"nats area using transport url", func(c *Config) {
			c.Area.Kind = AreaNATS
			c.Transport.Kind = TransportNATS
			c.Transport.URL = "nats://localhost:4222"
		}, ""},
		{"negative quota", func(c *Config) { c.Area.Quota = -1 }, "quota"},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }, "unknown transport kind"},
		{"websocket without url", func(c *Config) { c.Transport.Kind = TransportWebSocket }, "requires url"},
		{"empty subject", func(c *Config) { c.Transport.Subject = "" }, "subject"},
		{"file audit without endpoint", func(c *Config) { c.Telemetry.Audit = "file" }, "audit_endpoint"},
		{"unknown audit", func(c *Config) { c.Telemetry.Audit = "syslog" }, "unknown audit"},
		{"unknown telemetry protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }, "telemetry protocol"},
		{"unknown log output", func(c *Config) { c.Log.Output = "syslog" }, "log output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
