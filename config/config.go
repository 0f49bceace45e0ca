// Package config loads kvmirror configuration and assembles the runtime
// (storage area, change bus, relay, logger, tracer) it describes.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/vinayprograms/kvmirror/change"
	"github.com/vinayprograms/kvmirror/logging"
	"github.com/vinayprograms/kvmirror/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. KVMIRROR_AREA_KIND.
const EnvPrefix = "KVMIRROR_"

// Area kinds.
const (
	AreaMemory = "memory"
	AreaBolt   = "bolt"
	AreaSQLite = "sqlite"
	AreaNATS   = "nats"
)

// Transport kinds.
const (
	TransportNone      = "none"
	TransportMemory    = "memory"
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
)

// Config is the complete configuration.
type Config struct {
	Area      AreaConfig      `toml:"area" envPrefix:"AREA_"`
	Transport TransportConfig `toml:"transport" envPrefix:"TRANSPORT_"`
	Engine    EngineConfig    `toml:"engine" envPrefix:"ENGINE_"`
	Log       LogConfig       `toml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"TELEMETRY_"`
}

// AreaConfig selects the storage area.
type AreaConfig struct {
	// Kind is memory, bolt, sqlite or nats.
	Kind string `toml:"kind" env:"KIND"`

	// Name of a memory area.
	Name string `toml:"name" env:"NAME"`

	// Path of the bolt or sqlite database file.
	Path string `toml:"path" env:"PATH"`

	// Bucket for bolt and nats areas.
	Bucket string `toml:"bucket" env:"BUCKET"`

	// Table for sqlite areas.
	Table string `toml:"table" env:"TABLE"`

	// Quota in bytes for memory areas. 0 = unlimited.
	Quota int `toml:"quota" env:"QUOTA"`

	// URL of the NATS server for nats areas.
	URL string `toml:"url" env:"URL"`
}

// TransportConfig selects how change notifications reach other contexts.
type TransportConfig struct {
	// Kind is none, memory, nats or websocket.
	Kind string `toml:"kind" env:"KIND"`

	// URL of the NATS server or WebSocket hub.
	URL string `toml:"url" env:"URL"`

	// Subject notifications are relayed on.
	Subject string `toml:"subject" env:"SUBJECT"`

	// Listen is the address the WebSocket hub serves on.
	Listen string `toml:"listen" env:"LISTEN"`
}

// EngineConfig holds defaults for engines built from a Runtime.
type EngineConfig struct {
	SyncAcrossContexts bool `toml:"sync_across_contexts" env:"SYNC_ACROSS_CONTEXTS"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`

	// Output is stdout or stderr.
	Output string `toml:"output" env:"OUTPUT"`
}

// TelemetryConfig configures tracing and the change audit log.
type TelemetryConfig struct {
	// Endpoint is the OTLP endpoint. Empty disables tracing.
	Endpoint string `toml:"endpoint" env:"ENDPOINT"`

	// Protocol is grpc or http.
	Protocol string `toml:"protocol" env:"PROTOCOL"`

	// ServiceName reported on traces.
	ServiceName string `toml:"service_name" env:"SERVICE_NAME"`

	Insecure bool `toml:"insecure" env:"INSECURE"`

	// Debug includes stored values in spans and audit events.
	Debug bool `toml:"debug" env:"DEBUG"`

	// Audit is the change audit exporter: noop, file or http. Empty disables it.
	Audit string `toml:"audit" env:"AUDIT"`

	// AuditEndpoint is the file path or URL for the audit exporter.
	AuditEndpoint string `toml:"audit_endpoint" env:"AUDIT_ENDPOINT"`
}

// Default returns the configuration used when nothing is set: an
// in-memory area with no transport.
func Default() *Config {
	return &Config{
		Area: AreaConfig{
			Kind:   AreaMemory,
			Name:   "default",
			Bucket: "kvmirror",
			Table:  "kvmirror",
		},
		Transport: TransportConfig{
			Kind:    TransportNone,
			Subject: change.DefaultSubject,
			Listen:  ":8765",
		},
		Engine: EngineConfig{
			SyncAcrossContexts: true,
		},
		Log: LogConfig{
			Level:  string(logging.LevelInfo),
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "kvmirror",
			Protocol:    telemetry.ProtocolGRPC,
		},
	}
}

// Load reads the TOML file at path (if non-empty) over the defaults, then
// applies KVMIRROR_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(string(data), cfg); err != nil {
			return nil, err
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML content over the defaults without consulting the
// environment.
func Parse(content string) (*Config, error) {
	cfg := Default()
	if err := decode(content, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode applies TOML content to cfg. Keys that match no field are an
// error.
func decode(content string, cfg *Config) error {
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ParseEnv applies KVMIRROR_* environment variables to cfg. Unset
// variables leave fields unchanged.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that the selected kinds have what they need.
func (c *Config) Validate() error {
	switch c.Area.Kind {
	case AreaMemory:
	case AreaBolt, AreaSQLite:
		if c.Area.Path == "" {
			return fmt.Errorf("area kind %q requires path", c.Area.Kind)
		}
	case AreaNATS:
		if c.Area.URL == "" && c.Transport.URL == "" {
			return fmt.Errorf("area kind %q requires url", c.Area.Kind)
		}
	default:
		return fmt.Errorf("unknown area kind %q", c.Area.Kind)
	}
	if c.Area.Quota < 0 {
		return fmt.Errorf("area quota must not be negative")
	}

	switch c.Transport.Kind {
	case TransportNone, TransportMemory:
	case TransportNATS, TransportWebSocket:
		if c.Transport.URL == "" {
			return fmt.Errorf("transport kind %q requires url", c.Transport.Kind)
		}
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Transport.Subject == "" {
		return fmt.Errorf("transport subject must not be empty")
	}

	switch c.Log.Output {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("unknown log output %q", c.Log.Output)
	}

	switch c.Telemetry.Protocol {
	case telemetry.ProtocolGRPC, telemetry.ProtocolHTTP:
	default:
		return fmt.Errorf("unknown telemetry protocol %q", c.Telemetry.Protocol)
	}

	switch c.Telemetry.Audit {
	case "", "noop":
	case "file", "http":
		if c.Telemetry.AuditEndpoint == "" {
			return fmt.Errorf("audit exporter %q requires audit_endpoint", c.Telemetry.Audit)
		}
	default:
		return fmt.Errorf("unknown audit exporter %q", c.Telemetry.Audit)
	}
	return nil
}

// natsURL is the server URL for nats areas, shared with the transport when
// the area does not set its own.
func (c *Config) natsURL() string {
	if c.Area.URL != "" {
		return c.Area.URL
	}
	return c.Transport.URL
}
