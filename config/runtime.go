package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/vinayprograms/kvmirror/bus"
	"github.com/vinayprograms/kvmirror/change"
	"github.com/vinayprograms/kvmirror/logging"
	"github.com/vinayprograms/kvmirror/mirror"
	"github.com/vinayprograms/kvmirror/storage"
	"github.com/vinayprograms/kvmirror/telemetry"
)

// Runtime is one context assembled from a Config: a storage area, the
// context's change bus, and (when a transport is configured) the relay that
// connects the bus to other contexts.
type Runtime struct {
	Config    *Config
	Area      storage.Area
	Changes   *change.Bus
	Transport bus.MessageBus
	Relay     *change.Relay
	Logger    *logging.Logger
	Tracer    *telemetry.Tracer

	closers []func() error
}

// Open builds the Runtime described by cfg. A nats area and a nats
// transport share one connection. On error everything opened so far is
// closed again.
func Open(ctx context.Context, cfg *Config) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Changes: change.NewBus(),
	}
	if err := rt.open(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	rt.Logger.WithComponent("runtime").Info("opened", map[string]interface{}{
		"area":      rt.Area.ID(),
		"transport": cfg.Transport.Kind,
		"context":   rt.Changes.ID(),
	})
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context) error {
	cfg := rt.Config

	rt.Logger = logging.New()
	rt.Logger.SetLevel(logging.ParseLevel(cfg.Log.Level))
	if cfg.Log.Output == "stderr" {
		rt.Logger.SetOutput(os.Stderr)
	}

	if err := rt.openTelemetry(ctx); err != nil {
		return err
	}

	var natsBus *bus.NATSBus
	if cfg.Area.Kind == AreaNATS || cfg.Transport.Kind == TransportNATS {
		ncfg := bus.DefaultNATSConfig()
		ncfg.URL = cfg.natsURL()
		ncfg.Name = "kvmirror-" + rt.Changes.ID()
		var err error
		natsBus, err = bus.NewNATSBus(ncfg)
		if err != nil {
			return err
		}
		rt.onClose(natsBus.Close)
	}

	if err := rt.openArea(natsBus); err != nil {
		return err
	}
	return rt.openTransport(ctx, natsBus)
}

func (rt *Runtime) openTelemetry(ctx context.Context) error {
	cfg := rt.Config.Telemetry

	rt.Tracer = telemetry.GetTracer()
	if cfg.Endpoint != "" {
		p, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.Endpoint,
			Protocol:    cfg.Protocol,
			Insecure:    cfg.Insecure,
			Debug:       cfg.Debug,
		})
		if err != nil {
			return err
		}
		rt.Tracer = p.Tracer()
		rt.onClose(func() error { return p.Shutdown(context.Background()) })
	}

	if cfg.Audit != "" {
		exp, err := telemetry.NewExporter(cfg.Audit, cfg.AuditEndpoint)
		if err != nil {
			return err
		}
		unsubscribe := rt.Changes.Subscribe(telemetry.ChangeAudit(exp, cfg.Debug))
		rt.onClose(func() error {
			unsubscribe()
			return exp.Close()
		})
	}
	return nil
}

func (rt *Runtime) openArea(natsBus *bus.NATSBus) error {
	cfg := rt.Config.Area

	switch cfg.Kind {
	case AreaMemory:
		opts := []storage.MemoryOption{storage.WithName(cfg.Name)}
		if cfg.Quota > 0 {
			opts = append(opts, storage.WithQuota(cfg.Quota))
		}
		a := storage.NewMemoryArea(opts...)
		rt.Area = a
		rt.onClose(a.Close)

	case AreaBolt:
		a, err := storage.OpenBolt(cfg.Path, cfg.Bucket)
		if err != nil {
			return err
		}
		rt.Area = a
		rt.onClose(a.Close)

	case AreaSQLite:
		a, err := storage.OpenSQLite(cfg.Path, cfg.Table)
		if err != nil {
			return err
		}
		rt.Area = a
		rt.onClose(a.Close)

	case AreaNATS:
		acfg := storage.DefaultNATSAreaConfig()
		acfg.Conn = natsBus.Conn()
		if cfg.Bucket != "" {
			acfg.Bucket = cfg.Bucket
		}
		a, err := storage.NewNATSArea(acfg)
		if err != nil {
			return err
		}
		rt.Area = a
		rt.onClose(a.Close)

	default:
		return fmt.Errorf("unknown area kind %q", cfg.Kind)
	}
	return nil
}

func (rt *Runtime) openTransport(ctx context.Context, natsBus *bus.NATSBus) error {
	cfg := rt.Config.Transport

	switch cfg.Kind {
	case TransportNone:
		return nil
	case TransportMemory:
		mb := bus.NewMemoryBus(bus.DefaultConfig())
		rt.Transport = mb
		rt.onClose(mb.Close)
	case TransportNATS:
		// The connection is closed with the area's.
		rt.Transport = natsBus
	case TransportWebSocket:
		ws, err := bus.DialWebSocket(ctx, cfg.URL, bus.DefaultWebSocketConfig())
		if err != nil {
			return err
		}
		rt.Transport = ws
		rt.onClose(ws.Close)
	default:
		return fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}

	relay, err := change.NewRelay(rt.Changes, rt.Transport, change.RelayConfig{
		Subject: cfg.Subject,
		Logger:  rt.Logger,
	})
	if err != nil {
		return err
	}
	rt.Relay = relay
	rt.onClose(relay.Close)
	return nil
}

func (rt *Runtime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Sink reports failures to the log and the tracer.
func (rt *Runtime) Sink() mirror.ErrorSink {
	return mirror.MultiSink(mirror.LogSink(rt.Logger), rt.Tracer.RecordFailure)
}

// EngineOptions are the options Bind passes to every engine.
func (rt *Runtime) EngineOptions() []mirror.Option {
	return []mirror.Option{
		mirror.WithErrorSink(rt.Sink()),
		mirror.WithLogger(rt.Logger),
		mirror.WithSyncAcrossContexts(rt.Config.Engine.SyncAcrossContexts),
	}
}

// Close releases everything Open acquired, most recent first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Bind creates an engine on the runtime's area and change bus inside a
// bind span. opts are applied after the runtime defaults. Failures
// reported while the engine resolves are recorded as children of the bind
// span, and the first of them fails the span.
func Bind[T any](ctx context.Context, rt *Runtime, key string, fallback T, opts ...mirror.Option) *mirror.Engine[T] {
	ctx, span := rt.Tracer.StartBindSpan(ctx, "bind", key, rt.Area.ID())

	var (
		mu       sync.Mutex
		resolved bool
		first    error
	)
	record := func(err error) {
		mu.Lock()
		inBind := !resolved
		if inBind && first == nil {
			first = err
		}
		mu.Unlock()
		if inBind {
			rt.Tracer.RecordFailureContext(ctx, err)
			return
		}
		rt.Tracer.RecordFailure(err)
	}

	all := append(rt.EngineOptions(), mirror.WithErrorSink(mirror.MultiSink(mirror.LogSink(rt.Logger), record)))
	e := mirror.New(rt.Area, rt.Changes, key, fallback, append(all, opts...)...)

	mu.Lock()
	resolved = true
	err := first
	mu.Unlock()
	telemetry.EndSpan(span, err)
	return e
}
