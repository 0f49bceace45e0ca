// OpenTelemetry tracing for mirror engines.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vinayprograms/kvmirror/change"
	kverrors "github.com/vinayprograms/kvmirror/errors"
)

// Tracer wraps OpenTelemetry tracing with mirror-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  atomic.Bool // When true, include stored values in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer(name string, debug bool) *Tracer {
	t := &Tracer{tracer: otel.Tracer(name)}
	t.debug.Store(debug)
	return t
}

// NewTracerFrom creates a tracer from a specific provider.
func NewTracerFrom(tp trace.TracerProvider, name string, debug bool) *Tracer {
	t := &Tracer{tracer: tp.Tracer(name)}
	t.debug.Store(debug)
	return t
}

// SetDebug enables or disables debug mode (values in spans). It may be
// called while notifications are being recorded.
func (t *Tracer) SetDebug(debug bool) {
	t.debug.Store(debug)
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug.Load()
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Binding Spans ---

// StartBindSpan starts a span around a bind or key switch.
func (t *Tracer) StartBindSpan(ctx context.Context, op, key, area string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "mirror."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("mirror.key", key),
		attribute.String("mirror.area", area),
	)
	return ctx, span
}

// EndSpan ends a span, marking it failed when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(failureAttributes(err)...)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Failure Spans ---

// RecordFailure records err as a failed span. Its signature matches
// mirror.ErrorSink, so a Tracer can be passed directly as a sink.
func (t *Tracer) RecordFailure(err error) {
	t.RecordFailureContext(context.Background(), err)
}

// RecordFailureContext records err as a failed span that is a child of
// the span in ctx.
func (t *Tracer) RecordFailureContext(ctx context.Context, err error) {
	if err == nil {
		return
	}
	_, span := t.tracer.Start(ctx, "mirror.failure", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(failureAttributes(err)...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

func failureAttributes(err error) []attribute.KeyValue {
	me := kverrors.AsMirrorError(err)
	if me == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("mirror.code", me.Code().String()),
		attribute.String("mirror.category", me.Category().String()),
		attribute.Bool("mirror.retryable", me.Retryable()),
	}
	meta := me.Metadata()
	for _, k := range []string{kverrors.MetaKey, kverrors.MetaArea, kverrors.MetaOp} {
		if v, ok := meta[k]; ok {
			attrs = append(attrs, attribute.String("mirror."+k, v))
		}
	}
	return attrs
}

// --- Notification Spans ---

// RecordNotification records a change bus notification as a span. Stored
// values are only attached in debug mode. It can be subscribed directly:
//
//	changes.Subscribe(tracer.RecordNotification)
func (t *Tracer) RecordNotification(n change.Notification) {
	_, span := t.tracer.Start(context.Background(), "mirror.notification", trace.WithSpanKind(trace.SpanKindConsumer))
	attrs := []attribute.KeyValue{
		attribute.String("mirror.key", n.Key),
		attribute.String("mirror.area", n.Area),
		attribute.String("mirror.origin", n.Origin),
		attribute.Bool("mirror.deleted", n.Deleted()),
	}
	if t.debug.Load() {
		if n.NewRaw != nil {
			attrs = append(attrs, attribute.String("mirror.new", truncate(*n.NewRaw, 2000)))
		}
		if n.OldRaw != nil {
			attrs = append(attrs, attribute.String("mirror.old", truncate(*n.OldRaw, 2000)))
		}
	}
	span.SetAttributes(attrs...)
	span.End()
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
