package mux

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type valuesKey struct{}

// Values is the per-request state Handle stores in the context. The
// middleware reads it to log and the response helpers write Status.
type Values struct {
	TraceID string
	Route   string
	Start   time.Time
	Tracer  trace.Tracer
	Status  int
}

// Elapsed reports how long the request has been running.
func (v *Values) Elapsed() time.Duration { return time.Since(v.Start) }

// FromContext returns the request's Values. Outside a request it
// returns a detached value with a nil trace id and a noop tracer, so
// handlers can be called directly in tests.
func FromContext(ctx context.Context) *Values {
	if v, ok := ctx.Value(valuesKey{}).(*Values); ok {
		return v
	}

	return &Values{
		TraceID: uuid.Nil.String(),
		Start:   time.Now(),
		Tracer:  noop.NewTracerProvider().Tracer(""),
	}
}

// SetStatus records the status code written for the request.
func SetStatus(ctx context.Context, code int) {
	if v, ok := ctx.Value(valuesKey{}).(*Values); ok {
		v.Status = code
	}
}

// TraceID returns the request's trace id, or the nil uuid outside a
// request.
func TraceID(ctx context.Context) string {
	return FromContext(ctx).TraceID
}

// ChildSpan starts a span under the request span using the App's
// tracer. Outside a request it returns the span already in ctx.
func ChildSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	v, ok := ctx.Value(valuesKey{}).(*Values)
	if !ok || v.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return v.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func withValues(ctx context.Context, v *Values) context.Context {
	return context.WithValue(ctx, valuesKey{}, v)
}
