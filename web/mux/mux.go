// Package mux provides the router fetchd's handlers are registered
// on: method-aware routes, a middleware chain, a span per request and
// per-request values such as the trace id.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// App is the core web application, managing routing and middleware.
type App struct {
	mux    *http.ServeMux
	mw     []Middleware
	group  string
	logger *slog.Logger
	tracer trace.Tracer
}

// Handler is a http.Handler that returns an error.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware defines a signature to chain Handler together.
type Middleware func(handler Handler) Handler

// New creates an App with the given options. A no-op tracer and the
// default slog logger are used unless overridden via options.
func New(optFns ...Option) *App {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}

	app := &App{
		mux:    http.NewServeMux(),
		mw:     opts.mw,
		logger: opts.logger,
		tracer: opts.tracer,
	}

	if opts.staticFS != nil {
		app.HandleNoMiddleware(http.MethodGet, "", opts.staticPath, opts.staticFS)
	}

	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Mount returns a new App scoped to the given sub-route prefix.
// All routes registered on the returned App are prefixed with subRoute.
func (a *App) Mount(subRoute string) *App {
	return &App{
		mux:    a.mux,
		mw:     slices.Clone(a.mw),
		logger: a.logger,
		group:  strings.Trim(subRoute, "/"),
		tracer: a.tracer,
	}
}

// Use appends the given middleware to the underlying mw stack.
func (a *App) Use(mw ...Middleware) {
	a.mw = append(a.mw, mw...)
}

// Get registers a handler for GET requests at the given path.
func (a *App) Get(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodGet, a.group, path, fn, mw...)
}

// Post registers a handler for POST requests at the given path.
func (a *App) Post(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodPost, a.group, path, fn, mw...)
}

// Delete registers a handler for DELETE requests at the given path.
func (a *App) Delete(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodDelete, a.group, path, fn, mw...)
}

// Handle registers handler for method and path below group, wrapped in
// the route middleware and then the App's middleware.
func (a *App) Handle(method, group, path string, handler Handler, mw ...Middleware) {
	handler = wrap(mw, handler)
	handler = wrap(a.mw, handler)
	route := pattern(method, group, path)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.startSpan(w, r)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		if !span.SpanContext().TraceID().IsValid() {
			traceID = uuid.New().String()
		}

		v := Values{
			TraceID: traceID,
			Route:   route,
			Start:   time.Now().UTC(),
			Tracer:  a.tracer,
		}

		r = r.WithContext(withValues(ctx, &v))

		if err := handler(r.Context(), w, r); err != nil {
			a.logger.Error("unhandled error", "trace_id", traceID, "path", r.URL.Path, "error", err)
		}
	}

	a.mux.HandleFunc(route, h)
}

// HandleNoMiddleware registers a handler without wrapping it in the
// route-level or group-level middleware stack.
func (a *App) HandleNoMiddleware(method, group, path string, handler Handler) {
	h := func(w http.ResponseWriter, r *http.Request) {
		if err := handler(r.Context(), w, r); err != nil {
			a.logger.Error("unhandled error", "path", r.URL.Path, "error", err)
		}
	}

	a.mux.HandleFunc(pattern(method, group, path), h)
}

func pattern(method, group, path string) string {
	if group != "" {
		path = fmt.Sprintf("/%s%s", group, path)
	}

	return fmt.Sprintf("%s %s", method, path)
}

// startSpan continues any trace the caller propagated, starts the
// handler span and writes the trace context into the response headers.
func (a *App) startSpan(w http.ResponseWriter, r *http.Request) (context.Context, trace.Span) {
	prop := otel.GetTextMapPropagator()

	ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := a.tracer.Start(ctx, "mux.handler")
	span.SetAttributes(
		attribute.String("path", r.RequestURI),
		attribute.String("method", r.Method),
	)

	prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	return ctx, span
}

// wrap middleware around the handler and execute in order given.
func wrap(mw []Middleware, handler Handler) Handler {
	for _, mwFn := range slices.Backward(mw) {
		if mwFn != nil {
			handler = mwFn(handler)
		}
	}

	return handler
}
