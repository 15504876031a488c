package mux

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type Option func(*options)

// options represents optional parameters.
type options struct {
	staticFS   Handler
	staticPath string
	tracer     trace.Tracer
	logger     *slog.Logger
	mw         []Middleware
}

// WithMiddleware orders the given middleware by function name so the
// stack is always Logger, Errors, custom middleware, Panics, no matter
// the order they are passed in.
func WithMiddleware(mw ...Middleware) Option {
	priority := func(m Middleware) int {
		switch name(m) {
		case "Logger":
			return 1
		case "Errors":
			return 2
		case "Panics":
			return 100
		default:
			return 3
		}
	}

	sorted := slices.Clone(mw)
	slices.SortStableFunc(sorted, func(a, b Middleware) int {
		return priority(a) - priority(b)
	})

	return Option(func(opts *options) {
		opts.mw = sorted
	})
}

// WithTracer injects the given tracer into the App.
func WithTracer(tracer trace.Tracer) Option {
	return Option(func(opts *options) {
		opts.tracer = tracer
	})
}

// WithLogger sets the logger used by the App for internal errors.
func WithLogger(log *slog.Logger) Option {
	return Option(func(opts *options) {
		opts.logger = log
	})
}

// WithStaticFS serves static files from fsys under the given URL path prefix.
// The prefix is stripped before looking up files in fsys.
func WithStaticFS(fsys fs.FS, pathPrefix string) Option {
	return Option(func(opts *options) {
		fsHandler := http.StripPrefix(pathPrefix, http.FileServer(http.FS(fsys)))
		opts.staticFS = Adapt(fsHandler)
		opts.staticPath = pathPrefix
	})
}

// Adapt converts a standard http.Handler into a web Handler, enabling
// registration of third-party or stdlib handlers on the App.
func Adapt(h http.Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}

// name returns the enclosing function of a middleware closure, e.g.
// "Logger" for ".../web/middleware.Logger.func1".
func name(mw Middleware) string {
	fnName := runtime.FuncForPC(reflect.ValueOf(mw).Pointer()).Name()
	if i := strings.LastIndex(fnName, "/"); i >= 0 {
		fnName = fnName[i+1:]
	}

	parts := strings.Split(fnName, ".")
	if len(parts) >= 2 {
		return parts[1]
	}
	return fnName
}
