// Package middleware provides the request logging, error mapping and
// panic recovery wrapped around every fetchd route.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adamwoolhether/fetcher/web/mux"
)

// Logger logs the start and end of every request. The page polls run
// state several times a second, so successful GETs log at debug.
func Logger(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := mux.FromContext(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			reqLog := log.With("trace_id", v.TraceID, "route", v.Route, "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)
			reqLog.Debug("request started")

			err := handler(ctx, w, r)

			level := slog.LevelInfo
			if r.Method == http.MethodGet && v.Status < http.StatusBadRequest {
				level = slog.LevelDebug
			}
			reqLog.Log(ctx, level, "request completed", "statusCode", v.Status, "since", v.Elapsed().String())

			return err
		}

		return h
	}

	return m
}
