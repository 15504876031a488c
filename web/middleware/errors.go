package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/adamwoolhether/fetcher/web"
	"github.com/adamwoolhether/fetcher/web/errs"
	"github.com/adamwoolhether/fetcher/web/mux"
)

// Errors handles errors coming out of the call chain.
func Errors(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			if fieldErr, ok := errors.AsType[errs.FieldErrors](err); ok {
				return web.RespondJSON(ctx, w, http.StatusUnprocessableEntity, fieldErr)
			}

			appErr, ok := errors.AsType[*errs.Error](err)
			if !ok { // to catch errs that may have escaped, obscure them from public view.
				appErr = errs.NewInternal(err)
			}

			reqLog := log.With("trace_id", mux.TraceID(ctx))
			attrs := []any{"status", appErr.Code, "source_err_file", path.Base(appErr.FileName), "source_err_func", path.Base(appErr.FuncName)}
			if appErr.Code >= http.StatusInternalServerError {
				reqLog.Error(err.Error(), attrs...)
			} else {
				reqLog.Warn(err.Error(), attrs...)
			}

			if appErr.InnerErr { // after logging, obscure the internal error from public view.
				appErr = &errs.Error{Code: appErr.Code, Message: http.StatusText(appErr.Code)}
			}

			return web.RespondJSON(ctx, w, appErr.Code, appErr)
		}

		return h
	}

	return m
}
