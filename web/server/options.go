package server

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	listener        net.Listener
	host            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []shutdownFunc
	tlsCertFile     string
	tlsKeyFile      string
}

type shutdownFunc func(ctx context.Context) error

// WithListener serves on an already bound listener instead of
// listening on the host address.
func WithListener(ln net.Listener) Option {
	return Option(func(opts *options) {
		opts.listener = ln
	})
}

// WithHost sets the host address the server listens on. Default is ":8080".
func WithHost(host string) Option {
	return Option(func(opts *options) {
		opts.host = host
	})
}

// WithReadTimeout sets the maximum duration for reading the entire
// request, including the body. Default is 5s.
func WithReadTimeout(d time.Duration) Option {
	return Option(func(opts *options) {
		opts.readTimeout = d
	})
}

// WithWriteTimeout sets the maximum duration before timing out
// writes of the response. Default is 10s.
func WithWriteTimeout(d time.Duration) Option {
	return Option(func(opts *options) {
		opts.writeTimeout = d
	})
}

// WithIdleTimeout sets the maximum amount of time to wait for the
// next request when keep-alives are enabled. Default is 120s.
func WithIdleTimeout(d time.Duration) Option {
	return Option(func(opts *options) {
		opts.idleTimeout = d
	})
}

// WithShutdownTimeout sets the maximum duration [Server.Run] waits for
// in-flight requests to complete once its context is done.
// Default is 20s. Callers of [Server.Shutdown] control the deadline
// via context instead.
func WithShutdownTimeout(d time.Duration) Option {
	return Option(func(opts *options) {
		opts.shutdownTimeout = d
	})
}

// WithLogger sets the logger used for server lifecycle events.
// Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return Option(func(opts *options) {
		opts.logger = log
	})
}

// WithShutdownFunc registers a function to call during graceful shutdown,
// before the HTTP server is stopped. Multiple shutdown functions are
// called in the order they were registered.
func WithShutdownFunc(fn func(ctx context.Context) error) Option {
	return Option(func(opts *options) {
		opts.shutdownFuncs = append(opts.shutdownFuncs, fn)
	})
}

// WithTLS configures the server to use TLS with the given certificate
// and key files. When set, the server calls ListenAndServeTLS instead
// of ListenAndServe.
func WithTLS(certFile, keyFile string) Option {
	return Option(func(opts *options) {
		opts.tlsCertFile = certFile
		opts.tlsKeyFile = keyFile
	})
}
