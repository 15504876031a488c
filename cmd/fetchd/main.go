// Command fetchd serves a page for starting download runs and watching
// their progress.
//
//	fetchd [--addr :8080] [--download-dir downloads] [--config fetch.yaml]
//
// Runs write below the download directory. SIGINT or SIGTERM cancels
// every run and stops the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fetcher/client"
	"github.com/adamwoolhether/fetcher/config"
	"github.com/adamwoolhether/fetcher/runs"
	"github.com/adamwoolhether/fetcher/web"
	"github.com/adamwoolhether/fetcher/web/middleware"
	"github.com/adamwoolhether/fetcher/web/mux"
	"github.com/adamwoolhether/fetcher/web/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()

	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("fetchd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "YAML config file")
	flags := config.Bind(fs)
	config.BindServer(fs, flags)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "fetchd: unexpected arguments %q\n", fs.Args())
		return 2
	}

	cfg, err := config.Load(*configPath, ".env")
	if err == nil {
		err = cfg.Merge(fs, flags)
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(stderr, "fetchd:", err)
		return 2
	}

	log := cfg.Log.NewLogger(stderr)

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("fetchd stopped", "error", err)
		return 1
	}

	return 0
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	tracer := otel.Tracer("github.com/adamwoolhether/fetcher/cmd/fetchd")

	c, err := client.Build(append(cfg.ClientOptions(),
		client.WithLogger(log),
		client.WithTracer(tracer),
	)...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	reg, err := runs.NewRegistry(c, cfg.Params(),
		runs.WithLogger(log),
		runs.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}

	srv := server.New(newApp(log, tracer, reg),
		append(cfg.Server.Options(),
			server.WithLogger(log),
			server.WithShutdownFunc(reg.Close),
		)...,
	)

	return srv.Run(ctx)
}

func newApp(log *slog.Logger, tracer trace.Tracer, reg *runs.Registry) *mux.App {
	app := mux.New(
		mux.WithLogger(log),
		mux.WithTracer(tracer),
		mux.WithMiddleware(
			middleware.Logger(log),
			middleware.Errors(log),
			middleware.Panics(),
		),
		mux.WithStaticFS(runs.Static(), "/static/"),
	)

	app.Get("/{$}", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Redirect(w, r, "/static/index.html", http.StatusFound)
	})
	app.Get("/healthz", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.RespondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	})

	runs.Routes(app, reg)

	return app
}
