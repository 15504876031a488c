package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/adamwoolhether/fetcher/progress"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DefaultMaxConcurrent = 5
	DefaultChunkSize     = 8192
	DefaultDir           = "downloads"
)

// Transport opens a URL for streaming. total is the advertised body
// size, or -1 when unknown.
type Transport interface {
	Open(ctx context.Context, rawURL string) (body io.ReadCloser, total int64, err error)
}

// Params bounds one run.
type Params struct {
	MaxConcurrent int
	ChunkSize     int
	// Dir is a local directory or a bucket URL such as mem:// or
	// file:///srv/downloads.
	Dir string
}

// DefaultParams returns the settings used when nothing is configured.
func DefaultParams() Params {
	return Params{
		MaxConcurrent: DefaultMaxConcurrent,
		ChunkSize:     DefaultChunkSize,
		Dir:           DefaultDir,
	}
}

func (p Params) validate() error {
	switch {
	case p.MaxConcurrent < 1:
		return &Error{Kind: KindConfig, Detail: fmt.Sprintf("max concurrent must be at least 1, got %d", p.MaxConcurrent)}
	case p.ChunkSize < 1:
		return &Error{Kind: KindConfig, Detail: fmt.Sprintf("chunk size must be at least 1, got %d", p.ChunkSize)}
	case p.Dir == "":
		return &Error{Kind: KindConfig, Detail: "download directory must not be empty"}
	}

	return nil
}

// Coordinator runs batches of downloads with bounded concurrency.
type Coordinator struct {
	transport Transport
	storage   StorageFunc
	reporter  progress.Reporter
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New returns a Coordinator fetching through transport.
func New(transport Transport, optFns ...Option) (*Coordinator, error) {
	if transport == nil {
		return nil, &Error{Kind: KindConfig, Detail: "transport must not be nil"}
	}

	opts := options{
		storage:  OpenStorage,
		reporter: progress.Nop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		logger:   slog.Default(),
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, &Error{Kind: KindConfig, Detail: "applying option", Err: err}
		}
	}

	return &Coordinator{
		transport: transport,
		storage:   opts.storage,
		reporter:  opts.reporter,
		tracer:    opts.tracer,
		logger:    opts.logger,
	}, nil
}

// Run downloads every URL and returns one Outcome per URL in input
// order. Invalid params and an unusable destination fail the whole run
// before any transfer starts; every other failure is confined to its
// Outcome.
func (c *Coordinator) Run(ctx context.Context, urls []string, p Params) ([]Outcome, error) {
	b, err := c.Start(ctx, urls, p)
	if err != nil {
		return nil, err
	}

	return b.Wait(), nil
}

// Start schedules the run and returns without waiting for it.
func (c *Coordinator) Start(ctx context.Context, urls []string, p Params) (*Batch, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if len(urls) == 0 {
		b := newBatch(0, func() {})
		close(b.done)
		return b, nil
	}

	limiter, err := NewLimiter(p.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ctx, span := c.tracer.Start(ctx, "download.run", trace.WithAttributes(
		attribute.Int("download.count", len(urls)),
		attribute.Int("download.max_concurrent", p.MaxConcurrent),
		attribute.String("download.dir", p.Dir),
	))

	storage, err := c.storage(ctx, p.Dir, c.logger)
	if err != nil {
		err = wrap(KindDirectory, "opening "+p.Dir, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, KindDirectory.String())
		span.End()
		cancel()
		return nil, err
	}

	b := newBatch(len(urls), cancel)

	names := newNameTable()
	for i, u := range urls {
		b.requests[i] = Request{
			ID:        uuid.NewString(),
			URL:       u,
			Name:      names.claim(u),
			ChunkSize: p.ChunkSize,
		}
		b.tasks[i] = &task{
			req:       b.requests[i],
			transport: c.transport,
			storage:   storage,
			reporter:  c.reporter,
			tracer:    c.tracer,
			logger:    c.logger,
		}
	}

	c.logger.Info("run started", "count", len(urls), "max_concurrent", p.MaxConcurrent, "chunk_size", p.ChunkSize, "dir", p.Dir)
	start := time.Now()

	var wg sync.WaitGroup
	for i, t := range b.tasks {
		wg.Go(func() {
			b.record(i, t.runWithPermit(ctx, limiter))
		})
	}

	go func() {
		defer close(b.done)

		wg.Wait()
		cancelled := ctx.Err() != nil
		cancel()

		if err := storage.Close(); err != nil {
			c.logger.Error("closing storage", "dir", p.Dir, "error", err)
		}

		succeeded, failed := Summarize(b.outcomes)
		span.SetAttributes(
			attribute.Int("download.succeeded", succeeded),
			attribute.Int("download.failed", failed),
		)
		if cancelled {
			span.SetStatus(codes.Error, KindCancelled.String())
		}
		span.End()

		c.logger.Info("run finished",
			"succeeded", succeeded,
			"failed", failed,
			"cancelled", cancelled,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}()

	return b, nil
}

// Option configures a Coordinator.
type Option func(*options) error

type options struct {
	storage  StorageFunc
	reporter progress.Reporter
	tracer   trace.Tracer
	logger   *slog.Logger
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithReporter sets where progress goes. Default discards it.
func WithReporter(r progress.Reporter) Option {
	return func(opts *options) error {
		if r == nil {
			return errors.New("reporter must not be nil")
		}
		opts.reporter = r
		return nil
	}
}

// WithTracer sets the tracer for run and task spans. Default is a
// no-op tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		opts.tracer = tracer
		return nil
	}
}

// WithStorage overrides how Params.Dir is resolved. Default is
// OpenStorage.
func WithStorage(fn StorageFunc) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("storage func must not be nil")
		}
		opts.storage = fn
		return nil
	}
}
