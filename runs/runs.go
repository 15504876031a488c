// Package runs keeps the download runs started through fetchd. Each run
// has its own progress tracker so the page can poll per-task state
// while the coordinator works.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/fetcher/download"
	"github.com/adamwoolhether/fetcher/progress"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("run not found")

// State is a run's lifecycle.
type State string

const (
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
	StateFinished   State = "finished"
	StateCancelled  State = "cancelled"
)

// Run is one batch started through the registry.
type Run struct {
	ID      string
	Dir     string
	Created time.Time

	batch     *download.Batch
	tracker   *progress.Tracker
	cancelled atomic.Bool
}

// State derives the run's lifecycle from its batch.
func (r *Run) State() State {
	select {
	case <-r.batch.Done():
		if r.cancelled.Load() {
			return StateCancelled
		}
		return StateFinished
	default:
		if r.cancelled.Load() {
			return StateCancelling
		}
		return StateRunning
	}
}

// Cancel stops the run's unfinished tasks.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
	r.batch.Cancel()
}

// Done is closed once every task is terminal.
func (r *Run) Done() <-chan struct{} { return r.batch.Done() }

// Task is one request with its live progress.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	State       download.State  `json:"state"`
	Transferred int64           `json:"transferred"`
	Total       int64           `json:"total"`
	Status      progress.Status `json:"status"`
	Error       string          `json:"error,omitempty"`
}

// Tasks reports every request in input order.
func (r *Run) Tasks() []Task {
	reqs := r.batch.Requests()
	states := r.batch.States()

	tasks := make([]Task, len(reqs))
	for i, req := range reqs {
		t := Task{
			ID:    req.ID,
			Name:  req.Name,
			URL:   req.URL,
			State: states[i],
			Total: -1,
		}
		if tp, ok := r.tracker.Get(req.ID); ok {
			t.Transferred = tp.Transferred
			t.Total = tp.Total
			t.Status = tp.Status
			t.Error = tp.Err
		}
		tasks[i] = t
	}

	return tasks
}

// Outcomes returns the outcomes recorded so far.
func (r *Run) Outcomes() []download.Outcome {
	return r.batch.Outcomes()
}

// Registry starts runs and keeps them until they are removed.
type Registry struct {
	transport download.Transport
	root      string
	defaults  download.Params
	logger    *slog.Logger
	tracer    trace.Tracer
	storage   download.StorageFunc
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	runs  map[string]*Run
	order []string
}

// NewRegistry returns a Registry fetching through transport. Runs
// write below defaults.Dir, which is also the registry's root.
func NewRegistry(transport download.Transport, defaults download.Params, optFns ...Option) (*Registry, error) {
	opts := options{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("no-op tracer"),
	}
	for _, opt := range optFns {
		opt(&opts)
	}

	if transport == nil {
		return nil, &download.Error{Kind: download.KindConfig, Detail: "transport must not be nil"}
	}
	if defaults.Dir == "" {
		return nil, &download.Error{Kind: download.KindConfig, Detail: "download root must not be empty"}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		transport: transport,
		root:      defaults.Dir,
		defaults:  defaults,
		logger:    opts.logger,
		tracer:    opts.tracer,
		storage:   opts.storage,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[string]*Run),
	}, nil
}

// Start schedules a run. Zero MaxConcurrent and ChunkSize take the
// registry defaults; p.Dir is resolved below the root.
func (reg *Registry) Start(urls []string, p download.Params) (*Run, error) {
	if err := reg.ctx.Err(); err != nil {
		return nil, &download.Error{Kind: download.KindCancelled, Detail: "registry closed", Err: err}
	}

	if p.MaxConcurrent == 0 {
		p.MaxConcurrent = reg.defaults.MaxConcurrent
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = reg.defaults.ChunkSize
	}

	dir, err := reg.resolve(p.Dir)
	if err != nil {
		return nil, err
	}
	p.Dir = dir

	tracker := progress.NewTracker()

	opts := []download.Option{
		download.WithLogger(reg.logger),
		download.WithTracer(reg.tracer),
		download.WithReporter(tracker),
	}
	if reg.storage != nil {
		opts = append(opts, download.WithStorage(reg.storage))
	}

	coord, err := download.New(reg.transport, opts...)
	if err != nil {
		return nil, err
	}

	batch, err := coord.Start(reg.ctx, urls, p)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:      uuid.NewString(),
		Dir:     p.Dir,
		Created: reg.now().UTC(),
		batch:   batch,
		tracker: tracker,
	}

	reg.mu.Lock()
	reg.runs[run.ID] = &run
	reg.order = append(reg.order, run.ID)
	reg.mu.Unlock()

	reg.logger.Info("run registered", "run", run.ID, "count", len(urls), "dir", run.Dir)

	return &run, nil
}

// resolve maps a client supplied sub-directory onto the root. Only
// local relative paths that stay inside the root are accepted.
func (reg *Registry) resolve(sub string) (string, error) {
	if sub == "" || sub == "." {
		return reg.root, nil
	}

	if !filepath.IsLocal(sub) {
		return "", &download.Error{Kind: download.KindConfig, Detail: fmt.Sprintf("dir %q must be a relative path inside the download root", sub)}
	}

	if strings.Contains(reg.root, "://") {
		return "", &download.Error{Kind: download.KindConfig, Detail: "sub-directories are not supported for bucket roots"}
	}

	return filepath.Join(reg.root, sub), nil
}

// Get returns the run with id.
func (reg *Registry) Get(id string) (*Run, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	run, ok := reg.runs[id]
	if !ok {
		return nil, ErrNotFound
	}

	return run, nil
}

// List returns every run, oldest first.
func (reg *Registry) List() []*Run {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]*Run, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.runs[id])
	}

	return out
}

// Remove cancels a running run, or forgets a finished one. It reports
// whether the run was forgotten.
func (reg *Registry) Remove(id string) (bool, error) {
	run, err := reg.Get(id)
	if err != nil {
		return false, err
	}

	if state := run.State(); state == StateRunning || state == StateCancelling {
		run.Cancel()
		reg.logger.Info("run cancelled", "run", id)
		return false, nil
	}

	reg.mu.Lock()
	delete(reg.runs, id)
	reg.order = slices.DeleteFunc(reg.order, func(s string) bool { return s == id })
	reg.mu.Unlock()

	return true, nil
}

// Close cancels every run and waits for them to finish, or for ctx.
func (reg *Registry) Close(ctx context.Context) error {
	runs := reg.List()
	for _, run := range runs {
		if run.State() == StateRunning {
			run.cancelled.Store(true)
		}
	}
	reg.cancel()

	for _, run := range runs {
		select {
		case <-run.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for run %s: %w", run.ID, ctx.Err())
		}
	}

	return nil
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	storage download.StorageFunc
}

// WithLogger sets the logger handed to every run.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithTracer sets the tracer handed to every run.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithStorage overrides how run directories are opened.
func WithStorage(fn download.StorageFunc) Option {
	return func(o *options) {
		o.storage = fn
	}
}
