package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/adamwoolhether/fetcher/progress"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is where a task is in its lifecycle.
type State int32

const (
	StatePending State = iota
	StateConnecting
	StateStreaming
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for c := StatePending; c <= StateFailed; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}

	return fmt.Errorf("unknown task state %q", text)
}

// Terminal reports whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// task moves one Request from Pending to a terminal state.
type task struct {
	req       Request
	transport Transport
	storage   Storage
	reporter  progress.Reporter
	tracer    trace.Tracer
	logger    *slog.Logger

	state atomic.Int32
}

func (t *task) State() State { return State(t.state.Load()) }

func (t *task) setState(s State) { t.state.Store(int32(s)) }

// runWithPermit holds a limiter permit for the whole transfer. A task
// cancelled while waiting for its permit fails without connecting.
func (t *task) runWithPermit(ctx context.Context, l *Limiter) Outcome {
	var out Outcome
	if err := l.Do(ctx, func() { out = t.run(ctx) }); err != nil {
		out = t.fail(err)
		// Reporters have not seen this task yet.
		t.report(0, -1)
		progress.Finish(t.reporter, t.req.ID, out.Err)
	}

	return out
}

func (t *task) run(ctx context.Context) (out Outcome) {
	ctx, span := t.tracer.Start(ctx, "download.task", trace.WithAttributes(
		attribute.String("download.id", t.req.ID),
		attribute.String("download.url", t.req.URL),
		attribute.String("download.name", t.req.Name),
	))
	defer func() {
		span.SetAttributes(attribute.Int64("download.bytes", out.Bytes))
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Kind.String())
		}
		span.End()

		progress.Finish(t.reporter, t.req.ID, out.Err)
	}()

	path, n, err := t.transfer(ctx)
	if err != nil {
		return t.fail(err)
	}

	t.setState(StateCompleted)
	t.logger.Debug("download complete", "url", t.req.URL, "path", path, "bytes", n)

	return Outcome{ID: t.req.ID, URL: t.req.URL, Path: path, Bytes: n}
}

// transfer streams the body into a sink. The sink is abandoned on
// every path that does not reach a successful Commit.
func (t *task) transfer(ctx context.Context) (string, int64, error) {
	t.setState(StateConnecting)

	body, total, err := t.transport.Open(ctx, t.req.URL)
	if err != nil {
		return "", 0, classify(ctx, KindTransport, "opening "+t.req.URL, err)
	}
	defer func() {
		if err := body.Close(); err != nil {
			t.logger.Debug("closing response body", "url", t.req.URL, "error", err)
		}
	}()

	sink, err := t.storage.Create(ctx, t.req.Name)
	if err != nil {
		return "", 0, classify(ctx, KindIO, "creating "+t.req.Name, err)
	}

	var committed bool
	defer func() {
		if committed {
			return
		}
		if err := sink.Abandon(); err != nil {
			t.logger.Error("abandoning partial download", "path", sink.Path(), "error", err)
		}
	}()

	t.setState(StateStreaming)
	t.report(0, total)

	r := &contextReader{ctx: ctx, r: body}
	buf := make([]byte, t.req.ChunkSize)

	var n int64
	for {
		m, rerr := r.Read(buf)
		if m > 0 {
			if _, err := sink.Write(buf[:m]); err != nil {
				return "", n, classify(ctx, KindIO, "writing "+t.req.Name, err)
			}
			n += int64(m)
			t.report(n, total)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return "", n, classify(ctx, KindTransport, "reading body", rerr)
		}
	}

	t.setState(StateFinalizing)

	if total >= 0 && n != total {
		return "", n, &Error{
			Kind:   KindTransport,
			Detail: fmt.Sprintf("expected %d bytes, got %d", total, n),
			Err:    ErrContentLengthMismatch,
		}
	}

	if err := sink.Commit(); err != nil {
		return "", n, classify(ctx, KindIO, "committing "+t.req.Name, err)
	}
	committed = true

	return sink.Path(), n, nil
}

func (t *task) report(transferred, total int64) {
	t.reporter.Report(progress.Update{
		TaskID:      t.req.ID,
		Name:        t.req.Name,
		Transferred: transferred,
		Total:       total,
	})
}

func (t *task) fail(err error) Outcome {
	t.setState(StateFailed)

	kind := KindOf(err)
	t.logger.Debug("download failed", "url", t.req.URL, "kind", kind, "error", err)

	return Outcome{ID: t.req.ID, URL: t.req.URL, Kind: kind, Err: err}
}

// classify attributes err to kind, unless the run itself was
// cancelled, in which case every failure is a cancellation.
func classify(ctx context.Context, kind Kind, detail string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			return &Error{Kind: KindCancelled, Detail: detail, Err: err}
		}
		return &Error{Kind: KindCancelled, Detail: detail, Err: errors.Join(ctxErr, err)}
	}

	return wrap(kind, detail, err)
}

// contextReader stops a transfer between reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
