package runs

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/adamwoolhether/fetcher/download"
	"github.com/adamwoolhether/fetcher/web"
	"github.com/adamwoolhether/fetcher/web/errs"
	"github.com/adamwoolhether/fetcher/web/mux"
)

// NewRun is the body of POST /v1/runs.
type NewRun struct {
	URLs          []string `json:"urls" validate:"required,min=1,max=1000,dive,required"`
	Dir           string   `json:"dir" validate:"omitempty,max=255"`
	MaxConcurrent int      `json:"max_concurrent" validate:"omitempty,gte=1,lte=64"`
	ChunkSize     int      `json:"chunk_size" validate:"omitempty,gte=1,lte=16777216"`
}

// Info describes a run without its tasks.
type Info struct {
	ID      string    `json:"id"`
	State   State     `json:"state"`
	Created time.Time `json:"created"`
	Count   int       `json:"count"`
}

// Detail is a run with live task state.
type Detail struct {
	Info
	Tasks    []Task    `json:"tasks"`
	Outcomes []Outcome `json:"outcomes"`
	Summary  Summary   `json:"summary"`
}

// Outcome is a download.Outcome with its error as text.
type Outcome struct {
	ID    string        `json:"id"`
	URL   string        `json:"url"`
	Path  string        `json:"path,omitempty"`
	Bytes int64         `json:"bytes"`
	Kind  download.Kind `json:"kind"`
	Error string        `json:"error,omitempty"`
}

// Summary counts finished tasks.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

type handlers struct {
	reg *Registry
}

// Routes registers the run endpoints on app under /v1.
func Routes(app *mux.App, reg *Registry) {
	h := handlers{reg: reg}

	v1 := app.Mount("/v1")
	v1.Post("/runs", h.create)
	v1.Get("/runs", h.list)
	v1.Get("/runs/{id}", h.get)
	v1.Delete("/runs/{id}", h.remove)
}

func (h handlers) create(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nr NewRun
	if err := web.Decode(w, r, &nr); err != nil {
		return err
	}

	if nr.Dir != "" && !filepath.IsLocal(nr.Dir) {
		return errs.NewFieldsError("dir", errors.New("must be a relative path inside the download root"))
	}

	_, span := mux.ChildSpan(ctx, "runs.start",
		attribute.Int("runs.count", len(nr.URLs)),
		attribute.String("runs.dir", nr.Dir),
	)
	defer span.End()

	run, err := h.reg.Start(nr.URLs, download.Params{
		MaxConcurrent: nr.MaxConcurrent,
		ChunkSize:     nr.ChunkSize,
		Dir:           nr.Dir,
	})
	if err != nil {
		span.RecordError(err)
		switch download.KindOf(err) {
		case download.KindConfig:
			return errs.New(http.StatusBadRequest, err)
		case download.KindDirectory:
			return errs.NewFieldsError("dir", errors.New("directory cannot be created or is not writable"))
		case download.KindCancelled:
			return errs.New(http.StatusServiceUnavailable, err)
		default:
			return errs.NewInternal(err)
		}
	}
	span.SetAttributes(attribute.String("runs.id", run.ID))

	return web.RespondJSON(ctx, w, http.StatusAccepted, info(run))
}

func (h handlers) list(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	runs := h.reg.List()

	infos := make([]Info, len(runs))
	for i, run := range runs {
		infos[i] = info(run)
	}

	return web.RespondJSON(ctx, w, http.StatusOK, infos)
}

func (h handlers) get(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	run, err := h.lookup(r)
	if err != nil {
		return err
	}

	return web.RespondJSON(ctx, w, http.StatusOK, detail(run))
}

func (h handlers) remove(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := web.Param(r, "id")
	if err != nil {
		return errs.New(http.StatusBadRequest, err)
	}

	if _, err := h.reg.Remove(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.NotFound("run %s not found", id)
		}
		return errs.NewInternal(err)
	}

	return web.RespondJSON(ctx, w, http.StatusNoContent, nil)
}

func (h handlers) lookup(r *http.Request) (*Run, error) {
	id, err := web.Param(r, "id")
	if err != nil {
		return nil, errs.New(http.StatusBadRequest, err)
	}

	run, err := h.reg.Get(id)
	if err != nil {
		return nil, errs.NotFound("run %s not found", id)
	}

	return run, nil
}

func info(run *Run) Info {
	return Info{
		ID:      run.ID,
		State:   run.State(),
		Created: run.Created,
		Count:   len(run.batch.Requests()),
	}
}

func detail(run *Run) Detail {
	// State first: a finished state then always comes with every outcome.
	d := Detail{Info: info(run), Tasks: run.Tasks()}

	outs := run.Outcomes()
	d.Outcomes = make([]Outcome, len(outs))
	for i, o := range outs {
		d.Outcomes[i] = Outcome{
			ID:    o.ID,
			URL:   o.URL,
			Path:  o.Path,
			Bytes: o.Bytes,
			Kind:  o.Kind,
			Error: o.Message(),
		}
	}

	d.Summary.Succeeded, d.Summary.Failed = download.Summarize(outs)
	d.Summary.Pending = d.Count - len(outs)

	return d
}
