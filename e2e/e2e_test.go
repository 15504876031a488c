//go:build integration

package e2e_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/adamwoolhether/fetcher/client"
	"github.com/adamwoolhether/fetcher/download"
	"github.com/adamwoolhether/fetcher/runs"
	"github.com/adamwoolhether/fetcher/web"
	"github.com/adamwoolhether/fetcher/web/errs"
	"github.com/adamwoolhether/fetcher/web/middleware"
	"github.com/adamwoolhether/fetcher/web/mux"
)

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

type stack struct {
	api    *url.URL
	origin string
	root   string
	client *client.Client
}

// newStack starts an origin serving files and a fetchd app downloading
// into a temp root, and returns a client for the app's API.
func newStack(t *testing.T) stack {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	origin := http.NewServeMux()
	origin.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload:"+r.PathValue("name"))
	})
	origin.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "index")
	})
	origin.HandleFunc("GET /secret", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "go away", http.StatusForbidden)
	})
	origin.HandleFunc("GET /stall", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		io.WriteString(w, "first bytes")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	originSrv := httptest.NewServer(origin)
	t.Cleanup(originSrv.Close)

	c, err := client.Build(client.WithLogger(log))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	root := t.TempDir()
	p := download.DefaultParams()
	p.Dir = root

	reg, err := runs.NewRegistry(c, p, runs.WithLogger(log))
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}

	app := mux.New(
		mux.WithMiddleware(
			middleware.Logger(log),
			middleware.Errors(log),
			middleware.Panics(),
		),
		mux.WithLogger(log),
	)
	app.Get("/healthz", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.RespondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	runs.Routes(app, reg)

	appSrv := httptest.NewServer(app)
	t.Cleanup(appSrv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.Close(ctx)
	})

	api, err := url.Parse(appSrv.URL)
	if err != nil {
		t.Fatal(err)
	}

	return stack{api: api, origin: originSrv.URL, root: root, client: c}
}

func (s stack) url(path string) *url.URL {
	return client.URL(s.api.Scheme, s.api.Host, path)
}

func (s stack) start(t *testing.T, nr runs.NewRun) runs.Info {
	t.Helper()

	req, err := s.client.Request(t.Context(), s.url("/v1/runs"), http.MethodPost, client.WithPayload(nr))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	var info runs.Info
	if err := s.client.Do(req, http.StatusAccepted, client.WithDestination(&info)); err != nil {
		t.Fatalf("starting run: %v", err)
	}

	return info
}

func (s stack) detail(t *testing.T, id string) runs.Detail {
	t.Helper()

	req, err := s.client.Request(t.Context(), s.url("/v1/runs/"+id), http.MethodGet)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	var d runs.Detail
	if err := s.client.Do(req, http.StatusOK, client.WithDestination(&d)); err != nil {
		t.Fatalf("getting run: %v", err)
	}

	return d
}

// await polls the run until it reaches one of the given states.
func (s stack) await(t *testing.T, id string, states ...runs.State) runs.Detail {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		d := s.detail(t, id)
		if slices.Contains(states, d.State) {
			return d
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s still %q", id, d.State)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestE2E_RunLifecycle(t *testing.T) {
	s := newStack(t)

	info := s.start(t, runs.NewRun{
		URLs: []string{
			s.origin + "/files/report.csv",
			s.origin + "/secret",
			s.origin + "/files/report.csv",
			s.origin + "/",
		},
		Dir:           "nightly",
		MaxConcurrent: 2,
		ChunkSize:     4,
	})

	d := s.await(t, info.ID, runs.StateFinished)

	if d.Summary != (runs.Summary{Succeeded: 3, Failed: 1}) {
		t.Errorf("summary = %+v", d.Summary)
	}

	// Colliding names are suffixed; an empty basename gets a fallback.
	if d.Tasks[0].Name != "report.csv" || d.Tasks[2].Name != "report-1.csv" {
		t.Errorf("names = %q, %q", d.Tasks[0].Name, d.Tasks[2].Name)
	}
	if len(d.Tasks[3].Name) != len("download_12345678") {
		t.Errorf("fallback name = %q", d.Tasks[3].Name)
	}

	if d.Outcomes[1].Kind != download.KindTransport {
		t.Errorf("forbidden outcome kind = %v, want %v", d.Outcomes[1].Kind, download.KindTransport)
	}

	for _, i := range []int{0, 2} {
		got, err := os.ReadFile(filepath.Join(s.root, "nightly", d.Tasks[i].Name))
		if err != nil {
			t.Fatalf("reading %s: %v", d.Tasks[i].Name, err)
		}
		if string(got) != "payload:report.csv" {
			t.Errorf("%s = %q", d.Tasks[i].Name, got)
		}
	}

	if _, err := os.Stat(filepath.Join(s.root, "nightly", "secret")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed download left a file behind: %v", err)
	}
}

func TestE2E_CancelRun(t *testing.T) {
	s := newStack(t)

	info := s.start(t, runs.NewRun{URLs: []string{s.origin + "/stall"}, Dir: "cancel"})

	// Wait until bytes are flowing so cancellation hits mid-stream.
	deadline := time.Now().Add(5 * time.Second)
	for s.detail(t, info.ID).Tasks[0].Transferred == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transfer never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	req, err := s.client.Request(t.Context(), s.url("/v1/runs/"+info.ID), http.MethodDelete)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.client.Do(req, http.StatusNoContent); err != nil {
		t.Fatalf("cancelling run: %v", err)
	}

	d := s.await(t, info.ID, runs.StateCancelled)
	if d.Outcomes[0].Kind != download.KindCancelled {
		t.Errorf("kind = %v, want %v", d.Outcomes[0].Kind, download.KindCancelled)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, "cancel"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("partial output left behind: %v", entries)
	}
}

func TestE2E_FieldValidationErrors(t *testing.T) {
	s := newStack(t)

	payload := runs.NewRun{
		URLs:          []string{s.origin + "/files/a"},
		MaxConcurrent: -1,
		Dir:           "../outside",
	}

	req, err := s.client.Request(t.Context(), s.url("/v1/runs"), http.MethodPost, client.WithPayload(payload))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	err = s.client.Do(req, http.StatusAccepted)

	statusErr, ok := errors.AsType[*client.UnexpectedStatusError](err)
	if !ok {
		t.Fatalf("expected UnexpectedStatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", statusErr.StatusCode, http.StatusUnprocessableEntity)
	}

	var fields errs.FieldErrors
	if err := json.Unmarshal([]byte(statusErr.Body), &fields); err != nil {
		t.Fatalf("parsing field errors: %v\nbody: %s", err, statusErr.Body)
	}
	if _, ok := fields.Fields()["max_concurrent"]; !ok {
		t.Errorf("fields = %v, want max_concurrent", fields.Fields())
	}
}

func TestE2E_NotFound(t *testing.T) {
	s := newStack(t)

	req, err := s.client.Request(t.Context(), s.url("/v1/runs/unknown"), http.MethodGet)
	if err != nil {
		t.Fatal(err)
	}

	err = s.client.Do(req, http.StatusOK)
	if !errors.Is(err, client.ErrUnexpectedStatusCode) {
		t.Fatalf("err = %v, want unexpected status", err)
	}
}
