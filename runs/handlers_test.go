package runs

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adamwoolhether/fetcher/web/errs"
	"github.com/adamwoolhether/fetcher/web/middleware"
	"github.com/adamwoolhether/fetcher/web/mux"
)

func newApp(t *testing.T) (*mux.App, *Registry) {
	t.Helper()

	reg, _ := newRegistry(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	app := mux.New(
		mux.WithLogger(log),
		mux.WithMiddleware(middleware.Logger(log), middleware.Errors(log), middleware.Panics()),
	)
	Routes(app, reg)

	return app, reg
}

func call(t *testing.T, app http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(method, target, r))

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}

	return v
}

func TestHandlers_Lifecycle(t *testing.T) {
	origin := newOrigin(t)
	app, _ := newApp(t)

	w := call(t, app, http.MethodPost, "/v1/runs", NewRun{
		URLs:          []string{origin.URL + "/files/a.txt", origin.URL + "/missing"},
		Dir:           "web",
		MaxConcurrent: 2,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d, body %s", w.Code, w.Body)
	}
	created := decode[Info](t, w)
	if created.ID == "" || created.Count != 2 {
		t.Fatalf("created = %+v", created)
	}

	var d Detail
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = call(t, app, http.MethodGet, "/v1/runs/"+created.ID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET status = %d, body %s", w.Code, w.Body)
		}
		d = decode[Detail](t, w)
		if d.State == StateFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run still %q", d.State)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if d.Summary != (Summary{Succeeded: 1, Failed: 1}) {
		t.Errorf("summary = %+v", d.Summary)
	}
	if len(d.Tasks) != 2 || d.Tasks[0].Name != "a.txt" {
		t.Errorf("tasks = %+v", d.Tasks)
	}
	if d.Outcomes[1].Error == "" || d.Outcomes[1].Kind.String() != "TransportError" {
		t.Errorf("failed outcome = %+v", d.Outcomes[1])
	}

	w = call(t, app, http.MethodGet, "/v1/runs", nil)
	list := decode[[]Info](t, w)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	// Finished runs are forgotten.
	if w = call(t, app, http.MethodDelete, "/v1/runs/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if w = call(t, app, http.MethodGet, "/v1/runs/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d", w.Code)
	}
}

func TestHandlers_DeleteCancels(t *testing.T) {
	origin := newOrigin(t)
	app, reg := newApp(t)

	w := call(t, app, http.MethodPost, "/v1/runs", NewRun{URLs: []string{origin.URL + "/slow/x"}})
	id := decode[Info](t, w).ID

	if w = call(t, app, http.MethodDelete, "/v1/runs/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", w.Code)
	}

	run, err := reg.Get(id)
	if err != nil {
		t.Fatalf("cancelled run was forgotten: %v", err)
	}
	waitDone(t, run)

	if got := run.State(); got != StateCancelled {
		t.Errorf("state = %q, want %q", got, StateCancelled)
	}
}

func TestHandlers_Errors(t *testing.T) {
	app, _ := newApp(t)

	tests := map[string]struct {
		method string
		target string
		body   any
		code   int
		field  string
	}{
		"no urls": {
			method: http.MethodPost, target: "/v1/runs",
			body: NewRun{}, code: http.StatusUnprocessableEntity, field: "urls",
		},
		"blank url": {
			method: http.MethodPost, target: "/v1/runs",
			body: NewRun{URLs: []string{""}}, code: http.StatusUnprocessableEntity, field: "urls[0]",
		},
		"escaping dir": {
			method: http.MethodPost, target: "/v1/runs",
			body: NewRun{URLs: []string{"http://x/y"}, Dir: "../../etc"}, code: http.StatusUnprocessableEntity, field: "dir",
		},
		"absolute dir": {
			method: http.MethodPost, target: "/v1/runs",
			body: NewRun{URLs: []string{"http://x/y"}, Dir: "/etc"}, code: http.StatusUnprocessableEntity, field: "dir",
		},
		"too many workers": {
			method: http.MethodPost, target: "/v1/runs",
			body: NewRun{URLs: []string{"http://x/y"}, MaxConcurrent: 1000}, code: http.StatusUnprocessableEntity, field: "max_concurrent",
		},
		"unknown field": {
			method: http.MethodPost, target: "/v1/runs",
			body: map[string]any{"urls": []string{"http://x/y"}, "workers": 3}, code: http.StatusBadRequest,
		},
		"unknown run": {
			method: http.MethodGet, target: "/v1/runs/nope", code: http.StatusNotFound,
		},
		"delete unknown run": {
			method: http.MethodDelete, target: "/v1/runs/nope", code: http.StatusNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			w := call(t, app, tc.method, tc.target, tc.body)
			if w.Code != tc.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.code, w.Body)
			}

			if tc.field == "" {
				return
			}
			fields := decode[errs.FieldErrors](t, w)
			if _, ok := fields.Fields()[tc.field]; !ok {
				t.Errorf("fields = %v, want %q", fields.Fields(), tc.field)
			}
		})
	}
}

func TestHandlers_UnusableDir(t *testing.T) {
	reg, root := newRegistry(t)
	if err := os.WriteFile(filepath.Join(root, "taken"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := mux.New(mux.WithLogger(log), mux.WithMiddleware(middleware.Errors(log)))
	Routes(app, reg)

	w := call(t, app, http.MethodPost, "/v1/runs", NewRun{URLs: []string{"http://x/y"}, Dir: "taken/sub"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusUnprocessableEntity, w.Body)
	}

	fields := decode[errs.FieldErrors](t, w)
	if _, ok := fields.Fields()["dir"]; !ok {
		t.Errorf("fields = %v, want %q", fields.Fields(), "dir")
	}
	if strings.Contains(w.Body.String(), root) {
		t.Errorf("response leaks the download root: %s", w.Body)
	}
	if n := len(reg.List()); n != 0 {
		t.Errorf("expected no runs registered, got %d", n)
	}
}

func TestStatic(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := mux.New(mux.WithLogger(log), mux.WithStaticFS(Static(), "/static/"))

	w := call(t, app, http.MethodGet, "/static/index.html", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/v1/runs") {
		t.Error("page does not talk to the run endpoints")
	}
}
