package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "contents of "+r.PathValue("name"))
	})
	mux.HandleFunc("GET /missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestRun(t *testing.T) {
	srv := newServer(t)
	dir := filepath.Join(t.TempDir(), "out")

	tests := map[string]struct {
		args     []string
		code     int
		stdout   []string
		stderr   string
		files    map[string]string
		noOutput bool
	}{
		"all succeed": {
			args:   []string{"--progress", "none", "--download-dir", dir, srv.URL + "/files/a.txt", srv.URL + "/files/b.txt"},
			code:   exitOK,
			stdout: []string{"2 successful, 0 failed"},
			files: map[string]string{
				"a.txt": "contents of a.txt",
				"b.txt": "contents of b.txt",
			},
		},
		"interspersed flags and failure": {
			args:   []string{srv.URL + "/files/c.txt", "--progress=none", srv.URL + "/missing", "--download-dir", dir, "--max-concurrent", "1"},
			code:   exitFailed,
			stdout: []string{"1 successful, 1 failed", "TransportError"},
			files:  map[string]string{"c.txt": "contents of c.txt"},
		},
		"double dash": {
			args:   []string{"--progress", "none", "--download-dir", dir, "--", srv.URL + "/files/d.txt"},
			code:   exitOK,
			stdout: []string{"1 successful, 0 failed"},
			files:  map[string]string{"d.txt": "contents of d.txt"},
		},
		"no urls": {
			args:     []string{"--progress", "none"},
			code:     exitUsage,
			stderr:   "at least one URL",
			noOutput: true,
		},
		"zero concurrency": {
			args:     []string{"--max-concurrent", "0", srv.URL + "/files/a.txt"},
			code:     exitUsage,
			stderr:   "max_concurrent",
			noOutput: true,
		},
		"zero chunk size": {
			args:     []string{"--chunk-size=0", srv.URL + "/files/a.txt"},
			code:     exitUsage,
			stderr:   "chunk_size",
			noOutput: true,
		},
		"oversized chunk size": {
			args:     []string{"--chunk-size", "10000000000", srv.URL + "/files/a.txt"},
			code:     exitUsage,
			stderr:   "chunk_size",
			noOutput: true,
		},
		"unknown flag": {
			args:     []string{"--bogus", srv.URL + "/files/a.txt"},
			code:     exitUsage,
			stderr:   "bogus",
			noOutput: true,
		},
		"help": {
			args:     []string{"-h"},
			code:     exitOK,
			stderr:   "usage: fetch",
			noOutput: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer

			code := run(t.Context(), tc.args, &stdout, &stderr)
			if code != tc.code {
				t.Fatalf("exit = %d, want %d\nstdout:\n%s\nstderr:\n%s", code, tc.code, &stdout, &stderr)
			}

			for _, want := range tc.stdout {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("stdout missing %q:\n%s", want, &stdout)
				}
			}
			if tc.noOutput && stdout.Len() != 0 {
				t.Errorf("stdout = %q, want empty", &stdout)
			}
			if !strings.Contains(stderr.String(), tc.stderr) {
				t.Errorf("stderr missing %q:\n%s", tc.stderr, &stderr)
			}

			for name, want := range tc.files {
				got, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil {
					t.Fatalf("read %s: %v", name, err)
				}
				if string(got) != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestRun_DirectoryError(t *testing.T) {
	srv := newServer(t)

	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(t.Context(), []string{"--progress", "none", "--download-dir", blocker, srv.URL + "/files/a.txt"}, &stdout, &stderr)
	if code != exitDirectory {
		t.Fatalf("exit = %d, want %d\nstderr:\n%s", code, exitDirectory, &stderr)
	}
}

func TestRun_Interrupted(t *testing.T) {
	srv := newServer(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"--progress", "none", "--download-dir", t.TempDir(), srv.URL + "/files/a.txt"}, &stdout, &stderr)
	if code != exitInterrupted {
		t.Fatalf("exit = %d, want %d\nstderr:\n%s", code, exitInterrupted, &stderr)
	}

	// Outcomes are still reported.
	if !strings.Contains(stdout.String(), "0 successful, 1 failed") {
		t.Errorf("stdout = %q", &stdout)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()

	cfg := filepath.Join(t.TempDir(), "fetch.yaml")
	yaml := "download_dir: " + filepath.Join(dir, "from-file") + "\nprogress: none\n"
	if err := os.WriteFile(cfg, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(t.Context(), []string{"--config", cfg, srv.URL + "/files/e.txt"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d, want %d\nstderr:\n%s", code, exitOK, &stderr)
	}

	if _, err := os.Stat(filepath.Join(dir, "from-file", "e.txt")); err != nil {
		t.Fatalf("file not written to configured dir: %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]struct {
		args []string
		urls []string
		max  int
	}{
		"flags first":  {args: []string{"--max-concurrent", "2", "u1", "u2"}, urls: []string{"u1", "u2"}, max: 2},
		"flags last":   {args: []string{"u1", "u2", "--max-concurrent=3"}, urls: []string{"u1", "u2"}, max: 3},
		"interspersed": {args: []string{"u1", "--max-concurrent", "4", "u2"}, urls: []string{"u1", "u2"}, max: 4},
		"double dash":  {args: []string{"u1", "--", "--max-concurrent", "u2"}, urls: []string{"u1", "--max-concurrent", "u2"}, max: 5},
		"none":         {args: nil, urls: nil, max: 5},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			max := fs.Int("max-concurrent", 5, "")

			urls, err := parse(fs, tc.args)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}

			if diff := cmp.Diff(tc.urls, urls); diff != "" {
				t.Errorf("urls mismatch (-want +got):\n%s", diff)
			}
			if *max != tc.max {
				t.Errorf("max-concurrent = %d, want %d", *max, tc.max)
			}
		})
	}
}
