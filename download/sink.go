package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DirStorage writes downloads into a local directory. Data streams to
// a hidden temp file next to the destination and is renamed into
// place on commit.
type DirStorage struct {
	dir    string
	logger *slog.Logger
}

// NewDirStorage returns storage rooted at dir.
func NewDirStorage(dir string, logger *slog.Logger) *DirStorage {
	if logger == nil {
		logger = slog.Default()
	}

	return &DirStorage{dir: dir, logger: logger}
}

// Prepare creates the directory if absent and checks it accepts writes.
func (s *DirStorage) Prepare(ctx context.Context) error {
	if s.dir == "" {
		return &Error{Kind: KindDirectory, Detail: "download directory must not be empty"}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &Error{Kind: KindDirectory, Detail: fmt.Sprintf("creating %s", s.dir), Err: err}
	}

	probe, err := os.CreateTemp(s.dir, ".fetch-probe-*")
	if err != nil {
		return &Error{Kind: KindDirectory, Detail: fmt.Sprintf("%s is not writable", s.dir), Err: err}
	}
	if err := probe.Close(); err != nil {
		s.logger.Error("closing directory probe", "error", err)
	}
	if err := os.Remove(probe.Name()); err != nil {
		s.logger.Error("removing directory probe", "error", err)
	}

	return nil
}

// Create opens a temp file for name inside the directory. The temp
// name does not depend on name, so any name the directory accepts can
// be written.
func (s *DirStorage) Create(ctx context.Context, name string) (Sink, error) {
	file, err := os.CreateTemp(s.dir, ".fetch-*.part")
	if err != nil {
		return nil, &Error{Kind: KindIO, Detail: "creating temp file", Err: err}
	}

	return &fileSink{
		file:   file,
		dest:   filepath.Join(s.dir, name),
		logger: s.logger,
	}, nil
}

func (s *DirStorage) Close() error { return nil }

type sinkState int

const (
	sinkOpen sinkState = iota
	sinkCommitted
	sinkAbandoned
)

type fileSink struct {
	file   *os.File
	dest   string
	logger *slog.Logger
	state  sinkState
}

func (s *fileSink) Path() string { return s.dest }

func (s *fileSink) Write(p []byte) (int, error) {
	if s.state != sinkOpen {
		return 0, &Error{Kind: KindIO, Err: ErrSinkClosed}
	}

	n, err := s.file.Write(p)
	if err != nil {
		return n, &Error{Kind: KindIO, Detail: "writing temp file", Err: err}
	}

	return n, nil
}

func (s *fileSink) Commit() error {
	if s.state != sinkOpen {
		return &Error{Kind: KindIO, Err: ErrSinkClosed}
	}

	if err := s.publish(); err != nil {
		s.discard()
		return &Error{Kind: KindIO, Detail: fmt.Sprintf("committing %s", s.dest), Err: err}
	}
	s.state = sinkCommitted

	return nil
}

func (s *fileSink) publish() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(s.file.Name(), s.dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

func (s *fileSink) Abandon() error {
	switch s.state {
	case sinkAbandoned:
		return nil
	case sinkCommitted:
		return &Error{Kind: KindIO, Err: ErrSinkClosed}
	}

	return s.discard()
}

// discard closes and removes the temp file, tolerating both already
// having happened.
func (s *fileSink) discard() error {
	s.state = sinkAbandoned

	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Error("closing temp file", "path", s.file.Name(), "error", err)
	}

	if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Kind: KindIO, Detail: "removing temp file", Err: err}
	}

	return nil
}
