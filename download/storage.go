package download

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Storage is the destination of one run's downloads.
type Storage interface {
	// Prepare makes the destination ready for writes, creating it
	// when needed.
	Prepare(ctx context.Context) error

	// Create opens a sink for the named destination object.
	Create(ctx context.Context, name string) (Sink, error)

	Close() error
}

// Sink is scoped write access to a single destination. Exactly one of
// Commit or Abandon is called for each Sink; until Commit succeeds the
// written bytes are not visible at Path.
type Sink interface {
	io.Writer

	// Path is where the data lives once committed.
	Path() string

	// Commit flushes, closes and publishes the data at Path.
	Commit() error

	// Abandon closes the sink and discards everything written. It is
	// idempotent and does not fail when nothing was written.
	Abandon() error
}

// StorageFunc resolves the destination named by dir.
type StorageFunc func(ctx context.Context, dir string, logger *slog.Logger) (Storage, error)

// OpenStorage returns bucket storage when dir is a URL with a scheme
// (mem://, file:///srv/dl, s3://bucket, ...) and a local directory
// otherwise. Prepare is called before returning.
func OpenStorage(ctx context.Context, dir string, logger *slog.Logger) (Storage, error) {
	var s Storage
	if strings.Contains(dir, "://") {
		s = NewBucketStorage(dir, logger)
	} else {
		s = NewDirStorage(dir, logger)
	}

	if err := s.Prepare(ctx); err != nil {
		return nil, err
	}

	return s, nil
}
