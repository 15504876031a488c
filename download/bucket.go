package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// BucketStorage writes downloads as objects in a gocloud.dev/blob
// bucket. An object only appears once its writer closes cleanly, so
// abandoning a sink cancels the write instead of deleting anything.
type BucketStorage struct {
	url    string
	bucket *blob.Bucket
	logger *slog.Logger
}

// NewBucketStorage returns storage for bucketURL. The bucket is opened
// by Prepare.
func NewBucketStorage(bucketURL string, logger *slog.Logger) *BucketStorage {
	if logger == nil {
		logger = slog.Default()
	}

	return &BucketStorage{url: bucketURL, logger: logger}
}

// Prepare opens the bucket and checks that it is reachable.
func (s *BucketStorage) Prepare(ctx context.Context) error {
	bucket, err := blob.OpenBucket(ctx, s.url)
	if err != nil {
		return &Error{Kind: KindDirectory, Detail: fmt.Sprintf("opening bucket %s", s.url), Err: err}
	}

	ok, err := bucket.IsAccessible(ctx)
	if err != nil || !ok {
		if cerr := bucket.Close(); cerr != nil {
			s.logger.Error("closing bucket", "error", cerr)
		}
		return &Error{Kind: KindDirectory, Detail: fmt.Sprintf("bucket %s is not accessible", s.url), Err: err}
	}

	s.bucket = bucket

	return nil
}

// Create starts an object write for key name.
func (s *BucketStorage) Create(ctx context.Context, name string) (Sink, error) {
	if s.bucket == nil {
		return nil, &Error{Kind: KindIO, Detail: "bucket not prepared"}
	}

	wctx, cancel := context.WithCancel(ctx)
	w, err := s.bucket.NewWriter(wctx, name, nil)
	if err != nil {
		cancel()
		return nil, &Error{Kind: KindIO, Detail: fmt.Sprintf("opening writer for %s", name), Err: err}
	}

	return &blobSink{
		w:      w,
		cancel: cancel,
		path:   s.objectPath(name),
	}, nil
}

func (s *BucketStorage) Close() error {
	if s.bucket == nil {
		return nil
	}

	return s.bucket.Close()
}

// objectPath renders key as a URL below the bucket, without query
// parameters.
func (s *BucketStorage) objectPath(key string) string {
	u, err := url.Parse(s.url)
	if err != nil {
		return key
	}
	u.RawQuery = ""
	u.Path = path.Join("/", u.Path, key)

	return u.String()
}

type blobSink struct {
	w      *blob.Writer
	cancel context.CancelFunc
	path   string
	state  sinkState
}

func (s *blobSink) Path() string { return s.path }

func (s *blobSink) Write(p []byte) (int, error) {
	if s.state != sinkOpen {
		return 0, &Error{Kind: KindIO, Err: ErrSinkClosed}
	}

	n, err := s.w.Write(p)
	if err != nil {
		return n, &Error{Kind: KindIO, Detail: "writing object", Err: err}
	}

	return n, nil
}

func (s *blobSink) Commit() error {
	if s.state != sinkOpen {
		return &Error{Kind: KindIO, Err: ErrSinkClosed}
	}
	defer s.cancel()

	if err := s.w.Close(); err != nil {
		s.state = sinkAbandoned
		return &Error{Kind: KindIO, Detail: fmt.Sprintf("committing %s", s.path), Err: err}
	}
	s.state = sinkCommitted

	return nil
}

func (s *blobSink) Abandon() error {
	switch s.state {
	case sinkAbandoned:
		return nil
	case sinkCommitted:
		return &Error{Kind: KindIO, Err: ErrSinkClosed}
	}
	s.state = sinkAbandoned

	// Cancelling before Close aborts the write; Close then reports
	// the cancellation, which is the expected result here.
	s.cancel()
	_ = s.w.Close()

	return nil
}
