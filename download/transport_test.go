package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var errConnReset = errors.New("connection reset by peer")

// route describes how fakeTransport answers one URL.
type route struct {
	body    []byte
	total   int64 // advertised size; defaults to len(body), -1 for unknown
	unknown bool
	fail    bool
	failAt  int // with fail, reads error once this many bytes were served
	openErr error
	delay   time.Duration // per read
	block   chan struct{} // reads wait on this before serving
}

// fakeTransport serves canned bodies and tracks how many are open.
type fakeTransport struct {
	mu     sync.Mutex
	routes map[string]route

	open  atomic.Int32
	peak  atomic.Int32
	opens atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: make(map[string]route)}
}

func (f *fakeTransport) add(url string, r route) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.routes[url] = r
}

func (f *fakeTransport) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	f.opens.Add(1)

	f.mu.Lock()
	r, ok := f.routes[rawURL]
	f.mu.Unlock()

	if !ok {
		return nil, 0, fmt.Errorf("no route for %s", rawURL)
	}
	if r.openErr != nil {
		return nil, 0, r.openErr
	}

	cur := f.open.Add(1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}

	total := int64(len(r.body))
	switch {
	case r.unknown:
		total = -1
	case r.total != 0:
		total = r.total
	}

	return &fakeBody{ctx: ctx, r: bytes.NewReader(r.body), route: r, closed: func() { f.open.Add(-1) }}, total, nil
}

type fakeBody struct {
	ctx    context.Context
	r      *bytes.Reader
	route  route
	served int
	closed func()
	once   sync.Once
}

func (b *fakeBody) Read(p []byte) (int, error) {
	if b.route.block != nil {
		select {
		case <-b.route.block:
		case <-b.ctx.Done():
			return 0, b.ctx.Err()
		}
	}
	if b.route.delay > 0 {
		select {
		case <-time.After(b.route.delay):
		case <-b.ctx.Done():
			return 0, b.ctx.Err()
		}
	}

	if b.route.fail && b.served >= b.route.failAt {
		return 0, errConnReset
	}
	if b.route.fail && len(p) > b.route.failAt-b.served {
		p = p[:b.route.failAt-b.served]
	}

	n, err := b.r.Read(p)
	b.served += n

	return n, err
}

func (b *fakeBody) Close() error {
	b.once.Do(b.closed)
	return nil
}
