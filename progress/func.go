package progress

import "sync"

// Func delivers task state to a callback on its own goroutine. Bursts
// of updates for the same task collapse into one call with the latest
// state, so a slow callback never holds up a download.
type Func struct {
	fn      func(TaskProgress)
	tracker *Tracker

	mu    sync.Mutex
	dirty []string
	seen  map[string]bool

	notify chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewFunc starts delivering state changes to fn. Call Close to flush
// and stop.
func NewFunc(fn func(TaskProgress)) *Func {
	f := &Func{
		fn:      fn,
		tracker: NewTracker(),
		seen:    make(map[string]bool),
		notify:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go f.loop()

	return f
}

func (f *Func) Report(u Update) {
	f.tracker.Report(u)
	f.mark(u.TaskID)
}

func (f *Func) Finish(taskID string, err error) {
	f.tracker.Finish(taskID, err)
	f.mark(taskID)
}

// mark queues id for delivery and wakes the loop without blocking.
func (f *Func) mark(id string) {
	f.mu.Lock()
	if !f.seen[id] {
		f.seen[id] = true
		f.dirty = append(f.dirty, id)
	}
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *Func) loop() {
	defer close(f.done)

	for {
		select {
		case <-f.notify:
			f.flush()
		case <-f.quit:
			f.flush()
			return
		}
	}
}

func (f *Func) flush() {
	f.mu.Lock()
	ids := f.dirty
	f.dirty = nil
	clear(f.seen)
	f.mu.Unlock()

	for _, id := range ids {
		if tp, ok := f.tracker.Get(id); ok {
			f.fn(tp)
		}
	}
}

// Close delivers anything pending and stops the callback goroutine.
func (f *Func) Close() {
	f.once.Do(func() { close(f.quit) })
	<-f.done
}
