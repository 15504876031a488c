package download

import (
	"context"
	"slices"
	"sync"
)

// Batch is a run in progress. Every Request gets exactly one Outcome,
// in the order the URLs were given.
type Batch struct {
	requests []Request
	tasks    []*task
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	outcomes []Outcome
	finished []bool
}

func newBatch(n int, cancel context.CancelFunc) *Batch {
	return &Batch{
		requests: make([]Request, n),
		tasks:    make([]*task, n),
		cancel:   cancel,
		done:     make(chan struct{}),
		outcomes: make([]Outcome, n),
		finished: make([]bool, n),
	}
}

// Done returns a channel that is closed once every task is terminal.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until the run finishes and returns its outcomes in
// input order.
func (b *Batch) Wait() []Outcome {
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.outcomes)
}

// Cancel stops the run. Tasks that are not yet terminal fail with
// KindCancelled; finished ones keep their outcome.
func (b *Batch) Cancel() {
	b.cancel()
}

// Outcomes returns the outcomes recorded so far, in input order.
func (b *Batch) Outcomes() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Outcome, 0, len(b.outcomes))
	for i, o := range b.outcomes {
		if b.finished[i] {
			out = append(out, o)
		}
	}

	return out
}

// Requests returns the scheduled requests in input order.
func (b *Batch) Requests() []Request {
	return slices.Clone(b.requests)
}

// States returns each task's current state in input order.
func (b *Batch) States() []State {
	states := make([]State, len(b.tasks))
	for i, t := range b.tasks {
		states[i] = t.State()
	}

	return states
}

func (b *Batch) record(i int, o Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outcomes[i] = o
	b.finished[i] = true
}
