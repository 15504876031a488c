package progress

import (
	"sync"
	"time"
)

// Status is a task's lifecycle as seen by a reporter.
type Status string

const (
	StatusActive    Status = "downloading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskProgress is the aggregated state of one task.
type TaskProgress struct {
	TaskID      string    `json:"id"`
	Name        string    `json:"name"`
	Transferred int64     `json:"transferred"`
	Total       int64     `json:"total"`
	Status      Status    `json:"status"`
	Err         string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fraction returns completion in [0, 1], or 0 when the total is unknown.
func (tp TaskProgress) Fraction() float64 {
	return Update{Transferred: tp.Transferred, Total: tp.Total}.Fraction()
}

// Summary counts tasks by status.
type Summary struct {
	Active      int   `json:"active"`
	Completed   int   `json:"completed"`
	Failed      int   `json:"failed"`
	Transferred int64 `json:"transferred"`
}

// Tracker keeps the latest state of every task it has heard from, in
// first-seen order. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	order []string
	tasks map[string]*TaskProgress
	now   func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[string]*TaskProgress),
		now:   time.Now,
	}
}

// Report records u. Samples older than what the tracker already holds
// are ignored so byte counts never go backwards.
func (t *Tracker) Report(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp := t.get(u.TaskID)
	if u.Name != "" {
		tp.Name = u.Name
	}
	if u.Transferred >= tp.Transferred {
		tp.Transferred = u.Transferred
		tp.Total = u.Total
	}
	tp.UpdatedAt = t.now()
}

// Finish marks the task completed, or failed when err is non-nil.
func (t *Tracker) Finish(taskID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp := t.get(taskID)
	tp.Status = StatusCompleted
	if err != nil {
		tp.Status = StatusFailed
		tp.Err = err.Error()
	}
	tp.UpdatedAt = t.now()
}

// get returns the entry for id, creating it. Callers hold t.mu.
func (t *Tracker) get(id string) *TaskProgress {
	tp, ok := t.tasks[id]
	if !ok {
		now := t.now()
		tp = &TaskProgress{TaskID: id, Total: -1, Status: StatusActive, StartedAt: now, UpdatedAt: now}
		t.tasks[id] = tp
		t.order = append(t.order, id)
	}

	return tp
}

// Get returns a copy of the task's state.
func (t *Tracker) Get(taskID string) (TaskProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp, ok := t.tasks[taskID]
	if !ok {
		return TaskProgress{}, false
	}

	return *tp, true
}

// Snapshot copies every task's state.
func (t *Tracker) Snapshot() []TaskProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TaskProgress, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tasks[id])
	}

	return out
}

// Summary counts tasks by status.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	for _, tp := range t.tasks {
		switch tp.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		default:
			s.Active++
		}
		s.Transferred += tp.Transferred
	}

	return s
}
