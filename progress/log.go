package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Log writes progress as slog lines, at most once per interval for
// each task, plus one line when the task finishes.
type Log struct {
	logger   *slog.Logger
	interval time.Duration

	mu    sync.Mutex
	tasks map[string]*logTask
}

type logTask struct {
	limit   *rate.Sometimes
	started time.Time
	last    Update
}

// NewLog returns a Log reporter. A non-positive interval defaults to
// one second.
func NewLog(logger *slog.Logger, interval time.Duration) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &Log{
		logger:   logger,
		interval: interval,
		tasks:    make(map[string]*logTask),
	}
}

func (l *Log) Report(u Update) {
	l.mu.Lock()
	lt, ok := l.tasks[u.TaskID]
	if !ok {
		lt = &logTask{limit: &rate.Sometimes{Interval: l.interval}, started: time.Now()}
		l.tasks[u.TaskID] = lt
	}
	if u.Transferred >= lt.last.Transferred {
		lt.last = u
	}
	l.mu.Unlock()

	lt.limit.Do(func() {
		l.logger.Info("downloading", l.attrs(u, lt.started)...)
	})
}

func (l *Log) Finish(taskID string, err error) {
	l.mu.Lock()
	lt, ok := l.tasks[taskID]
	delete(l.tasks, taskID)
	l.mu.Unlock()

	if !ok {
		lt = &logTask{started: time.Now(), last: Update{TaskID: taskID, Total: -1}}
	}

	if err != nil {
		l.logger.Warn("download failed", append(l.attrs(lt.last, lt.started), "error", err)...)
		return
	}
	l.logger.Info("download complete", l.attrs(lt.last, lt.started)...)
}

func (l *Log) attrs(u Update, started time.Time) []any {
	elapsed := time.Since(started)

	attrs := []any{
		"task", u.TaskID,
		"name", u.Name,
		"transferred", u.Transferred,
		"elapsed", elapsed.Round(time.Millisecond),
		"speed", speed(u.Transferred, elapsed),
	}
	if u.Known() {
		attrs = append(attrs,
			"total", u.Total,
			"progress", fmt.Sprintf("%.1f%%", u.Fraction()*100),
		)
	}

	return attrs
}
