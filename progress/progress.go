package progress

import (
	"fmt"
	"time"
)

// Update is a point-in-time progress sample for one task. Total is
// negative when the size is unknown.
type Update struct {
	TaskID      string
	Name        string
	Transferred int64
	Total       int64
}

// Known reports whether the total size is known.
func (u Update) Known() bool { return u.Total >= 0 }

// Fraction returns completion in [0, 1], or 0 when the total is unknown.
func (u Update) Fraction() float64 {
	if u.Total <= 0 {
		if u.Total == 0 {
			return 1
		}
		return 0
	}

	f := float64(u.Transferred) / float64(u.Total)
	if f > 1 {
		return 1
	}

	return f
}

// Reporter receives progress updates. Report is called from download
// goroutines and must return promptly; implementations coalesce or
// drop rather than block.
type Reporter interface {
	Report(u Update)
}

// Finisher is implemented by reporters that want a task's terminal
// result. err is nil on success.
type Finisher interface {
	Finish(taskID string, err error)
}

// Finish notifies r of a task's terminal result if r is a Finisher.
func Finish(r Reporter, taskID string, err error) {
	if f, ok := r.(Finisher); ok {
		f.Finish(taskID, err)
	}
}

type nop struct{}

func (nop) Report(Update) {}

// Nop returns a Reporter that discards everything.
func Nop() Reporter { return nop{} }

type multi []Reporter

// Multi fans updates out to every reporter in rs.
func Multi(rs ...Reporter) Reporter {
	return multi(rs)
}

func (m multi) Report(u Update) {
	for _, r := range m {
		r.Report(u)
	}
}

func (m multi) Finish(taskID string, err error) {
	for _, r := range m {
		Finish(r, taskID, err)
	}
}

// FormatBytes renders b using binary units.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func speed(transferred int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "0 B/s"
	}

	return FormatBytes(int64(float64(transferred)/elapsed.Seconds())) + "/s"
}
