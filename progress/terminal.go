package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// TerminalOption configures a Terminal.
type TerminalOption func(*terminalOptions)

type terminalOptions struct {
	interval  time.Duration
	barWidth  int
	nameWidth int
}

// WithInterval sets how often the bars are redrawn. Default is 200ms.
func WithInterval(d time.Duration) TerminalOption {
	return func(o *terminalOptions) {
		o.interval = d
	}
}

// WithBarWidth sets the width of each bar in cells. Default is 30.
func WithBarWidth(n int) TerminalOption {
	return func(o *terminalOptions) {
		o.barWidth = n
	}
}

// WithNameWidth sets the width of the file name column. Default is 24.
func WithNameWidth(n int) TerminalOption {
	return func(o *terminalOptions) {
		o.nameWidth = n
	}
}

// Terminal draws one line per task: name, bar and byte counts. It
// redraws in place on a ticker, so Report only updates shared state.
type Terminal struct {
	w         io.Writer
	interval  time.Duration
	nameWidth int
	tracker   *Tracker
	bar       bar.Model

	nameStyle lipgloss.Style
	doneStyle lipgloss.Style
	failStyle lipgloss.Style
	dimStyle  lipgloss.Style

	mu      sync.Mutex
	lines   int
	started bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewTerminal returns a Terminal writing to w. Call Start to begin
// drawing and Stop to draw the final state.
func NewTerminal(w io.Writer, optFns ...TerminalOption) *Terminal {
	opts := terminalOptions{
		interval:  200 * time.Millisecond,
		barWidth:  30,
		nameWidth: 24,
	}
	for _, opt := range optFns {
		opt(&opts)
	}

	return &Terminal{
		w:         w,
		interval:  opts.interval,
		nameWidth: opts.nameWidth,
		tracker:   NewTracker(),
		bar:       bar.New(bar.WithDefaultGradient(), bar.WithWidth(opts.barWidth)),
		nameStyle: lipgloss.NewStyle().Bold(true).Width(opts.nameWidth),
		doneStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		dimStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (t *Terminal) Report(u Update) { t.tracker.Report(u) }

func (t *Terminal) Finish(taskID string, err error) { t.tracker.Finish(taskID, err) }

// Start begins redrawing in the background.
func (t *Terminal) Start() {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				t.Render()
				return
			case <-ticker.C:
				t.Render()
			}
		}
	}()
}

// Stop draws the final state and stops redrawing. It is safe to call
// more than once, and without Start.
func (t *Terminal) Stop() {
	t.once.Do(func() {
		t.mu.Lock()
		started := t.started
		t.mu.Unlock()

		close(t.stop)
		if started {
			<-t.done
			return
		}
		t.Render()
	})
}

// Render draws every task once, overwriting the previous frame.
func (t *Terminal) Render() {
	tasks := t.tracker.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	if t.lines > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", t.lines)
	}
	for _, tp := range tasks {
		b.WriteString("\x1b[2K")
		b.WriteString(t.line(tp))
		b.WriteByte('\n')
	}
	t.lines = len(tasks)

	io.WriteString(t.w, b.String())
}

func (t *Terminal) line(tp TaskProgress) string {
	name := t.nameStyle.Render(truncate(tp.Name, t.nameWidth))

	switch tp.Status {
	case StatusCompleted:
		return fmt.Sprintf("%s %s %s", name, t.bar.ViewAs(1), t.doneStyle.Render("done "+FormatBytes(tp.Transferred)))
	case StatusFailed:
		return fmt.Sprintf("%s %s", name, t.failStyle.Render("failed: "+tp.Err))
	}

	if tp.Total < 0 {
		filler := t.dimStyle.Render(strings.Repeat("·", t.bar.Width))
		return fmt.Sprintf("%s %s %s", name, filler, FormatBytes(tp.Transferred))
	}

	return fmt.Sprintf("%s %s %s / %s", name, t.bar.ViewAs(tp.Fraction()), FormatBytes(tp.Transferred), FormatBytes(tp.Total))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 2 {
		return s
	}

	return string(r[:n-1]) + "…"
}
