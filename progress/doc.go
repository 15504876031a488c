// Package progress reports per-task download progress.
//
// A [Reporter] receives [Update] samples from running downloads and
// must never hold them up. Implementations:
//
//   - [Nop] discards everything, for headless use.
//   - [Log] writes throttled slog lines.
//   - [Terminal] draws one progress bar per task.
//   - [Tracker] aggregates per-task state for a UI to poll.
//   - [Func] hands coalesced state to a callback on its own goroutine.
//
// Reporters that also implement [Finisher] learn each task's terminal
// result.
package progress
