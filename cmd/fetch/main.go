// Command fetch downloads one or more URLs concurrently.
//
//	fetch [flags] URL...
//
// Flags may appear before, between or after the URLs. Exit status is 0
// when every download succeeded, 1 when any failed, 2 for bad arguments
// or configuration, 3 when the download directory is unusable and 130
// when interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/adamwoolhether/fetcher"
	"github.com/adamwoolhether/fetcher/client"
	"github.com/adamwoolhether/fetcher/config"
	"github.com/adamwoolhether/fetcher/download"
	"github.com/adamwoolhether/fetcher/progress"
)

const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitDirectory   = 3
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: fetch [flags] URL...")
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "YAML config file")
	flags := config.Bind(fs)
	config.BindProgress(fs, flags)

	urls, err := parse(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Fprintln(stderr, "fetch:", err)
		return exitUsage
	}
	if err := cfg.Merge(fs, flags); err != nil {
		fmt.Fprintln(stderr, "fetch:", err)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "fetch:", err)
		return exitUsage
	}

	if len(urls) == 0 {
		fmt.Fprintln(stderr, "fetch: at least one URL is required")
		fs.Usage()
		return exitUsage
	}

	log := cfg.Log.NewLogger(stderr)

	reporter, stopProgress := newReporter(cfg.Progress, stderr, log)

	clientOpts := append(cfg.ClientOptions(), client.WithLogger(log))
	coord, err := fetcher.NewCoordinator(clientOpts,
		download.WithLogger(log),
		download.WithReporter(reporter),
	)
	if err != nil {
		stopProgress()
		fmt.Fprintln(stderr, "fetch:", err)
		return exitUsage
	}

	outs, err := coord.Run(ctx, urls, cfg.Params())
	stopProgress()

	if err != nil {
		fmt.Fprintln(stderr, "fetch:", err)

		switch download.KindOf(err) {
		case download.KindDirectory:
			return exitDirectory
		case download.KindCancelled:
			return exitInterrupted
		default:
			return exitUsage
		}
	}

	if err := printOutcomes(stdout, outs); err != nil {
		log.Error("printing summary", "error", err)
	}

	_, failed := download.Summarize(outs)

	switch {
	case ctx.Err() != nil:
		return exitInterrupted
	case failed > 0:
		return exitFailed
	}

	return exitOK
}

// parse collects positional URLs around the flags. The flag package
// stops at the first non-flag argument, so parsing resumes after each
// one. Everything after "--" is a URL.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	var urls []string

	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}

		rest := fs.Args()
		if len(rest) == 0 {
			return urls, nil
		}

		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(urls, rest...), nil
		}

		urls = append(urls, rest[0])
		args = rest[1:]
	}
}

// newReporter picks the progress display. auto draws bars only when
// stderr is a terminal. The returned func flushes the display and must
// be called once the run is over.
func newReporter(mode string, stderr io.Writer, log *slog.Logger) (progress.Reporter, func()) {
	if mode == "auto" {
		mode = "log"
		if isTerminal(stderr) {
			mode = "bars"
		}
	}

	switch mode {
	case "bars":
		term := progress.NewTerminal(stderr)
		term.Start()
		return term, term.Stop
	case "log":
		return progress.NewLog(log, time.Second), func() {}
	default:
		return progress.Nop(), func() {}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printOutcomes(w io.Writer, outs []download.Outcome) error {
	rows := make([][]string, 0, len(outs))
	for _, o := range outs {
		if o.OK() {
			rows = append(rows, []string{o.URL, "ok", o.Path, progress.FormatBytes(o.Bytes)})
			continue
		}
		rows = append(rows, []string{o.URL, o.Kind.String(), o.Message(), ""})
	}

	table := tablewriter.NewWriter(w)
	table.Header("URL", "Result", "Path / Error", "Size")
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("table rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	succeeded, failed := download.Summarize(outs)
	_, err := fmt.Fprintf(w, "%d successful, %d failed\n", succeeded, failed)

	return err
}
