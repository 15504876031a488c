package config

import (
	"flag"
	"fmt"
	"maps"
	"strings"
)

// Flag names shared by the commands.
const (
	FlagMaxConcurrent = "max-concurrent"
	FlagChunkSize     = "chunk-size"
	FlagDownloadDir   = "download-dir"
	FlagTimeout       = "timeout"
	FlagUserAgent     = "user-agent"
	FlagHeader        = "header"
	FlagProgress      = "progress"
	FlagLogLevel      = "log-level"
	FlagLogFormat     = "log-format"
	FlagAddr          = "addr"
)

// Bind registers the download, client and logging flags on fs and
// returns the Config they write into. Defaults shown in usage are
// Default's. Pass the result to Merge after parsing.
func Bind(fs *flag.FlagSet) *Config {
	d := Default()
	c := &d

	fs.IntVar(&c.MaxConcurrent, FlagMaxConcurrent, d.MaxConcurrent, "maximum simultaneous downloads")
	fs.IntVar(&c.ChunkSize, FlagChunkSize, d.ChunkSize, "read/write buffer size in bytes")
	fs.StringVar(&c.DownloadDir, FlagDownloadDir, d.DownloadDir, "destination directory or bucket URL (mem://, file:///path)")
	fs.DurationVar(&c.Timeout, FlagTimeout, d.Timeout, "per-request HTTP timeout, 0 for none")
	fs.StringVar(&c.UserAgent, FlagUserAgent, d.UserAgent, "User-Agent header sent with each request")
	fs.Func(FlagHeader, `extra request header as "Name: value", repeatable`, func(s string) error {
		name, value, ok := strings.Cut(s, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("want \"Name: value\", got %q", s)
		}
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[name] = strings.TrimSpace(value)
		return nil
	})
	fs.StringVar(&c.Log.Level, FlagLogLevel, d.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&c.Log.Format, FlagLogFormat, d.Log.Format, "log format: text, json")

	return c
}

// BindProgress registers --progress, used only by the CLI.
func BindProgress(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Progress, FlagProgress, c.Progress, "progress display: auto, bars, log, none")
}

// BindServer registers the fetchd flags.
func BindServer(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Server.Addr, FlagAddr, c.Server.Addr, "listen address")
}

// Merge copies into c every field whose flag was explicitly set on fs,
// leaving file and environment values alone otherwise.
func (c *Config) Merge(fs *flag.FlagSet, flags *Config) error {
	var err error

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case FlagMaxConcurrent:
			c.MaxConcurrent = flags.MaxConcurrent
		case FlagChunkSize:
			c.ChunkSize = flags.ChunkSize
		case FlagDownloadDir:
			c.DownloadDir = flags.DownloadDir
		case FlagTimeout:
			c.Timeout = flags.Timeout
		case FlagUserAgent:
			c.UserAgent = flags.UserAgent
		case FlagHeader:
			if c.Headers == nil {
				c.Headers = make(map[string]string, len(flags.Headers))
			}
			maps.Copy(c.Headers, flags.Headers)
		case FlagProgress:
			c.Progress = flags.Progress
		case FlagLogLevel:
			c.Log.Level = flags.Log.Level
		case FlagLogFormat:
			c.Log.Format = flags.Log.Format
		case FlagAddr:
			c.Server.Addr = flags.Server.Addr
		case "config":
		default:
			if err == nil {
				err = configErr("merge flags", fmt.Errorf("unknown flag %q", f.Name))
			}
		}
	})

	return err
}
