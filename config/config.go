// Package config loads the settings shared by fetch and fetchd.
//
// Values are layered, each source overriding the one before it:
//
//	Default()
//	YAML file (--config)
//	.env file (loaded into the process environment, never overriding it)
//	FETCH_* environment variables
//	command line flags (Merge)
//
// Validate runs last and reports every bad field at once.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/fetcher/client"
	"github.com/adamwoolhether/fetcher/download"
	"github.com/adamwoolhether/fetcher/web/server"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "FETCH_"

// Config holds the settings for one process.
type Config struct {
	MaxConcurrent int           `yaml:"max_concurrent" validate:"gte=1"`
	ChunkSize     int           `yaml:"chunk_size" validate:"gte=1,lte=16777216"`
	DownloadDir   string        `yaml:"download_dir" validate:"required"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	UserAgent     string        `yaml:"user_agent"`

	// Headers are sent with every download, e.g. an Authorization token.
	Headers  map[string]string `yaml:"headers" validate:"dive,keys,required,endkeys"`
	Progress string            `yaml:"progress" validate:"oneof=auto bars log none"`
	Log      Log               `yaml:"log"`
	Server   Server            `yaml:"server"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Server configures fetchd. Zero timeouts keep the server defaults.
type Server struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Config {
	p := download.DefaultParams()

	return Config{
		MaxConcurrent: p.MaxConcurrent,
		ChunkSize:     p.ChunkSize,
		DownloadDir:   p.Dir,
		Progress:      "auto",
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
	}
}

// Load layers the YAML file at path (skipped when empty), the given
// dotenv files (missing ones are skipped) and FETCH_* variables over
// Default. Flags are applied afterwards with Merge; call Validate once
// everything is in.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, configErr("read config file", err)
		}
		if err := cfg.decodeYAML(bytes.NewReader(data)); err != nil {
			return Config{}, configErr(fmt.Sprintf("parse config file %s", path), err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, configErr(fmt.Sprintf("load env file %s", f), err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// decodeYAML overlays the document read from r. Unknown keys are an
// error so typos don't silently fall back to defaults.
func (c *Config) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return configErr(EnvPrefix+key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return configErr(EnvPrefix+key, err)
		}
		*dst = d
		return nil
	}

	str("DOWNLOAD_DIR", &c.DownloadDir)
	str("USER_AGENT", &c.UserAgent)
	str("PROGRESS", &c.Progress)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("ADDR", &c.Server.Addr)

	return errors.Join(
		num("MAX_CONCURRENT", &c.MaxConcurrent),
		num("CHUNK_SIZE", &c.ChunkSize),
		dur("TIMEOUT", &c.Timeout),
		dur("READ_TIMEOUT", &c.Server.ReadTimeout),
		dur("WRITE_TIMEOUT", &c.Server.WriteTimeout),
		dur("IDLE_TIMEOUT", &c.Server.IdleTimeout),
		dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout),
	)
}

// Params returns the download settings.
func (c Config) Params() download.Params {
	return download.Params{
		MaxConcurrent: c.MaxConcurrent,
		ChunkSize:     c.ChunkSize,
		Dir:           c.DownloadDir,
	}
}

// ClientOptions returns the HTTP client settings.
func (c Config) ClientOptions() []client.Option {
	opts := []client.Option{client.WithTransport(c.transport())}
	if c.Timeout > 0 {
		opts = append(opts, client.WithTimeout(c.Timeout))
	}
	if c.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(c.UserAgent))
	}
	if len(c.Headers) > 0 {
		h := make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			h.Set(k, v)
		}
		opts = append(opts, client.WithHeaders(h))
	}

	return opts
}

// transport keeps one idle connection per download slot, so a batch
// from a single host reuses its connections instead of redialing.
func (c Config) transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = max(c.MaxConcurrent, 2)

	return t
}

// Options returns the fetchd server settings.
func (s Server) Options() []server.Option {
	return []server.Option{
		server.WithHost(s.Addr),
		server.WithReadTimeout(s.ReadTimeout),
		server.WithWriteTimeout(s.WriteTimeout),
		server.WithIdleTimeout(s.IdleTimeout),
		server.WithShutdownTimeout(s.ShutdownTimeout),
	}
}

func configErr(detail string, err error) error {
	return &download.Error{Kind: download.KindConfig, Detail: detail, Err: err}
}
