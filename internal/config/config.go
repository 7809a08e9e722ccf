package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dlhttp "github.com/ligustah/batchdl/internal/http"
	"github.com/ligustah/batchdl/internal/progress"
	"github.com/ligustah/batchdl/internal/retry"
	"github.com/ligustah/batchdl/internal/task"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "BATCHDL_"

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config defines configuration for the batchdl CLI.
type Config struct {
	LinkFile  string
	OutputDir string

	// Mode selects tasks: "all", "single" (File) or "range" (Start..End,
	// 0-based, inclusive). Start and End are NoIndex until set.
	Mode  string
	File  string
	Start int
	End   int

	Threads  int
	Resume   bool
	Force    bool
	Proxy    string
	Retries  int
	Timeout  time.Duration
	StateURL string
	Progress bool
	Sort     bool

	Checkpoint CheckpointConfig
	Retry      RetryConfig
}

// CheckpointConfig controls how often progress is persisted.
type CheckpointConfig struct {
	Interval time.Duration
	Bytes    int64
}

// RetryConfig defines retry backoff.
type RetryConfig struct {
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// NoIndex marks an unset range bound.
const NoIndex = -1

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		LinkFile:  "links.txt",
		OutputDir: "./downloads",
		Mode:      string(task.ModeAll),
		Start:     NoIndex,
		End:       NoIndex,
		Threads:   4,
		Resume:    true,
		Retries:   3,
		Timeout:   60 * time.Second,
		Checkpoint: CheckpointConfig{
			Interval: 2 * time.Second,
			Bytes:    8 * 1024 * 1024, // 8MB
		},
		Retry: RetryConfig{
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
// Pointers distinguish "unset" from an explicit zero or false.
type yamlConfig struct {
	LinkFile   string               `yaml:"link_file"`
	OutputDir  string               `yaml:"output_dir"`
	Mode       string               `yaml:"mode"`
	File       string               `yaml:"file"`
	Start      *int                 `yaml:"start"`
	End        *int                 `yaml:"end"`
	Threads    int                  `yaml:"threads"`
	Resume     *bool                `yaml:"resume"`
	Force      bool                 `yaml:"force"`
	Proxy      string               `yaml:"proxy"`
	Retries    *int                 `yaml:"retries"`
	Timeout    string               `yaml:"timeout"`
	StateURL   string               `yaml:"state_url"`
	Progress   bool                 `yaml:"progress"`
	Sort       bool                 `yaml:"sort"`
	Checkpoint yamlCheckpointConfig `yaml:"checkpoint"`
	Retry      yamlRetryConfig      `yaml:"retry"`
}

type yamlCheckpointConfig struct {
	Interval string `yaml:"interval"`
	Bytes    string `yaml:"bytes"`
}

type yamlRetryConfig struct {
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.LinkFile != "" {
		cfg.LinkFile = yc.LinkFile
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Mode != "" {
		cfg.Mode = yc.Mode
	}
	if yc.File != "" {
		cfg.File = yc.File
	}
	if yc.Start != nil {
		cfg.Start = *yc.Start
	}
	if yc.End != nil {
		cfg.End = *yc.End
	}
	if yc.Threads != 0 {
		cfg.Threads = yc.Threads
	}
	if yc.Resume != nil {
		cfg.Resume = *yc.Resume
	}
	cfg.Force = yc.Force
	if yc.Proxy != "" {
		cfg.Proxy = yc.Proxy
	}
	if yc.Retries != nil {
		cfg.Retries = *yc.Retries
	}
	if yc.StateURL != "" {
		cfg.StateURL = yc.StateURL
	}
	cfg.Progress = yc.Progress
	cfg.Sort = yc.Sort

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"checkpoint.interval", yc.Checkpoint.Interval, &cfg.Checkpoint.Interval},
		{"retry.backoff", yc.Retry.Backoff, &cfg.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &cfg.Retry.MaxBackoff},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if yc.Checkpoint.Bytes != "" {
		size, err := progress.ParseBytes(yc.Checkpoint.Bytes)
		if err != nil {
			return Config{}, fmt.Errorf("parse checkpoint.bytes: %w", err)
		}
		cfg.Checkpoint.Bytes = size
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the BATCHDL_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"LINK_FILE":  &c.LinkFile,
		"OUTPUT_DIR": &c.OutputDir,
		"MODE":       &c.Mode,
		"FILE":       &c.File,
		"PROXY":      &c.Proxy,
		"STATE_URL":  &c.StateURL,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"START":   &c.Start,
		"END":     &c.End,
		"THREADS": &c.Threads,
		"RETRIES": &c.Retries,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"RESUME":   &c.Resume,
		"FORCE":    &c.Force,
		"PROGRESS": &c.Progress,
		"SORT":     &c.Sort,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":             &c.Timeout,
		"CHECKPOINT_INTERVAL": &c.Checkpoint.Interval,
		"RETRY_BACKOFF":       &c.Retry.Backoff,
		"RETRY_MAX_BACKOFF":   &c.Retry.MaxBackoff,
	}
	for key, dst := range durations {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv(EnvPrefix + "CHECKPOINT_BYTES"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sCHECKPOINT_BYTES: %w", EnvPrefix, err)
		}
		c.Checkpoint.Bytes = size
	}

	return nil
}

// Validate validates the configuration. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	if c.LinkFile == "" {
		return invalid("link_file is required")
	}
	if c.OutputDir == "" {
		return invalid("output_dir is required")
	}
	if c.Threads < 1 {
		return invalid("threads must be at least 1, got %d", c.Threads)
	}
	if c.Retries < 0 {
		return invalid("retries must not be negative, got %d", c.Retries)
	}
	if c.Timeout < 0 {
		return invalid("timeout must not be negative")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return invalid("retry backoff must not be negative")
	}
	if c.Checkpoint.Interval <= 0 {
		return invalid("checkpoint.interval must be positive")
	}
	if c.Checkpoint.Bytes <= 0 {
		return invalid("checkpoint.bytes must be positive")
	}

	mode, err := task.ParseMode(c.Mode)
	if err != nil {
		return invalid("%v", err)
	}
	switch mode {
	case task.ModeSingle:
		if c.File == "" {
			return invalid("mode single requires file")
		}
	case task.ModeRange:
		if c.Start < 0 || c.End < 0 {
			return invalid("mode range requires start and end")
		}
		if c.End < c.Start {
			return invalid("mode range requires start <= end, got start=%d end=%d", c.Start, c.End)
		}
	}

	if c.Proxy != "" {
		if _, err := dlhttp.ParseProxy(c.Proxy); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

// Selection returns the task selection described by the configuration.
func (c *Config) Selection() (task.Selection, error) {
	mode, err := task.ParseMode(c.Mode)
	if err != nil {
		return task.Selection{}, err
	}
	return task.Selection{Mode: mode, File: c.File, Start: c.Start, End: c.End}, nil
}

// Policy returns the retry policy described by the configuration.
func (c *Config) Policy() retry.Policy {
	return retry.Policy{
		Retries:    c.Retries,
		Backoff:    c.Retry.Backoff,
		MaxBackoff: c.Retry.MaxBackoff,
	}
}

// HTTPOptions returns client options for the configured timeout and proxy.
func (c *Config) HTTPOptions() (dlhttp.Options, error) {
	opts := dlhttp.DefaultOptions()
	opts.Timeout = c.Timeout
	if c.Proxy != "" {
		p, err := dlhttp.ParseProxy(c.Proxy)
		if err != nil {
			return dlhttp.Options{}, err
		}
		opts.Proxy = p
	}
	return opts, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
