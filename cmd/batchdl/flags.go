package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/batchdl/internal/config"
	"github.com/ligustah/batchdl/internal/linkfile"
	"github.com/ligustah/batchdl/internal/progress"
	"github.com/ligustah/batchdl/internal/state"
	"github.com/ligustah/batchdl/internal/task"
)

// configFlags binds command-line flags over a config.Config. Only flags
// that were set explicitly override the file and environment layers.
type configFlags struct {
	fs *flag.FlagSet

	configPath string
	envFile    string

	values          config.Config
	checkpointBytes string
}

// newConfigFlags registers the flags shared by every command. Commands
// that transfer data also get the tuning flags.
func newConfigFlags(fs *flag.FlagSet, transfer bool) *configFlags {
	c := &configFlags{fs: fs, values: config.Default()}
	v := &c.values

	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.envFile, "env-file", ".env", "File with BATCHDL_* variables (ignored if missing)")
	fs.StringVar(&v.LinkFile, "links", v.LinkFile, "Link file with one \"name<TAB>url\" entry per line")
	fs.StringVar(&v.OutputDir, "output", v.OutputDir, "Output directory")
	fs.StringVar(&v.Mode, "mode", v.Mode, "Selection mode: all, single or range")
	fs.StringVar(&v.File, "file", "", "Entry name for -mode single")
	fs.IntVar(&v.Start, "start", 0, "First entry, 0-based, for -mode range")
	fs.IntVar(&v.End, "end", 0, "Last entry, 0-based and inclusive, for -mode range")
	fs.BoolVar(&v.Sort, "sort", false, "Sort entries by name before selecting")
	fs.StringVar(&v.StateURL, "state-url", "", "Bucket URL for state (default: <output>/"+state.DirName+")")
	fs.IntVar(&v.Threads, "threads", v.Threads, "Number of parallel workers")
	fs.StringVar(&v.Proxy, "proxy", "", "HTTP proxy, e.g. http://127.0.0.1:7890")
	fs.DurationVar(&v.Timeout, "timeout", v.Timeout, "Connect, header and read stall timeout")

	if transfer {
		fs.BoolVar(&v.Resume, "resume", v.Resume, "Resume partial files with range requests")
		fs.BoolVar(&v.Force, "force", false, "Download again, ignoring completed files and partial data")
		fs.IntVar(&v.Retries, "retries", v.Retries, "Retries per file after the first attempt")
		fs.BoolVar(&v.Progress, "progress", false, "Show a progress bar")
		fs.DurationVar(&v.Checkpoint.Interval, "checkpoint-interval", v.Checkpoint.Interval, "Persist progress at least this often")
		fs.StringVar(&c.checkpointBytes, "checkpoint-bytes", "8MB", "Persist progress after this many bytes")
		fs.DurationVar(&v.Retry.Backoff, "retry-backoff", v.Retry.Backoff, "Initial retry backoff")
		fs.DurationVar(&v.Retry.MaxBackoff, "retry-max-backoff", v.Retry.MaxBackoff, "Max retry backoff")
	}
	return c
}

// load layers defaults, the YAML file, .env, the environment and explicit
// flags, then validates the result.
func (c *configFlags) load() (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(c.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if c.envFile != "" {
		if err := config.LoadDotEnv(c.envFile); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	var flagErr error
	v := c.values
	c.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "links":
			cfg.LinkFile = v.LinkFile
		case "output":
			cfg.OutputDir = v.OutputDir
		case "mode":
			cfg.Mode = v.Mode
		case "file":
			cfg.File = v.File
		case "start":
			cfg.Start = v.Start
		case "end":
			cfg.End = v.End
		case "sort":
			cfg.Sort = v.Sort
		case "state-url":
			cfg.StateURL = v.StateURL
		case "threads":
			cfg.Threads = v.Threads
		case "proxy":
			cfg.Proxy = v.Proxy
		case "timeout":
			cfg.Timeout = v.Timeout
		case "resume":
			cfg.Resume = v.Resume
		case "force":
			cfg.Force = v.Force
		case "retries":
			cfg.Retries = v.Retries
		case "progress":
			cfg.Progress = v.Progress
		case "checkpoint-interval":
			cfg.Checkpoint.Interval = v.Checkpoint.Interval
		case "checkpoint-bytes":
			n, err := progress.ParseBytes(c.checkpointBytes)
			if err != nil {
				flagErr = fmt.Errorf("parse -checkpoint-bytes: %w", err)
				return
			}
			cfg.Checkpoint.Bytes = n
		case "retry-backoff":
			cfg.Retry.Backoff = v.Retry.Backoff
		case "retry-max-backoff":
			cfg.Retry.MaxBackoff = v.Retry.MaxBackoff
		}
	})
	if flagErr != nil {
		return config.Config{}, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// loadTasks parses the link file and applies sorting and selection.
// It returns the exit code to use on failure.
func loadTasks(cfg config.Config) ([]task.Task, int, error) {
	tasks, skipped, err := linkfile.ParseFile(cfg.LinkFile)
	if err != nil {
		return nil, ExitLinkFileError, err
	}
	for _, pe := range skipped {
		warnf("%s: skipping %v", cfg.LinkFile, pe)
	}
	if len(tasks) == 0 {
		return nil, ExitLinkFileError, fmt.Errorf("%s: %w", cfg.LinkFile, errNoEntries)
	}
	if err := task.Validate(tasks); err != nil {
		return nil, ExitLinkFileError, fmt.Errorf("%s: %w", cfg.LinkFile, err)
	}

	if cfg.Sort {
		tasks = task.SortByName(tasks)
	}

	sel, err := cfg.Selection()
	if err != nil {
		return nil, ExitInvalidArgs, err
	}
	selected, err := task.Select(tasks, sel)
	if err != nil {
		return nil, ExitSelectionError, err
	}
	return selected, ExitSuccess, nil
}

// openState opens the state store. With readOnly set and no state URL, a
// missing state directory yields an empty in-memory store instead of
// creating the directory.
func openState(ctx context.Context, cfg config.Config, readOnly bool) (*state.Store, *blob.Bucket, error) {
	dir := filepath.Join(cfg.OutputDir, state.DirName)

	var (
		bucket *blob.Bucket
		err    error
	)
	if readOnly && cfg.StateURL == "" {
		if _, statErr := os.Stat(dir); errors.Is(statErr, os.ErrNotExist) {
			bucket, err = blob.OpenBucket(ctx, "mem://")
		} else {
			bucket, err = state.OpenBucket(ctx, "", dir)
		}
	} else {
		bucket, err = state.OpenBucket(ctx, cfg.StateURL, dir)
	}
	if err != nil {
		return nil, nil, err
	}

	store, err := state.Open(ctx, bucket, state.WithWarn(func(err error) {
		warnf("%v; starting with empty state", err)
	}))
	if err != nil {
		bucket.Close()
		return nil, nil, err
	}
	return store, bucket, nil
}

// usage prints the command help followed by its flags.
func usage(fs *flag.FlagSet, text string) func() {
	return func() {
		fmt.Fprintln(stderr, text)
		fs.SetOutput(stderr)
		fs.PrintDefaults()
	}
}

// errNoEntries is returned for a link file without a single valid entry.
var errNoEntries = errors.New("no entries found in link file")

// progressInterval is how often the aggregate progress line is printed.
const progressInterval = 5 * time.Second
