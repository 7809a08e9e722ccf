package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	dlhttp "github.com/ligustah/batchdl/internal/http"
	"github.com/ligustah/batchdl/internal/retry"
	"github.com/ligustah/batchdl/internal/state"
	"github.com/ligustah/batchdl/internal/task"
)

// Options configures the downloader.
type Options struct {
	// Workers is the number of parallel download workers.
	// Default: 4
	Workers int

	// OutputDir receives the downloaded files.
	OutputDir string

	// Resume continues partial files with range requests. When false,
	// partial bytes are discarded; completed files are still skipped.
	Resume bool

	// Force ignores completed markers and partial files alike.
	Force bool

	// Retry controls how often a task is attempted.
	Retry retry.Policy

	// CheckpointInterval and CheckpointBytes bound how much progress a
	// crash can lose; whichever is reached first triggers a checkpoint.
	// Defaults: 2s and 8 MiB.
	CheckpointInterval time.Duration
	CheckpointBytes    int64

	// HTTPOptions configures the HTTP client.
	HTTPOptions dlhttp.Options

	// Events receives task notifications. Optional.
	Events EventHandler

	// Logf receives warnings that are not tied to an event. Optional.
	Logf func(format string, args ...any)
}

// ErrSizeMismatch is returned when the bytes on disk disagree with the
// remote size.
var ErrSizeMismatch = errors.New("downloader: size mismatch")

// Failure records a task that ended in the failed state.
type Failure struct {
	Name     string
	Attempts int
	Err      error
}

// Summary describes the outcome of a run.
type Summary struct {
	RunID string

	Completed []string
	Skipped   []string
	Failed    []Failure

	// Interrupted lists tasks that were in flight when the context was
	// cancelled. Their partial files remain resumable.
	Interrupted []string

	// NotStarted counts tasks never picked up because of cancellation.
	NotStarted int

	// Bytes is the number of bytes received during this run.
	Bytes int64
}

// HasFailures reports whether any task failed.
func (s *Summary) HasFailures() bool {
	return len(s.Failed) > 0
}

// Run downloads tasks into opts.OutputDir using opts.Workers workers and
// records progress in store. It returns after every task has reached a
// terminal state or, if ctx is cancelled, after in-flight tasks have
// checkpointed.
//
// Task failures are reported in the Summary; the error is reserved for
// problems that prevent the run from starting.
func Run(ctx context.Context, tasks []task.Task, store *state.Store, opts Options) (*Summary, error) {
	if store == nil {
		return nil, errors.New("downloader: state store is required")
	}
	if opts.OutputDir == "" {
		return nil, errors.New("downloader: output directory is required")
	}
	if err := task.Validate(tasks); err != nil {
		return nil, err
	}

	// Apply defaults
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 2 * time.Second
	}
	if opts.CheckpointBytes <= 0 {
		opts.CheckpointBytes = 8 * 1024 * 1024
	}
	if opts.HTTPOptions.MaxIdleConnsPerHost == 0 {
		proxy, timeout := opts.HTTPOptions.Proxy, opts.HTTPOptions.Timeout
		opts.HTTPOptions = dlhttp.DefaultOptions()
		opts.HTTPOptions.Proxy = proxy
		if timeout != 0 {
			opts.HTTPOptions.Timeout = timeout
		}
	}
	if opts.Events == nil {
		opts.Events = discardEvents{}
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	r := &runner{
		client:  dlhttp.NewClient(opts.HTTPOptions),
		store:   store,
		opts:    opts,
		summary: &Summary{RunID: store.RunID()},
	}

	// Create worker pool
	jobs := make(chan task.Task)
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				r.process(ctx, t)
			}
		}()
	}

	// Feed jobs to workers
	dispatched := 0
feed:
	for _, t := range tasks {
		select {
		case jobs <- t:
			dispatched++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)

	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.NotStarted += len(tasks) - dispatched
	r.summary.Bytes = r.bytes.Load()
	sort.Strings(r.summary.Completed)
	sort.Strings(r.summary.Skipped)
	sort.Strings(r.summary.Interrupted)
	sort.Slice(r.summary.Failed, func(i, j int) bool {
		return r.summary.Failed[i].Name < r.summary.Failed[j].Name
	})

	return r.summary, nil
}

// runner holds the state shared by the workers of one Run.
type runner struct {
	client *dlhttp.Client
	store  *state.Store
	opts   Options

	bytes   atomic.Int64
	mu      sync.Mutex
	summary *Summary
}

// process drives one task through
// pending -> attempting -> (retrying -> attempting)* -> completed | failed.
func (r *runner) process(ctx context.Context, t task.Task) {
	if ctx.Err() != nil {
		r.record(func(s *Summary) { s.NotStarted++ })
		return
	}

	fp, ok := r.store.Get(t.Name)
	if !ok {
		fp = state.New(t.Name)
	}
	fp.Name = t.Name

	finalPath, partPath := r.paths(t.Name)

	switch {
	case r.opts.Force:
		if err := removeIfExists(finalPath); err != nil {
			r.fail(ctx, t, &fp, 0, fsError("remove existing file", err))
			return
		}
		if err := removeIfExists(partPath); err != nil {
			r.fail(ctx, t, &fp, 0, fsError("remove partial file", err))
			return
		}
		fp = state.New(t.Name)

	case fp.Status == state.Completed:
		if completedOnDisk(finalPath, fp) {
			r.opts.Events.HandleEvent(Event{
				Kind:       EventSkipped,
				Name:       t.Name,
				Downloaded: fp.DownloadedBytes,
				Total:      fp.ExpectedSize(),
				Reason:     "already completed",
			})
			r.record(func(s *Summary) { s.Skipped = append(s.Skipped, t.Name) })
			return
		}
		r.opts.Logf("%s: recorded as completed but the file on disk is missing or has the wrong size; downloading again", t.Name)
		fp.Status = state.Pending
	}

	r.opts.Events.HandleEvent(Event{
		Kind:       EventStarted,
		Name:       t.Name,
		Downloaded: fp.DownloadedBytes,
		Total:      totalOf(fp),
	})

	var present bool
	attempts, err := r.opts.Retry.Do(ctx, func(int) error {
		var err error
		present, err = r.transfer(ctx, t, &fp)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		r.opts.Events.HandleEvent(Event{
			Kind:       EventRetrying,
			Name:       t.Name,
			Downloaded: fp.DownloadedBytes,
			Total:      totalOf(fp),
			Attempt:    attempt,
			Reason:     fmt.Sprintf("retrying in %s", wait),
			Err:        err,
		})
	})

	switch {
	case err == nil && present:
		r.opts.Events.HandleEvent(Event{
			Kind:       EventSkipped,
			Name:       t.Name,
			Downloaded: fp.DownloadedBytes,
			Total:      fp.ExpectedSize(),
			Reason:     "file already present with the remote size",
		})
		r.record(func(s *Summary) { s.Skipped = append(s.Skipped, t.Name) })

	case err == nil:
		r.opts.Events.HandleEvent(Event{
			Kind:       EventCompleted,
			Name:       t.Name,
			Downloaded: fp.DownloadedBytes,
			Total:      fp.ExpectedSize(),
		})
		r.record(func(s *Summary) { s.Completed = append(s.Completed, t.Name) })

	case ctx.Err() != nil:
		// Partial bytes were checkpointed by transfer; leave them resumable.
		r.record(func(s *Summary) { s.Interrupted = append(s.Interrupted, t.Name) })

	default:
		r.fail(ctx, t, &fp, attempts, err)
	}
}

func (r *runner) fail(ctx context.Context, t task.Task, fp *state.FileProgress, attempts int, err error) {
	fp.Status = state.Failed
	fp.LastError = err.Error()
	r.save(ctx, fp)

	r.opts.Events.HandleEvent(Event{
		Kind:       EventFailed,
		Name:       t.Name,
		Downloaded: fp.DownloadedBytes,
		Total:      totalOf(*fp),
		Attempt:    attempts,
		Err:        err,
	})
	r.record(func(s *Summary) {
		s.Failed = append(s.Failed, Failure{Name: t.Name, Attempts: attempts, Err: err})
	})
}

// save persists fp even when ctx has been cancelled, so an interrupted
// transfer keeps its last byte count.
func (r *runner) save(ctx context.Context, fp *state.FileProgress) {
	if err := r.store.Update(context.WithoutCancel(ctx), *fp); err != nil {
		r.opts.Logf("%s: checkpoint failed: %v", fp.Name, err)
	}
}

func (r *runner) record(fn func(s *Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.summary)
}

func totalOf(fp state.FileProgress) int64 {
	if fp.TotalSize == nil {
		return -1
	}
	return *fp.TotalSize
}
