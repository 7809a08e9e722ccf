package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	dlhttp "github.com/ligustah/batchdl/internal/http"
	"github.com/ligustah/batchdl/internal/state"
	"github.com/ligustah/batchdl/internal/task"
)

// VerifyOptions configures Verify.
type VerifyOptions struct {
	OutputDir string

	// Threads bounds concurrent checks. Default: 4
	Threads int

	// Remote also compares against the size reported by a HEAD request.
	Remote bool

	HTTPOptions dlhttp.Options
}

// VerifyResult describes one checked file.
type VerifyResult struct {
	Name   string
	Status state.Status

	// Expected is the recorded size, -1 if unknown.
	Expected int64
	// Actual is the size on disk, -1 if the file is missing.
	Actual int64
	// Remote is the size from HEAD, -1 if unknown or not requested.
	Remote int64

	// Problem is empty when the file checks out.
	Problem string
}

// OK reports whether the file is complete and consistent.
func (r VerifyResult) OK() bool {
	return r.Problem == ""
}

// Verify checks every task that is recorded as completed against the file
// on disk and, optionally, the remote size. Tasks that are not completed
// are reported with a problem describing their state. Results follow the
// order of tasks.
func Verify(ctx context.Context, tasks []task.Task, store *state.Store, opts VerifyOptions) ([]VerifyResult, error) {
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	if opts.HTTPOptions.MaxIdleConnsPerHost == 0 {
		opts.HTTPOptions = dlhttp.DefaultOptions()
	}

	var client *dlhttp.Client
	if opts.Remote {
		client = dlhttp.NewClient(opts.HTTPOptions)
	}

	results := make([]VerifyResult, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			res, err := verifyOne(ctx, client, t, store, opts.OutputDir)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func verifyOne(ctx context.Context, client *dlhttp.Client, t task.Task, store *state.Store, dir string) (VerifyResult, error) {
	res := VerifyResult{Name: t.Name, Expected: -1, Actual: -1, Remote: -1}

	fp, ok := store.Get(t.Name)
	if !ok {
		res.Status = state.Pending
	} else {
		res.Status = fp.Status
		if fp.TotalSize != nil {
			res.Expected = *fp.TotalSize
		}
	}

	st, err := os.Stat(filepath.Join(dir, t.Name))
	switch {
	case err == nil:
		res.Actual = st.Size()
	case !errors.Is(err, os.ErrNotExist):
		return res, fmt.Errorf("stat %s: %w", t.Name, err)
	}

	if client != nil {
		info, err := client.Head(ctx, t.URL)
		switch {
		case err == nil:
			res.Remote = info.Size
		case ctx.Err() != nil:
			return res, ctx.Err()
		case !errors.Is(err, dlhttp.ErrHeadNotSupported):
			res.Problem = fmt.Sprintf("remote check failed: %v", err)
			return res, nil
		}
	}

	switch {
	case res.Status != state.Completed:
		res.Problem = fmt.Sprintf("not completed (%s)", res.Status)
	case res.Actual < 0:
		res.Problem = "file missing"
	case res.Expected >= 0 && res.Actual != res.Expected:
		res.Problem = fmt.Sprintf("size %d on disk, %d recorded", res.Actual, res.Expected)
	case res.Remote >= 0 && res.Actual != res.Remote:
		res.Problem = fmt.Sprintf("size %d on disk, %d remote", res.Actual, res.Remote)
	}
	return res, nil
}
