package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	dlhttp "github.com/ligustah/batchdl/internal/http"
	"github.com/ligustah/batchdl/internal/retry"
	"github.com/ligustah/batchdl/internal/state"
	"github.com/ligustah/batchdl/internal/task"
)

// PartSuffix is appended to the output name while a file is incomplete.
const PartSuffix = ".part"

const chunkSize = 256 * 1024

var errBadRange = errors.New("downloader: server resumed at the wrong offset")

// transfer performs one attempt. It reports present=true when the output
// file already existed with the remote size and nothing was fetched.
func (r *runner) transfer(ctx context.Context, t task.Task, fp *state.FileProgress) (present bool, err error) {
	finalPath, partPath := r.paths(t.Name)

	info, err := r.client.Head(ctx, t.URL)
	switch {
	case err == nil:
	case errors.Is(err, dlhttp.ErrHeadNotSupported):
		info = nil
	default:
		return false, classify(err)
	}

	if info != nil {
		if sourceChanged(*fp, info) {
			if err := r.discardPartial(ctx, partPath, fp, "remote file changed since the last attempt"); err != nil {
				return false, err
			}
			fp.ETag = ""
		}
		if info.Size >= 0 {
			fp.SetTotal(info.Size)
		}
		if info.ETag != "" {
			fp.ETag = info.ETag
		}
	}
	total := totalOf(*fp)

	// A final file without a completed marker is adopted when it matches.
	if st, err := os.Stat(finalPath); err == nil {
		if !st.Mode().IsRegular() {
			return false, retry.Fatal(fmt.Errorf("output path %s is not a regular file", finalPath))
		}
		if total >= 0 && st.Size() == total {
			if err := removeIfExists(partPath); err != nil {
				return false, fsError("remove partial file", err)
			}
			fp.DownloadedBytes = total
			fp.Status = state.Completed
			fp.LastError = ""
			r.save(ctx, fp)
			return true, nil
		}
		r.opts.Logf("%s: existing file has %d bytes, remote has %d; replacing it", t.Name, st.Size(), total)
		if err := os.Remove(finalPath); err != nil {
			return false, fsError("remove stale file", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fsError("stat output file", err)
	}

	// The partial file on disk is the source of truth for the offset.
	offset, err := fileSize(partPath)
	if err != nil {
		return false, fsError("stat partial file", err)
	}
	fp.DownloadedBytes = offset
	switch {
	case offset > 0 && !r.opts.Resume:
		if err := r.discardPartial(ctx, partPath, fp, "resume disabled"); err != nil {
			return false, err
		}
	case total >= 0 && offset > total:
		if err := r.discardPartial(ctx, partPath, fp, "partial file is larger than the remote file"); err != nil {
			return false, err
		}
	}
	offset = fp.DownloadedBytes

	fp.Status = state.InProgress
	r.save(ctx, fp)

	if offset > 0 && offset == total {
		return false, r.finalize(ctx, fp, partPath, finalPath)
	}

	if offset > 0 && info != nil && !info.AcceptsRanges {
		r.opts.Logf("%s: server does not advertise range support; trying to resume at byte %d anyway", t.Name, offset)
	}

	resp, err := r.client.Get(ctx, t.URL, offset)
	if err != nil {
		if errors.Is(err, dlhttp.ErrRangeNotSatisfiable) && offset > 0 {
			if derr := r.discardPartial(ctx, partPath, fp, "server rejected the resume offset"); derr != nil {
				return false, derr
			}
			return false, err
		}
		return false, classify(err)
	}
	defer resp.Body.Close()

	if offset > 0 {
		switch {
		case !resp.Partial:
			// The body starts at byte 0; rewrite from scratch.
			if err := r.discardPartial(ctx, partPath, fp, "server ignored the range request"); err != nil {
				return false, err
			}
			offset = 0
		case resp.Start != offset:
			if err := r.discardPartial(ctx, partPath, fp, "server resumed at the wrong offset"); err != nil {
				return false, err
			}
			return false, fmt.Errorf("%w: got %d, want %d", errBadRange, resp.Start, offset)
		}
	}

	if resp.Total >= 0 {
		if total >= 0 && resp.Total != total {
			if err := r.discardPartial(ctx, partPath, fp, "remote size changed"); err != nil {
				return false, err
			}
			fp.SetTotal(resp.Total)
			return false, fmt.Errorf("%w: remote size changed from %d to %d", ErrSizeMismatch, total, resp.Total)
		}
		total = resp.Total
		fp.SetTotal(total)
	}
	if fp.ETag == "" {
		fp.ETag = resp.ETag
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return false, fsError("open partial file", err)
	}

	streamErr := r.stream(ctx, f, resp.Body, fp, total)
	if err := f.Sync(); err != nil && streamErr == nil {
		streamErr = fsError("sync partial file", err)
	}
	if err := f.Close(); err != nil && streamErr == nil {
		streamErr = fsError("close partial file", err)
	}
	r.save(ctx, fp)
	if streamErr != nil {
		return false, streamErr
	}

	if total >= 0 && fp.DownloadedBytes != total {
		if fp.DownloadedBytes < total {
			return false, fmt.Errorf("%w: received %d of %d bytes", ErrSizeMismatch, fp.DownloadedBytes, total)
		}
		got := fp.DownloadedBytes
		if err := r.discardPartial(ctx, partPath, fp, "received more bytes than the remote size"); err != nil {
			return false, err
		}
		return false, retry.Fatal(fmt.Errorf("%w: received %d bytes, expected %d", ErrSizeMismatch, got, total))
	}

	return false, r.finalize(ctx, fp, partPath, finalPath)
}

// stream copies body into f, emitting progress for every chunk and
// checkpointing after CheckpointInterval or CheckpointBytes, whichever
// comes first. Checkpointed byte counts are always fsynced first.
func (r *runner) stream(ctx context.Context, f *os.File, body io.Reader, fp *state.FileProgress, total int64) error {
	buf := make([]byte, chunkSize)
	every := rate.Sometimes{Interval: r.opts.CheckpointInterval}
	saved := fp.DownloadedBytes

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fsError("write partial file", err)
			}
			fp.DownloadedBytes += int64(n)
			r.bytes.Add(int64(n))

			r.opts.Events.HandleEvent(Event{
				Kind:       EventProgress,
				Name:       fp.Name,
				Downloaded: fp.DownloadedBytes,
				Total:      total,
			})

			due := fp.DownloadedBytes-saved >= r.opts.CheckpointBytes
			every.Do(func() { due = true })
			if due {
				if err := f.Sync(); err != nil {
					return fsError("sync partial file", err)
				}
				r.save(ctx, fp)
				saved = fp.DownloadedBytes
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read body: %w", readErr)
		}
	}
}

// finalize moves a complete partial file into place and marks it completed.
func (r *runner) finalize(ctx context.Context, fp *state.FileProgress, partPath, finalPath string) error {
	st, err := os.Stat(partPath)
	if err != nil {
		return fsError("stat partial file", err)
	}
	if st.Size() != fp.DownloadedBytes {
		fp.DownloadedBytes = st.Size()
		return fmt.Errorf("%w: partial file has %d bytes after transfer", ErrSizeMismatch, st.Size())
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		return fsError("rename partial file", err)
	}

	fp.SetTotal(st.Size())
	fp.Status = state.Completed
	fp.LastError = ""
	r.save(ctx, fp)
	return nil
}

// discardPartial removes the partial file and resets the byte count.
func (r *runner) discardPartial(ctx context.Context, partPath string, fp *state.FileProgress, reason string) error {
	if err := removeIfExists(partPath); err != nil {
		return fsError("remove partial file", err)
	}
	had := fp.DownloadedBytes
	fp.DownloadedBytes = 0
	r.save(ctx, fp)

	if had > 0 {
		r.opts.Events.HandleEvent(Event{
			Kind:   EventRestarted,
			Name:   fp.Name,
			Total:  totalOf(*fp),
			Reason: reason,
		})
	}
	return nil
}

func (r *runner) paths(name string) (finalPath, partPath string) {
	finalPath = filepath.Join(r.opts.OutputDir, name)
	return finalPath, finalPath + PartSuffix
}

func sourceChanged(fp state.FileProgress, info *dlhttp.FileInfo) bool {
	if fp.TotalSize != nil && info.Size >= 0 && *fp.TotalSize != info.Size {
		return true
	}
	return fp.ETag != "" && info.ETag != "" && fp.ETag != info.ETag
}

// completedOnDisk reports whether a completed record is backed by a file
// of the recorded size.
func completedOnDisk(path string, fp state.FileProgress) bool {
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return false
	}
	return st.Size() == fp.ExpectedSize()
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// classify marks errors that repeating the request cannot fix.
func classify(err error) error {
	var se *dlhttp.StatusError
	switch {
	case errors.As(err, &se):
		if se.Temporary() {
			return err
		}
		return retry.Fatal(err)
	case errors.Is(err, dlhttp.ErrInvalidURL):
		return retry.Fatal(err)
	default:
		return err
	}
}

// Local filesystem errors are not retried.
func fsError(op string, err error) error {
	return retry.Fatal(fmt.Errorf("%s: %w", op, err))
}
