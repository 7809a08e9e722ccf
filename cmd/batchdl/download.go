package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ligustah/batchdl/internal/downloader"
	"github.com/ligustah/batchdl/internal/progress"
)

// runDownload fetches every selected link-file entry into the output
// directory, resuming partial files and skipping completed ones.
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := newConfigFlags(fs, true)
	verbose := fs.Bool("v", false, "Print a line when each file starts")

	fs.Usage = usage(fs, `Usage: batchdl download [options]

Download the entries of a link file with a pool of workers. Completed files
are skipped and partial files are resumed with HTTP range requests. Progress
is recorded so an interrupted run can be continued by running it again.

Options:`)

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := flags.load()
	if err != nil {
		errorf("%v", err)
		return ExitInvalidArgs
	}

	tasks, code, err := loadTasks(cfg)
	if err != nil {
		errorf("%v", err)
		return code
	}

	httpOpts, err := cfg.HTTPOptions()
	if err != nil {
		errorf("%v", err)
		return ExitInvalidArgs
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[batchdl] Received interrupt, saving progress...")
			cancel()
		case <-ctx.Done():
		}
	}()

	store, bucket, err := openState(ctx, cfg, false)
	if err != nil {
		errorf("opening state: %v", err)
		return ExitStateError
	}
	defer bucket.Close()

	reporter := progress.NewReporter(progress.Options{
		TotalFiles:     len(tasks),
		Workers:        cfg.Threads,
		Output:         stderr,
		UpdateInterval: progressInterval,
		Bar:            cfg.Progress,
		Verbose:        *verbose,
	})
	reporter.Start()

	summary, err := downloader.Run(ctx, tasks, store, downloader.Options{
		Workers:            cfg.Threads,
		OutputDir:          cfg.OutputDir,
		Resume:             cfg.Resume,
		Force:              cfg.Force,
		Retry:              cfg.Policy(),
		CheckpointInterval: cfg.Checkpoint.Interval,
		CheckpointBytes:    cfg.Checkpoint.Bytes,
		HTTPOptions:        httpOpts,
		Events:             reporter,
		Logf:               warnf,
	})
	reporter.Stop()
	if err != nil {
		errorf("%v", err)
		return ExitGeneralError
	}

	printSummary(summary)

	switch {
	case ctx.Err() != nil && (len(summary.Interrupted) > 0 || summary.NotStarted > 0):
		fmt.Fprintf(stderr, "[batchdl] Interrupted: %d in progress, %d not started. Run again to resume.\n",
			len(summary.Interrupted), summary.NotStarted)
		return ExitInterrupted
	case summary.HasFailures():
		return ExitTasksFailed
	}
	return ExitSuccess
}

// printSummary lists the failed files; the reporter has already printed
// the totals.
func printSummary(s *downloader.Summary) {
	fmt.Fprintf(stderr, "[batchdl] Run %s finished\n", s.RunID)
	for _, f := range s.Failed {
		fmt.Fprintf(stderr, "[batchdl]   FAILED %s (%d attempt(s)): %v\n", f.Name, f.Attempts, f.Err)
	}
}
