package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ligustah/batchdl/internal/downloader"
)

// runVerify checks completed files against their records and, with
// -remote, against the size the server reports.
func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := newConfigFlags(fs, false)
	remote := fs.Bool("remote", false, "Also compare against the remote size (HEAD request per file)")

	fs.Usage = usage(fs, `Usage: batchdl verify [options]

Verify that every selected entry is recorded as completed and that the file
on disk has the recorded size. Does not download any data.

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

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	store, bucket, err := openState(ctx, cfg, true)
	if err != nil {
		errorf("opening state: %v", err)
		return ExitStateError
	}
	defer bucket.Close()

	results, err := downloader.Verify(ctx, tasks, store, downloader.VerifyOptions{
		OutputDir:   cfg.OutputDir,
		Threads:     cfg.Threads,
		Remote:      *remote,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ExitInterrupted
		}
		errorf("%v", err)
		return ExitGeneralError
	}

	bad := 0
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(stdout, "OK      %s\n", r.Name)
			continue
		}
		bad++
		fmt.Fprintf(stdout, "INVALID %s: %s\n", r.Name, r.Problem)
	}

	fmt.Fprintf(stdout, "\n%d of %d files valid\n", len(results)-bad, len(results))
	if bad > 0 {
		return ExitVerifyFailed
	}
	return ExitSuccess
}
