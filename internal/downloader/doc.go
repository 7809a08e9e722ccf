// Package downloader runs a batch of HTTP downloads with a fixed-size
// worker pool.
//
// Each task is fetched into "<name>.part" inside the output directory and
// renamed to its final name once the byte count matches the remote size.
// Progress is checkpointed to a state.Store so an interrupted run can be
// resumed with a range request from the last durable byte.
//
// # Usage
//
//	summary, err := downloader.Run(ctx, tasks, store, downloader.Options{
//	    Workers:   4,
//	    OutputDir: "./downloads",
//	    Resume:    true,
//	    Retry:     retry.DefaultPolicy(),
//	    Events:    reporter,
//	})
//
// # Worker Pool
//
// Tasks are handed to workers through an unbuffered channel, so at most
// Workers transfers are in flight. A failing task never stops the pool;
// failures are collected in the Summary.
//
// # Graceful Shutdown
//
// When ctx is cancelled:
//   - No further tasks are handed out
//   - In-flight transfers stop, fsync their partial file and checkpoint it
//   - Interrupted tasks stay in_progress and resume on the next run
package downloader
