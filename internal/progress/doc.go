// Package progress provides progress reporting for batch downloads.
//
// A Reporter consumes downloader events and writes "[batchdl]" prefixed
// lines to stderr: one per notable event, plus a periodic aggregate line.
// With Options.Bar set, a terminal progress bar over files replaces the
// aggregate line.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalFiles: len(tasks),
//	    Workers:    4,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	summary, err := downloader.Run(ctx, tasks, store, downloader.Options{
//	    Events: reporter,
//	})
//
// # Output Format
//
//	[batchdl] Files: 120 | Workers: 4
//	[batchdl] a.bin: done (1.20 GB)
//	[batchdl] b.bin: attempt 1 failed: http: unexpected status 503 Service Unavailable; retrying in 1s
//	[batchdl] Progress: 37/120 files | 41.30 GB received | Speed: 112.50 MB/s | Active: c.bin, d.bin
//	[batchdl] Files: 118 completed | 1 skipped | 1 failed | 3 retries
package progress
