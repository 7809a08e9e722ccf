package progress

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ligustah/batchdl/internal/downloader"
)

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of tasks in the run.
	TotalFiles int

	// Workers is the number of parallel workers (for display).
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to print the aggregate line.
	// Default: 1s
	UpdateInterval time.Duration

	// Bar draws a terminal progress bar over files instead of periodic
	// aggregate lines.
	Bar bool

	// Verbose also prints a line when each file starts.
	Verbose bool
}

// Reporter turns downloader events into human-readable output. It is safe
// for concurrent use.
type Reporter struct {
	opts Options

	// mu guards output and the per-file maps.
	mu      sync.Mutex
	seen    map[string]int64
	active  map[string]bool
	bar     *progressbar.ProgressBar
	stopped bool

	bytes     atomic.Int64
	completed atomic.Int32
	skipped   atomic.Int32
	failed    atomic.Int32
	retries   atomic.Int32

	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = time.Second
	}

	r := &Reporter{
		opts:   opts,
		seen:   make(map[string]int64),
		active: make(map[string]bool),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if opts.Bar {
		r.bar = progressbar.NewOptions64(
			int64(opts.TotalFiles),
			progressbar.OptionSetWriter(opts.Output),
			progressbar.OptionSetDescription("[batchdl]"),
			progressbar.OptionSetItsString("file"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	return r
}

// Start prints the header and begins periodic updates.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	r.printf("Files: %d | Workers: %d", r.opts.TotalFiles, r.opts.Workers)

	go r.updateLoop()
}

// Stop ends periodic updates and prints the final totals. It is safe to
// call more than once, and a no-op before Start.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || r.startTime.IsZero() {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// HandleEvent implements downloader.EventHandler.
func (r *Reporter) HandleEvent(ev downloader.Event) {
	switch ev.Kind {
	case downloader.EventStarted:
		r.mu.Lock()
		r.active[ev.Name] = true
		r.seen[ev.Name] = ev.Downloaded
		r.mu.Unlock()
		if r.opts.Verbose {
			r.printf("%s: started", ev.Name)
		}

	case downloader.EventProgress:
		r.mu.Lock()
		delta := ev.Downloaded - r.seen[ev.Name]
		r.seen[ev.Name] = ev.Downloaded
		r.mu.Unlock()
		if delta > 0 {
			r.bytes.Add(delta)
		}

	case downloader.EventRestarted:
		r.mu.Lock()
		r.seen[ev.Name] = 0
		r.mu.Unlock()
		r.printf("%s: restarting from byte 0 (%s)", ev.Name, ev.Reason)

	case downloader.EventRetrying:
		r.retries.Add(1)
		r.printf("%s: attempt %d failed: %v; %s", ev.Name, ev.Attempt, ev.Err, ev.Reason)

	case downloader.EventSkipped:
		r.finish(ev.Name)
		r.skipped.Add(1)
		r.printf("%s: skipped (%s)", ev.Name, ev.Reason)

	case downloader.EventCompleted:
		r.finish(ev.Name)
		r.completed.Add(1)
		r.printf("%s: done (%s)", ev.Name, formatBytes(ev.Total))

	case downloader.EventFailed:
		r.finish(ev.Name)
		r.failed.Add(1)
		r.printf("%s: failed after %d attempt(s): %v", ev.Name, ev.Attempt, ev.Err)
	}
}

// Bytes returns the number of bytes received so far.
func (r *Reporter) Bytes() int64 {
	return r.bytes.Load()
}

func (r *Reporter) finish(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, name)
	if r.bar != nil {
		r.bar.Add(1)
	}
}

// printf writes one prefixed line, keeping the bar intact.
func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		r.bar.Clear()
	}
	fmt.Fprintf(r.opts.Output, "[batchdl] "+format+"\n", args...)
	if r.bar != nil {
		r.bar.RenderBlank()
	}
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current aggregate progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	received := r.bytes.Load()

	// Calculate speed
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(received-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = received

	r.mu.Lock()
	if r.bar != nil {
		r.bar.Describe(fmt.Sprintf("[batchdl] %s | %s/s", formatBytes(received), formatBytes(int64(speed))))
		r.mu.Unlock()
		return
	}
	active := make([]string, 0, len(r.active))
	for name := range r.active {
		active = append(active, name)
	}
	r.mu.Unlock()

	done := int(r.completed.Load() + r.skipped.Load() + r.failed.Load())
	r.printf("Progress: %d/%d files | %s received | Speed: %s/s | Active: %s",
		done,
		r.opts.TotalFiles,
		formatBytes(received),
		formatBytes(int64(speed)),
		activeList(active),
	)
}

func activeList(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	sort.Strings(names)
	const maxShown = 3
	if len(names) > maxShown {
		return fmt.Sprintf("%s +%d more", strings.Join(names[:maxShown], ", "), len(names)-maxShown)
	}
	return strings.Join(names, ", ")
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	received := r.bytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := 0.0
	if duration > 0 {
		avgSpeed = float64(received) / duration.Seconds()
	}

	r.mu.Lock()
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
		fmt.Fprintln(r.opts.Output)
	}
	r.mu.Unlock()

	r.printf("Files: %d completed | %d skipped | %d failed | %d retries",
		r.completed.Load(),
		r.skipped.Load(),
		r.failed.Load(),
		r.retries.Load(),
	)
	r.printf("Total: %s in %s | Average speed: %s/s",
		formatBytes(received),
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b < 0:
		return "unknown"
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string such as "8MB" or "512 KB".
// Units are binary multiples.
func ParseBytes(s string) (int64, error) {
	var multiplier int64 = 1
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "IB")

	switch {
	case strings.HasSuffix(s, "TB"), strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
	case strings.HasSuffix(s, "GB"), strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
	case strings.HasSuffix(s, "MB"), strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
	case strings.HasSuffix(s, "KB"), strings.HasSuffix(s, "K"):
		multiplier = 1024
	}
	s = strings.TrimRight(s, "TGMKB ")

	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	return int64(value * float64(multiplier)), nil
}
