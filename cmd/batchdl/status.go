package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/ligustah/batchdl/internal/progress"
	"github.com/ligustah/batchdl/internal/state"
)

// runStatus prints the recorded progress of the selected entries.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := newConfigFlags(fs, false)
	asJSON := fs.Bool("json", false, "Print records as JSON")

	fs.Usage = usage(fs, `Usage: batchdl status [options]

Show the recorded state of every selected link-file entry. Entries without a
record are shown as pending.

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

	ctx := context.Background()
	store, bucket, err := openState(ctx, cfg, true)
	if err != nil {
		errorf("opening state: %v", err)
		return ExitStateError
	}
	defer bucket.Close()

	records := make([]state.FileProgress, 0, len(tasks))
	counts := make(map[state.Status]int)
	for _, t := range tasks {
		p, ok := store.Get(t.Name)
		if !ok {
			p = state.New(t.Name)
		}
		records = append(records, p)
		counts[p.Status]++
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			errorf("%v", err)
			return ExitGeneralError
		}
		return ExitSuccess
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tDOWNLOADED\tTOTAL\tLAST ERROR")
	for _, p := range records {
		total := "?"
		if p.TotalSize != nil {
			total = progress.FormatBytes(*p.TotalSize)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.Status, progress.FormatBytes(p.DownloadedBytes), total, p.LastError)
	}
	tw.Flush()

	fmt.Fprintf(stdout, "\n%d entries: %d completed, %d in progress, %d failed, %d pending\n",
		len(records),
		counts[state.Completed],
		counts[state.InProgress],
		counts[state.Failed],
		counts[state.Pending],
	)
	return ExitSuccess
}
