package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidArgs    = 2
	ExitLinkFileError  = 3
	ExitSelectionError = 4
	ExitStateError     = 5
	ExitTasksFailed    = 6
	ExitVerifyFailed   = 7
	ExitInterrupted    = 130
)

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "download":
		return runDownload(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "verify":
		return runVerify(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(stderr, `Usage: batchdl <command> [options]

Commands:
  download  Download every selected entry of a link file, resuming partial files
  status    Show the recorded progress of the selected entries
  verify    Check completed files against recorded and remote sizes

Run 'batchdl <command> -h' for command-specific help.`)
}

func warnf(format string, args ...any) {
	fmt.Fprintf(stderr, "[batchdl] Warning: "+format+"\n", args...)
}

func errorf(format string, args ...any) {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
}
