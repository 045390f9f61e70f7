package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
)

var executeFunc = execute

// Version, Commit, and BuildDate are overridden at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	runMain(os.Args, os.Stdout, os.Stderr, os.Exit)
}

// ExitError reports an exit code without emitting error output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// execute runs the CLI command with the provided args and output writers.
func execute(args []string, stdout io.Writer, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.Version = versionString()
	if len(args) > 1 {
		cmd.SetArgs(args[1:])
	} else {
		cmd.SetArgs([]string{})
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

// runMain executes the CLI, runs deferred deletions, and exits on errors.
// os.Exit skips deferred calls, so deferred deletions run explicitly before
// exiting.
func runMain(args []string, stdout io.Writer, stderr io.Writer, exit func(int)) {
	err := executeFunc(args, stdout, stderr)

	if derr := cleanup.RunOnExit(); derr != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: %v\n", derr)
	}

	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		exit(exitErr.Code)
		return
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	exit(1)
}

// versionString formats Version with optional commit and build date metadata.
func versionString() string {
	v := Version
	if Commit != "" && Commit != "unknown" {
		v += " (commit " + Commit
		if BuildDate != "" && BuildDate != "unknown" {
			v += ", built " + BuildDate
		}
		v += ")"
	}
	return v
}
