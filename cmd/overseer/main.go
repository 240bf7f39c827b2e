// Package main provides the entry point for the overseer CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mrz1836/overseer/internal/cli"
	"github.com/mrz1836/overseer/internal/errors"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "" //nolint:gochecknoglobals // ldflags target
	commit  = "" //nolint:gochecknoglobals // ldflags target
	date    = "" //nolint:gochecknoglobals // ldflags target
)

func main() {
	ctx := context.Background()
	err := cli.Execute(ctx, cli.BuildInfo{Version: version, Commit: commit, Date: date})
	cli.CloseLogFile()
	if err != nil {
		_, action := errors.Actionable(err)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", errors.Explain(err))
		if action != "" {
			_, _ = fmt.Fprintf(os.Stderr, "  %s\n", action)
		}
		os.Exit(cli.ExitCodeForError(err))
	}
}
