// Package main is the entry point for the fluxr CLI.
//
// Usage:
//
//	fluxr run scenario.yaml --db fluxr.db   # Run one scenario and journal it
//	fluxr test ./scenarios                  # Run scenarios against golden files
//	fluxr validate scenario.cue             # Check scenarios without running them
//	fluxr trace --db fluxr.db --session s1  # Show a journaled session
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/fluxr/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Commands report their own ExitErrors; anything else came from
		// cobra itself (unknown flag, wrong arg count).
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(cli.ExitCommandError)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
