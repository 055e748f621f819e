package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxr/internal/canonical"
	"github.com/roach88/fluxr/internal/debug"
	"github.com/roach88/fluxr/internal/flux"
	"github.com/roach88/fluxr/internal/journal"
	"github.com/roach88/fluxr/internal/metrics"
	"github.com/roach88/fluxr/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // journal path; empty disables journaling
	Mode     string // history mode override
	Metrics  bool   // print Prometheus metrics after the run
}

// RunResult is the output of the run command.
type RunResult struct {
	Name       string         `json:"name"`
	Session    string         `json:"session"`
	Pass       bool           `json:"pass"`
	Errors     []string       `json:"errors"`
	States     map[string]any `json:"states"`
	Mode       string         `json:"mode"`
	Snapshots  int            `json:"snapshots"`
	Current    int            `json:"current"`
	Journal    string         `json:"journal,omitempty"`
	WriteFails int64          `json:"journal_write_failures,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario",
		Long: `Run a YAML or CUE scenario on a fresh engine.

With --db every action and store change is journaled to SQLite under the
scenario's session token. FLUXR_DB and FLUXR_MODE provide defaults.

Example:
  fluxr run ./scenarios/counter.yaml
  fluxr run --db ./fluxr.db --mode DIFF ./scenarios/counter.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "history mode override (STATE|FULLSTATE|DIFF)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics to stderr after the run")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger()
	ctx := context.Background()

	sc, err := scenario.Load(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalid, "failed to load scenario", err)
	}

	runOpts := []scenario.RunOption{scenario.WithLogger(logger)}

	if mode := firstNonEmpty(opts.Mode, opts.Env.Mode); mode != "" {
		m, err := debug.ParseMode(mode)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --mode", err)
		}
		runOpts = append(runOpts, scenario.WithMode(m))
	}

	var recorder *journal.Recorder
	dbPath := firstNonEmpty(opts.Database, opts.Env.Database)
	if dbPath != "" {
		j, err := journal.Open(dbPath, journal.WithLogger(logger))
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open journal", err)
		}
		defer j.Close()

		runOpts = append(runOpts, scenario.WithHook(func(e *flux.Engine) (func(), error) {
			r, err := j.Attach(ctx, e)
			if err != nil {
				return nil, err
			}
			recorder = r
			return r.Dispose, nil
		}))
		f.VerboseLog("journaling to %s", dbPath)
	}

	var collector *metrics.Collector
	if opts.Metrics {
		collector = metrics.NewCollector("")
		runOpts = append(runOpts, scenario.WithHook(func(e *flux.Engine) (func(), error) {
			return collector.Attach(e).Dispose, nil
		}))
	}

	logger.Debug("running scenario", "name", sc.Name, "file", path)
	result, err := scenario.Run(sc, runOpts...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to run scenario", err)
	}

	out := RunResult{
		Name:      result.Name,
		Session:   result.Session,
		Pass:      result.Pass,
		Errors:    result.Errors,
		States:    result.States,
		Mode:      result.History.Mode.String(),
		Snapshots: len(result.History.States),
		Current:   result.History.CurrentState,
		Journal:   dbPath,
	}
	if recorder != nil {
		out.WriteFails = recorder.Failures()
	}

	if collector != nil {
		if err := collector.WriteText(f.GetErrWriter()); err != nil {
			logger.Warn("metrics output failed", "error", err)
		}
	}

	if err := outputRun(f, out); err != nil {
		return err
	}
	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Name))
	}
	return nil
}

func outputRun(f *OutputFormatter, out RunResult) error {
	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: out, Session: out.Session}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeTestFailed,
				Message: fmt.Sprintf("scenario %s failed", out.Name),
			}
		}
		return f.Respond(resp)
	}

	w := f.Writer
	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (session %s)\n", mark, out.Name, out.Session)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	fmt.Fprintf(w, "History: %d snapshot(s), current %d, mode %s\n", out.Snapshots, out.Current, out.Mode)
	for _, id := range canonical.SortedKeys(out.States) {
		fmt.Fprintf(w, "  %s = %s\n", id, render(out.States[id]))
	}
	if out.Journal != "" {
		fmt.Fprintf(w, "Journal: %s\n", out.Journal)
	}
	if out.WriteFails > 0 {
		fmt.Fprintf(w, "Warning: %d journal write(s) failed\n", out.WriteFails)
	}
	return nil
}

func render(v any) string {
	b, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
