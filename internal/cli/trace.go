package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxr/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Store    string // optional - filter changes to one store
}

// TraceEvent is one action with the store changes it caused.
type TraceEvent struct {
	Seq     int64         `json:"seq"`
	Channel string        `json:"channel"`
	Payload string        `json:"payload"`
	Tags    []string      `json:"tags,omitempty"`
	Changes []TraceChange `json:"changes"`
}

// TraceChange is one journaled store change.
type TraceChange struct {
	Store string   `json:"store"`
	State string   `json:"state"`
	Hash  string   `json:"hash"`
	Tags  []string `json:"tags,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string       `json:"session"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Actions int `json:"actions"`
	Changes int `json:"changes"`
	Stores  int `json:"stores"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a journaled session",
		Long: `Show the actions and store changes journaled for one session.

Without --session the journaled sessions are listed.

Examples:
  fluxr trace --db ./fluxr.db
  fluxr trace --db ./fluxr.db --session scenario-default
  fluxr trace --db ./fluxr.db --session scenario-default --store counter --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (or FLUXR_DB)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token to trace")
	cmd.Flags().StringVar(&opts.Store, "store", "", "only show changes of this store")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.formatter(cmd)

	dbPath := firstNonEmpty(opts.Database, opts.Env.Database)
	if dbPath == "" {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "--db is required", nil)
	}

	j, err := journal.Open(dbPath, journal.WithLogger(opts.logger()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Session == "" {
		sessions, err := j.ListSessions(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to list sessions", err)
		}
		if f.JSON() {
			return f.Success(map[string]any{"sessions": sessions})
		}
		if len(sessions) == 0 {
			fmt.Fprintln(f.Writer, "No sessions journaled.")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintln(f.Writer, s)
		}
		return nil
	}

	actions, err := j.ReadActions(ctx, opts.Session)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to read actions", err)
	}
	changes, err := j.ReadChanges(ctx, opts.Session)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to read changes", err)
	}

	result := buildTrace(opts.Session, actions, changes, opts.Store)
	if f.JSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: result, Session: result.Session})
	}
	return outputTraceText(f, result)
}

// buildTrace groups changes under the action whose seq they carry.
// SetState changes have no journaled action and are grouped under their
// own seq.
func buildTrace(session string, actions []journal.ActionRecord, changes []journal.ChangeRecord, storeFilter string) TraceResult {
	result := TraceResult{Session: session, Timeline: []TraceEvent{}}
	bySeq := make(map[int64]int, len(actions))

	for _, a := range actions {
		// A replayed action keeps its seq; its changes are grouped once.
		if _, ok := bySeq[a.Seq]; ok {
			continue
		}
		bySeq[a.Seq] = len(result.Timeline)
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:     a.Seq,
			Channel: a.Channel,
			Payload: a.Payload,
			Tags:    a.Tags,
			Changes: []TraceChange{},
		})
	}

	stores := make(map[string]struct{})
	for _, c := range changes {
		if storeFilter != "" && c.StoreID != storeFilter {
			continue
		}
		i, ok := bySeq[c.ActionSeq]
		if !ok {
			i = len(result.Timeline)
			bySeq[c.ActionSeq] = i
			result.Timeline = append(result.Timeline, TraceEvent{
				Seq:     c.ActionSeq,
				Channel: c.Channel,
				Payload: "null",
				Changes: []TraceChange{},
			})
		}
		result.Timeline[i].Changes = append(result.Timeline[i].Changes, TraceChange{
			Store: c.StoreID,
			State: c.State,
			Hash:  c.StateHash,
			Tags:  c.Tags,
		})
		stores[c.StoreID] = struct{}{}
		result.Stats.Changes++
	}

	sort.SliceStable(result.Timeline, func(a, b int) bool {
		return result.Timeline[a].Seq < result.Timeline[b].Seq
	})
	result.Stats.Actions = len(actions)
	result.Stats.Stores = len(stores)
	return result
}

func outputTraceText(f *OutputFormatter, result TraceResult) error {
	w := f.Writer
	if len(result.Timeline) == 0 {
		fmt.Fprintf(w, "No events found for session: %s\n", result.Session)
		return nil
	}

	fmt.Fprintf(w, "Session: %s\n\n", result.Session)
	for _, ev := range result.Timeline {
		line := fmt.Sprintf("[%d] %s %s", ev.Seq, ev.Channel, ev.Payload)
		if len(ev.Tags) > 0 {
			line += " {" + strings.Join(ev.Tags, ",") + "}"
		}
		fmt.Fprintln(w, line)
		for _, c := range ev.Changes {
			fmt.Fprintf(w, "    %s = %s\n", c.Store, c.State)
			if f.Verbose {
				fmt.Fprintf(w, "      hash %s\n", c.Hash)
			}
		}
	}
	fmt.Fprintf(w, "\n%d action(s), %d change(s) across %d store(s)\n",
		result.Stats.Actions, result.Stats.Changes, result.Stats.Stores)
	return nil
}
