package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Name    string // optional - filter to events touching this name
	Session string // optional - filter to one session
}

// TraceResult holds the trace output.
type TraceResult struct {
	Events []store.Event `json:"events"`
	Stats  TraceStats    `json:"stats"`
}

// TraceStats counts events per operation.
type TraceStats struct {
	Total   int `json:"total"`
	Adds    int `json:"adds"`
	Renames int `json:"renames"`
	Deletes int `json:"deletes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the registry event log",
		Long: `Show the append-only log of registry additions, renames and
deletions in the order they happened.

Examples:
  runcache trace
  runcache trace --name SR_MAR011001
  runcache trace --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "only events whose source or target is this name")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only events of this session")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var events []store.Event
	if opts.Session != "" {
		events, err = s.store.ReadSessionEvents(ctx, opts.Session)
	} else {
		events, err = s.store.ReadEvents(ctx)
	}
	if err != nil {
		return commandError(ErrCodeDatabase, "failed to read events", err)
	}

	result := TraceResult{Events: filterByName(events, opts.Name)}
	for _, ev := range result.Events {
		result.Stats.Total++
		switch ev.Op {
		case store.OpAdd:
			result.Stats.Adds++
		case store.OpRename:
			result.Stats.Renames++
		case store.OpDelete:
			result.Stats.Deletes++
		}
	}

	return s.out.Print(result, func(w io.Writer) {
		outputTraceText(w, result, opts.Verbose)
	})
}

// filterByName keeps events whose source or target is name.
func filterByName(events []store.Event, name string) []store.Event {
	if name == "" {
		return events
	}
	out := make([]store.Event, 0, len(events))
	for _, ev := range events {
		if ev.Name == name || ev.Target == name {
			out = append(out, ev)
		}
	}
	return out
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No registry events.")
		return
	}
	for _, ev := range result.Events {
		line := fmt.Sprintf("%4d  %-6s  %s", ev.Seq, ev.Op, ev.Name)
		if ev.Target != "" {
			line += " -> " + ev.Target
		}
		if verbose {
			line += "  [" + ev.Session + "]"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d events: %d added, %d renamed, %d deleted\n",
		result.Stats.Total, result.Stats.Adds, result.Stats.Renames, result.Stats.Deletes)
}
