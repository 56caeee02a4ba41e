package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/resolver"
	"github.com/roach88/runcache/internal/workspace"
)

// EvictResult is the output of the evict command.
type EvictResult struct {
	Evicted []string `json:"evicted"`
}

// NewEvictCommand creates the evict command.
func NewEvictCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evict <workspace>",
		Short: "Remove a workspace and its companion monitors",
		Long: `Remove a registered workspace and its companion monitor workspace
from the registry.

Example:
  runcache evict SR_MAR011001RAW`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvict(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runEvict(opts *RootOptions, name string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.adopt(ctx, name)
	if err != nil {
		return err
	}

	evicted := []string{name}
	mon := workspace.MonitorName(name)
	if ok, err := s.store.Exists(ctx, mon); err == nil && ok {
		evicted = append(evicted, mon)
	}

	if err := r.Set(ctx, resolver.None{}); err != nil {
		return resolveError("failed to evict workspace", err)
	}

	return s.out.Print(EvictResult{Evicted: evicted}, func(w io.Writer) {
		for _, n := range evicted {
			fmt.Fprintf(w, "evicted %s\n", n)
		}
	})
}
