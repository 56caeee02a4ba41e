package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// LsOptions holds flags for the ls command.
type LsOptions struct {
	*RootOptions
	Run int
}

// LsResult is the output of the ls command.
type LsResult struct {
	Names []string `json:"names"`
}

// NewLsCommand creates the ls command.
func NewLsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List registered workspaces",
		Long: `List the workspace names in the registry in byte order.

Examples:
  runcache ls
  runcache ls --run 11001 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Run, "run", -1, "only workspaces recording this run number")

	return cmd
}

func runLs(opts *LsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var names []string
	if opts.Run >= 0 {
		names, err = s.store.NamesForRun(ctx, opts.Run)
	} else {
		names, err = s.store.Names(ctx)
	}
	if err != nil {
		return commandError(ErrCodeDatabase, "failed to list workspaces", err)
	}

	return s.out.Print(LsResult{Names: names}, func(w io.Writer) {
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
	})
}
