package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RenameResult is the output of the suffix command.
type RenameResult struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewSuffixCommand creates the suffix command.
func NewSuffixCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suffix <workspace> <suffix>",
		Short: "Set the action suffix of a registered workspace",
		Long: `Record the action suffix of a processing step on a registered
workspace and rename it, together with its companion monitor workspace.

The role is taken from the workspace name prefix. An empty suffix removes
the current one.

Examples:
  runcache suffix SR_MAR011001 RAW
  runcache suffix SR_MAR011001RAW ""`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuffix(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runSuffix(opts *RootOptions, name, suffix string, cmd *cobra.Command) error {
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
	if _, err := r.SetActionSuffix(ctx, suffix); err != nil {
		return resolveError("failed to set suffix", err)
	}
	if err := r.Synchronize(ctx, nil); err != nil {
		return resolveError("failed to rename workspace", err)
	}
	to, err := r.CanonicalName(ctx)
	if err != nil {
		return resolveError("failed to build name", err)
	}

	result := RenameResult{From: name, To: to}
	return s.out.Print(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s -> %s\n", result.From, result.To)
	})
}
