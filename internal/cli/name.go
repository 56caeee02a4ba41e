package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/resolver"
)

// NameOptions holds flags for the name command.
type NameOptions struct {
	*RootOptions
	Role      string
	Component string
	Suffix    string
}

// NameResult is the output of the name command.
type NameResult struct {
	Name     string            `json:"name"`
	Runs     []int             `json:"runs"`
	Identity resolver.Identity `json:"identity"`
}

// NewNameCommand creates the name command.
func NewNameCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NameOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "name <run>",
		Short: "Print the canonical workspace name of a run",
		Long: `Print the canonical workspace name a run reference resolves to.

Nothing is loaded and the registry is not modified.

Examples:
  runcache name 11001
  runcache name MAR11001,MAR11002 --role vanadium
  runcache name 11001 --component cut --suffix RAW`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runName(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", "sample", "reduction role selecting the name prefix")
	cmd.Flags().StringVar(&opts.Component, "component", "", "free-form name component")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", "", "action suffix")

	return cmd
}

func runName(opts *NameOptions, arg string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.resolver(opts.Role)
	if err != nil {
		return err
	}
	if err := r.Set(ctx, resolver.Text(runArg(arg))); err != nil {
		return resolveError("failed to resolve run", err)
	}
	if opts.Component != "" {
		if _, err := r.SetComponent(ctx, opts.Component); err != nil {
			return resolveError("failed to set component", err)
		}
	}
	if opts.Suffix != "" {
		if _, err := r.SetActionSuffix(ctx, opts.Suffix); err != nil {
			return resolveError("failed to set suffix", err)
		}
	}

	name, err := r.CanonicalName(ctx)
	if err != nil {
		return resolveError("failed to build name", err)
	}

	result := NameResult{Name: name, Runs: r.Runs(), Identity: r.Identity()}
	return s.out.Print(result, func(w io.Writer) {
		fmt.Fprintln(w, name)
	})
}
