package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/resolver"
	"github.com/roach88/runcache/internal/workspace"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Role      string
	Component string
	Suffix    string
}

// LoadResult is the output of the load command.
type LoadResult struct {
	Name        string   `json:"name"`
	Run         int      `json:"run"`
	Runs        []int    `json:"runs"`
	Spectra     int      `json:"spectra"`
	Calibration string   `json:"calibration,omitempty"`
	Path        string   `json:"path,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <run>",
		Short: "Load or sum a run into the registry",
		Long: `Materialize a run reference into the registry.

A single run is loaded from its run file; a run list is loaded and summed.
When the canonical name is already registered nothing is loaded. The
configured calibration is applied once.

Examples:
  runcache load 11001
  runcache load 11001+11002 --role vanadium
  runcache load 11001 --suffix RAW --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", "sample", "reduction role selecting the name prefix")
	cmd.Flags().StringVar(&opts.Component, "component", "", "free-form name component")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", "", "action suffix applied after loading")

	return cmd
}

func runLoad(opts *LoadOptions, arg string, cmd *cobra.Command) error {
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

	var warnings []string
	ws, err := r.Get(ctx)
	switch {
	case ws != nil && resolver.IsCalibrationUnavailable(err):
		s.log.Warn("workspace left uncalibrated", "name", ws.Name, "error", err)
		warnings = append(warnings, err.Error())
	case err != nil:
		return resolveError("failed to load run", err)
	}

	if opts.Suffix != "" {
		if _, err := r.SetActionSuffix(ctx, opts.Suffix); err != nil {
			return resolveError("failed to set suffix", err)
		}
		if err := r.Synchronize(ctx, ws); err != nil {
			return resolveError("failed to rename workspace", err)
		}
	}

	return s.out.Print(loadResult(r, ws, warnings), func(w io.Writer) {
		fmt.Fprintf(w, "%s (run %d, %d spectra)\n", ws.Name, r.Identity().Run, len(ws.Spectra))
		for _, warning := range warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
	})
}

func loadResult(r *resolver.RunResolver, ws *workspace.Workspace, warnings []string) LoadResult {
	id := r.Identity()
	run := id.Run
	if n, ok := ws.RunNumber(); ok {
		run = n
	}
	return LoadResult{
		Name:        ws.Name,
		Run:         run,
		Runs:        r.Runs(),
		Spectra:     len(ws.Spectra),
		Calibration: ws.Calibration,
		Path:        id.Path,
		Warnings:    warnings,
	}
}
