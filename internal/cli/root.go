package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string
	Database string // overrides the database path of the config

	// Filesystem overrides the filesystem config and run files are read
	// from (for testing). If nil, the host filesystem is used.
	Filesystem billy.Filesystem

	// Sessions overrides the registry session generator (for testing).
	// If nil, defaults to UUIDv7 session tokens.
	Sessions store.SessionGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the runcache CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runcache",
		Short: "runcache - run-to-workspace resolution and caching",
		Long: `Resolve experiment runs to named workspaces and cache them in a
persistent registry.

Run references are run numbers ("11001"), file names ("MAR11001.nxs"),
paths, or sums ("11001,11002" or "11001+11002"). Each role (sample,
vanadium, monovan, ...) names its workspaces with its own prefix.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return commandError(ErrCodeInvalidInput, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "runcache.yaml", "path to config file (.yaml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite registry (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewNameCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewSuffixCommand(opts))
	cmd.AddCommand(NewLsCommand(opts))
	cmd.AddCommand(NewEvictCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on stdout as a JSON envelope with --format json, and on
// stderr otherwise.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	p := &Printer{Format: opts.Format, Out: stderr}
	if p.json() {
		p.Out = stdout
	}
	_ = p.Fail(err)
	return exitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
