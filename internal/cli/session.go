package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/config"
	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/resolver"
	"github.com/roach88/runcache/internal/runfile"
	"github.com/roach88/runcache/internal/store"
	"github.com/roach88/runcache/internal/workspace"
)

// session wires a resolver environment from the global options: config,
// filesystem, registry store and logger.
type session struct {
	cfg   *config.Config
	store *store.Store
	env   *resolver.Env
	log   *slog.Logger
	out   *Printer
}

func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	fs := opts.Filesystem
	if fs == nil {
		fs = osfs.New("/")
	}

	cfgPath, err := filepath.Abs(opts.Config)
	if err != nil {
		return nil, commandError(ErrCodeConfig, "invalid config path", err)
	}
	cfg, err := config.Load(fs, cfgPath)
	if err != nil {
		return nil, commandError(ErrCodeConfig, "failed to load config", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Database
	}
	var storeOpts []store.Option
	if opts.Sessions != nil {
		storeOpts = append(storeOpts, store.WithSessionGenerator(opts.Sessions))
	}
	logger.Debug("opening database", "path", dbPath)
	st, err := store.Open(dbPath, storeOpts...)
	if err != nil {
		return nil, commandError(ErrCodeDatabase, "failed to open database", err)
	}

	dirs := make([]string, 0, len(cfg.SearchPaths))
	for _, dir := range cfg.SearchPaths {
		abs, err := filepath.Abs(dir)
		if err != nil {
			st.Close()
			return nil, commandError(ErrCodeConfig, "invalid search path", err)
		}
		dirs = append(dirs, abs)
	}
	loc := locate.New(fs, dirs, locate.WithExtensions(cfg.Extensions()...))

	env := &resolver.Env{
		Registry:    st,
		Locator:     loc,
		Loader:      runfile.NewLoader(fs, st, logger),
		Applier:     calib.NewDetectorApplier(loc, fs, logger),
		Logger:      logger,
		Instrument:  cfg.Instrument,
		Extension:   cfg.Extension,
		MonitorMode: cfg.MonitorMode(),
	}

	return &session{
		cfg:   cfg,
		store: st,
		env:   env,
		log:   logger,
		out:   &Printer{Format: opts.Format, Out: cmd.OutOrStdout()},
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Error("error closing database", "error", err)
	}
}

// resolver creates a resolver for role with the configured calibration.
func (s *session) resolver(role string) (*resolver.RunResolver, error) {
	prefix, ok := s.cfg.Prefix(role)
	if !ok {
		msg := fmt.Sprintf("unknown role %q (configured: %s)", role, strings.Join(s.cfg.Roles(), ", "))
		return nil, commandError(ErrCodeInvalidInput, msg, nil)
	}
	return resolver.New(s.env, prefix,
		resolver.WithCalibration(s.cfg.CalibrationSource()),
		resolver.WithEmbeddedCalibration(s.cfg.PreferEmbeddedCalibration),
	), nil
}

// roleForName returns the role whose prefix starts name, preferring the
// longest prefix.
func (s *session) roleForName(name string) (string, error) {
	roles := s.cfg.Roles()
	sort.SliceStable(roles, func(i, j int) bool {
		return len(s.cfg.Prefixes[roles[i]]) > len(s.cfg.Prefixes[roles[j]])
	})
	for _, role := range roles {
		if strings.HasPrefix(name, s.cfg.Prefixes[role]) {
			return role, nil
		}
	}
	return "", commandError(ErrCodeInvalidInput, fmt.Sprintf("workspace %q does not carry a configured role prefix", name), nil)
}

// adopt points a resolver at the registered workspace name.
func (s *session) adopt(ctx context.Context, name string) (*resolver.RunResolver, error) {
	if workspace.IsMonitorName(name) {
		return nil, commandError(ErrCodeInvalidInput, fmt.Sprintf("%q is a monitor companion; use its primary workspace", name), nil)
	}
	ok, err := s.store.Exists(ctx, name)
	if err != nil {
		return nil, commandError(ErrCodeDatabase, "failed to query registry", err)
	}
	if !ok {
		return nil, notFound(fmt.Sprintf("workspace %q is not registered", name))
	}

	role, err := s.roleForName(name)
	if err != nil {
		return nil, err
	}
	r, err := s.resolver(role)
	if err != nil {
		return nil, err
	}
	if err := r.Set(ctx, resolver.Text(name)); err != nil {
		return nil, resolveError("failed to adopt workspace", err)
	}
	return r, nil
}

// runArg makes a single path-like run reference absolute so it resolves
// against the working directory.
func runArg(arg string) string {
	if strings.ContainsAny(arg, ",+") || !strings.ContainsRune(arg, filepath.Separator) || filepath.IsAbs(arg) {
		return arg
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return arg
	}
	return abs
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
