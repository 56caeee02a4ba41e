package resolver

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/runfile"
	"github.com/roach88/runcache/internal/testutil"
	"github.com/roach88/runcache/internal/workspace"
)

type fixture struct {
	fs     billy.Filesystem
	reg    registry.Registry
	env    *Env
	loader *countingLoader
}

// countingLoader records every path it loads.
type countingLoader struct {
	runfile.Loader
	loads []string
}

func (l *countingLoader) Load(ctx context.Context, path, target string, mode runfile.MonitorMode) (*workspace.Workspace, error) {
	l.loads = append(l.loads, path)
	return l.Loader.Load(ctx, path, target, mode)
}

// newFixture writes run files for runs into a memfs and wires an Env over
// an in-memory registry with separate monitors.
func newFixture(t *testing.T, runs ...int) *fixture {
	t.Helper()
	return newFixtureWith(t, registry.NewMemory(), runs...)
}

func newFixtureWith(t *testing.T, reg registry.Registry, runs ...int) *fixture {
	t.Helper()
	fs := testutil.NewFS()
	require.NoError(t, testutil.WriteRuns(fs, runs...))
	require.NoError(t, testutil.WriteFile(fs, testutil.CalDir+"/det.yaml", testutil.DetectorTable))

	logger := testutil.DiscardLogger()
	loc := locate.New(fs, []string{testutil.DataDir, testutil.CalDir}, locate.WithExtensions(".yaml"))
	loader := &countingLoader{Loader: runfile.NewLoader(fs, reg, logger)}

	env := &Env{
		Registry:    reg,
		Locator:     loc,
		Loader:      loader,
		Applier:     calib.NewDetectorApplier(loc, fs, logger),
		Logger:      logger,
		Instrument:  testutil.Instrument,
		Extension:   ".yaml",
		MonitorMode: runfile.Separate,
	}
	return &fixture{fs: fs, reg: reg, env: env, loader: loader}
}

func (f *fixture) names(t *testing.T) []string {
	t.Helper()
	names, err := f.reg.Names(context.Background())
	require.NoError(t, err)
	return names
}

func (f *fixture) writeRun(t *testing.T, file *runfile.File) {
	t.Helper()
	require.NoError(t, testutil.WriteRunFile(f.fs, testutil.RunPath(file.RunNumber, ".yaml"), file))
}
