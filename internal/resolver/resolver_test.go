package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/runfile"
	"github.com/roach88/runcache/internal/store"
	"github.com/roach88/runcache/internal/testutil"
	"github.com/roach88/runcache/internal/workspace"
)

func TestEndToEnd_NameSuffixSynchronize(t *testing.T) {
	f := newFixture(t, 12345)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(12345)))

	name, err := r.CanonicalName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC012345", name)
	assert.Empty(t, f.names(t), "CanonicalName must not materialize")

	ws, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC012345", ws.Name)
	assert.Equal(t, []string{"SR_ABC012345", "SR_ABC012345_monitors"}, f.names(t))

	suffixed, err := r.SetActionSuffix(ctx, "RAW")
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC012345RAW", suffixed)

	// Nothing is renamed until Synchronize
	name, err = r.CanonicalName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC012345", name)

	require.NoError(t, r.Synchronize(ctx, ws))
	assert.Equal(t, "SR_ABC012345RAW", ws.Name)
	assert.Equal(t, []string{"SR_ABC012345RAW", "SR_ABC012345RAW_monitors"}, f.names(t))

	name, err = r.CanonicalName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC012345RAW", name)
}

func TestEndToEnd_PersistentRegistry(t *testing.T) {
	reg, err := store.Open(filepath.Join(t.TempDir(), "registry.db"),
		store.WithSessionGenerator(testutil.NewFixedSession("s1")))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	f := newFixtureWith(t, reg, 12345)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(12345)))
	ws, err := r.Get(ctx)
	require.NoError(t, err)
	_, err = r.SetActionSuffix(ctx, "RAW")
	require.NoError(t, err)
	require.NoError(t, r.Synchronize(ctx, ws))

	got, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC012345RAW", got.Name)
	run, ok, err := r.RunNumber(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12345, run)

	events, err := reg.ReadEvents(ctx)
	require.NoError(t, err)
	want := []store.Event{
		{Seq: 1, Session: "s1", Op: store.OpAdd, Name: "SR_ABC012345"},
		{Seq: 2, Session: "s1", Op: store.OpAdd, Name: "SR_ABC012345_monitors"},
		{Seq: 3, Session: "s1", Op: store.OpRename, Name: "SR_ABC012345", Target: "SR_ABC012345RAW"},
		{Seq: 4, Session: "s1", Op: store.OpRename, Name: "SR_ABC012345_monitors", Target: "SR_ABC012345RAW_monitors"},
	}
	assert.Equal(t, want, events)
}

func TestSet_EvictsPreviousIdentity(t *testing.T) {
	f := newFixture(t, 1, 2)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	_, err := r.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"SR_ABC000001", "SR_ABC000001_monitors"}, f.names(t))

	require.NoError(t, r.Set(ctx, Number(2)))
	assert.Empty(t, f.names(t), "primary and companion must be evicted")

	_, err = r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SR_ABC000002", "SR_ABC000002_monitors"}, f.names(t))
}

func TestSet_NoneEvictsAndEmpties(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	_, err := r.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Set(ctx, None{}))
	assert.Empty(t, f.names(t))
	assert.False(t, r.Identity().HasRun)
	assert.Nil(t, r.Runs())

	ws, err := r.Get(ctx)
	assert.NoError(t, err)
	assert.Nil(t, ws)

	require.NoError(t, r.Set(ctx, nil))
}

func TestSet_SameWorkspaceDoesNotEvict(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	ws, err := r.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Set(ctx, Materialized{Workspace: ws}))
	require.NoError(t, r.Set(ctx, Materialized{Workspace: ws}))
	require.NoError(t, r.Set(ctx, Text("SR_ABC000001")))
	assert.Equal(t, []string{"SR_ABC000001", "SR_ABC000001_monitors"}, f.names(t))

	id := r.Identity()
	assert.Equal(t, "SR_ABC000001", id.Name)
	assert.Equal(t, 1, id.Run)
	assert.False(t, id.BoundToSum)

	_, err = r.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, f.loader.loads, 1)
}

func TestSet_SameRunReusesRegistryEntry(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	first, err := r.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Set(ctx, Number(1)))
	second, err := r.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, f.loader.loads, 1)
}

func TestSet_AggregationBinding(t *testing.T) {
	f := newFixture(t, 101, 102, 103)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Runs(101, 102, 103)))
	assert.True(t, r.Identity().BoundToSum)
	assert.Equal(t, []int{101, 102, 103}, r.Runs())

	ws, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC000103SumOf3", ws.Name)
	assert.Contains(t, ws.Name, "SumOf3")
	assert.Equal(t, []int64{306, 3}, ws.Spectra[0].Counts)

	run, ok, err := r.RunNumber(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 103, run)

	mon, err := f.reg.Get(ctx, "SR_ABC000103SumOf3_monitors")
	require.NoError(t, err)
	assert.Equal(t, []int64{30}, mon.Spectra[0].Counts)
	assert.Equal(t, []string{"SR_ABC000103SumOf3", "SR_ABC000103SumOf3_monitors"}, f.names(t))
}

func TestSet_NumberRevalidatesAggregation(t *testing.T) {
	f := newFixture(t, 101, 102, 103)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Runs(101, 102, 103)))
	_, err := r.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Set(ctx, Number(102)))
	assert.True(t, r.Identity().BoundToSum)
	assert.Empty(t, f.names(t), "previous sum must be evicted")
	name, err := r.CanonicalName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC000102SumOf2", name)

	require.NoError(t, r.Set(ctx, Number(999)))
	assert.False(t, r.Identity().BoundToSum)
	name, err = r.CanonicalName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC000999", name)
}

func TestSet_TextForms(t *testing.T) {
	tests := []struct {
		name     string
		text     Text
		wantName string
		wantSum  bool
		wantRuns []int
	}{
		{"plain run", "7", "SR_ABC000007", false, []int{7}},
		{"file name", "ABC7.yaml", "SR_ABC000007", false, []int{7}},
		{"other instrument", "XYZ42", "SR_XYZ000042", false, []int{42}},
		{"comma list", "ABC101,ABC102", "SR_ABC000102SumOf2", true, []int{101, 102}},
		{"plus list", "101+102+103", "SR_ABC000103SumOf3", true, []int{101, 102, 103}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := New(f.env, "SR_")
			ctx := context.Background()

			require.NoError(t, r.Set(ctx, tt.text))
			name, err := r.CanonicalName(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSum, r.Identity().BoundToSum)
			assert.Equal(t, tt.wantRuns, r.Runs())
		})
	}
}

func TestSet_TextPathHint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, testutil.WriteRunFile(f.fs, "/other/ABC5.yaml", testutil.RunFile(5)))
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Text("/other/ABC5.yaml")))
	id := r.Identity()
	assert.Equal(t, "/other", id.Path)
	assert.Equal(t, ".yaml", id.Ext)

	ws, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC000005", ws.Name)
	assert.Equal(t, "/other/ABC5.yaml", r.Identity().Path)
}

func TestSet_ListForms(t *testing.T) {
	f := newFixture(t)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, List{Number(9)}))
	assert.False(t, r.Identity().BoundToSum)
	assert.Equal(t, []int{9}, r.Runs())

	require.NoError(t, r.Set(ctx, List{Number(1), Text("ABC2,ABC3")}))
	assert.True(t, r.Identity().BoundToSum)
	assert.Equal(t, []int{1, 2, 3}, r.Runs())

	require.NoError(t, r.Set(ctx, List{}))
	assert.False(t, r.Identity().HasRun)
}

func TestSet_InvalidValues(t *testing.T) {
	f := newFixture(t)
	r := New(f.env, "SR_")
	ctx := context.Background()

	tests := []struct {
		name string
		v    Value
	}{
		{"unparseable text", Text("abc")},
		{"negative number", Number(-1)},
		{"workspace in list", List{Number(1), Materialized{Workspace: workspace.New("x")}}},
		{"duplicate runs", Runs(1, 1)},
		{"unnamed workspace", Materialized{Workspace: workspace.New("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Set(ctx, tt.v)
			require.Error(t, err)
			assert.True(t, IsInvalidValue(err), "got %v", err)
		})
	}
}

func TestAdopt_DecomposesName(t *testing.T) {
	tests := []struct {
		name      string
		wsName    string
		run       int
		summed    []int
		component string
		suffix    string
	}{
		{"plain", "SR_ABC000007", 7, nil, "", ""},
		{"action suffix", "SR_ABC000007RAW", 7, nil, "", "RAW"},
		{"component", "SR_ABCcut000007", 7, nil, "cut", ""},
		{"component and suffix", "SR_ABCcut000007SumOf2RAW", 7, []int{6, 7}, "cut", "RAW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := New(f.env, "SR_")
			ctx := context.Background()

			ws := workspace.New(tt.wsName)
			ws.SetRunNumber(tt.run)
			ws.Logs[workspace.LogInstrument] = meta.String("ABC")
			if tt.summed != nil {
				ws.Logs[workspace.LogSummedRuns] = meta.Ints(tt.summed...)
			}

			require.NoError(t, r.Set(ctx, Materialized{Workspace: ws}))
			id := r.Identity()
			assert.Equal(t, tt.component, id.Component)
			assert.Equal(t, tt.suffix, id.Suffix)
			assert.Equal(t, tt.run, id.Run)
			assert.False(t, id.BoundToSum)

			// The adopted name rebuilds unchanged, so Synchronize renames nothing
			require.NoError(t, r.Synchronize(ctx, nil))
			assert.Equal(t, []string{tt.wsName}, f.names(t))
		})
	}
}

func TestAdopt_EvictsPrevious(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	_, err := r.Get(ctx)
	require.NoError(t, err)

	other := workspace.New("SR_ABC000050")
	other.SetRunNumber(50)
	require.NoError(t, r.Set(ctx, Materialized{Workspace: other}))
	assert.Equal(t, []string{"SR_ABC000050"}, f.names(t))

	run, ok, err := r.RunNumber(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 50, run)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(42)))
	ws, err := r.Get(ctx)
	assert.Nil(t, ws)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, locate.ErrNotFound))
}

func TestGet_SumMemberNotFound(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Runs(1, 2)))
	_, err := r.Get(ctx)
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Empty(t, f.names(t))
}

func TestCanonicalName_EmptyIdentity(t *testing.T) {
	f := newFixture(t)
	r := New(f.env, "SR_")

	_, err := r.CanonicalName(context.Background())
	assert.True(t, IsInvalidState(err))

	_, err = r.FindFile(context.Background())
	assert.True(t, IsInvalidState(err))
}

func TestSetActionSuffix_BeforeMaterialize(t *testing.T) {
	f := newFixture(t, 3)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(3)))
	_, err := r.CanonicalName(ctx)
	require.NoError(t, err)

	_, err = r.SetActionSuffix(ctx, "NORM")
	require.NoError(t, err)
	name, err := r.CanonicalName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SR_ABC000003NORM", name)
}

func TestSetComponent(t *testing.T) {
	f := newFixture(t)
	r := New(f.env, "SR_")
	ctx := context.Background()
	require.NoError(t, r.Set(ctx, Number(3)))

	name, err := r.SetComponent(ctx, "cut")
	require.NoError(t, err)
	assert.Equal(t, "SR_ABCcut000003", name)

	_, err = r.SetComponent(ctx, "cut2")
	assert.True(t, IsInvalidValue(err))
}

func TestApplyCalibration_Idempotent(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_", WithCalibration(calib.FromFile("det.yaml")))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	ws, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file:det.yaml", ws.Calibration)
	record := ws.Logs[workspace.LogDetectorCalibration]
	require.NotNil(t, record)

	require.NoError(t, r.ApplyCalibration(ctx, ws, calib.FromFile("missing.yaml"), false))
	assert.Equal(t, "file:det.yaml", ws.Calibration)
	assert.Equal(t, record, ws.Logs[workspace.LogDetectorCalibration])

	again, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file:det.yaml", again.Calibration)
}

func TestApplyCalibration_PrefersEmbedded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, testutil.WriteFile(f.fs, "/cal/emb.yaml", testutil.DetectorTable))

	embedded := testutil.RunFile(7)
	embedded.Calibration = "emb.yaml"
	f.writeRun(t, embedded)

	none := testutil.RunFile(8)
	none.Calibration = "none"
	f.writeRun(t, none)

	r := New(f.env, "SR_", WithCalibration(calib.FromFile("det.yaml")), WithEmbeddedCalibration(true))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(7)))
	ws, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file:emb.yaml", ws.Calibration)

	require.NoError(t, r.Set(ctx, Number(8)))
	ws, err = r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file:det.yaml", ws.Calibration)
}

func TestApplyCalibration_Unavailable(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_", WithCalibration(calib.FromFile("missing.yaml")))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	ws, err := r.Get(ctx)
	require.Error(t, err)
	assert.True(t, IsCalibrationUnavailable(err))
	assert.True(t, errors.Is(err, calib.ErrUnavailable))

	// Still materialized, just not calibrated
	require.NotNil(t, ws)
	assert.False(t, ws.Calibrated())
	ok, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApplyCalibration_AlreadyCalibratedSource(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_", WithCalibration(calib.AlreadyCalibrated("upstream")))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	ws, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "calibrated:upstream", ws.Calibration)
	_, ok := ws.Logs[workspace.LogDetectorCalibration]
	assert.False(t, ok)
}

func TestApplyCalibration_NilWorkspace(t *testing.T) {
	f := newFixture(t)
	r := New(f.env, "SR_")
	err := r.ApplyCalibration(context.Background(), nil, calib.None(), false)
	assert.True(t, IsInvalidState(err))
}

func TestClearCompanionMonitor(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.ClearCompanionMonitor(ctx))

	require.NoError(t, r.Set(ctx, Number(1)))
	_, err := r.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, r.ClearCompanionMonitor(ctx))
	assert.Equal(t, []string{"SR_ABC000001"}, f.names(t))
}

func TestMonitors(t *testing.T) {
	ctx := context.Background()

	t.Run("separate", func(t *testing.T) {
		f := newFixture(t, 1)
		r := New(f.env, "SR_")
		require.NoError(t, r.Set(ctx, Number(1)))

		mon, err := r.Monitors(ctx)
		require.NoError(t, err)
		assert.Equal(t, "SR_ABC000001_monitors", mon.Name)
	})

	t.Run("combined", func(t *testing.T) {
		f := newFixture(t, 1)
		f.env.MonitorMode = runfile.Combined
		r := New(f.env, "SR_")
		require.NoError(t, r.Set(ctx, Number(1)))

		mon, err := r.Monitors(ctx)
		require.NoError(t, err)
		assert.Equal(t, "SR_ABC000001_monitors", mon.Name)
		require.Len(t, mon.Spectra, 1)
		assert.Equal(t, 100, mon.Spectra[0].ID)
		assert.Equal(t, []string{"SR_ABC000001", "SR_ABC000001_monitors"}, f.names(t))
	})

	t.Run("no monitor spectra", func(t *testing.T) {
		f := newFixture(t)
		file := testutil.RunFile(4)
		file.Monitors = nil
		f.writeRun(t, file)
		f.env.MonitorMode = runfile.Combined
		r := New(f.env, "SR_")
		require.NoError(t, r.Set(ctx, Number(4)))

		_, err := r.Monitors(ctx)
		assert.True(t, IsNotFound(err))
	})

	t.Run("empty identity", func(t *testing.T) {
		f := newFixture(t)
		_, err := New(f.env, "SR_").Monitors(ctx)
		assert.True(t, IsInvalidState(err))
	})
}

func TestRemove_KeepsIdentity(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	_, err := r.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx))
	assert.Empty(t, f.names(t))
	assert.True(t, r.Identity().HasRun)

	_, err = r.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, f.loader.loads, 2)
}

func TestFindFileAndExtension(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, Number(1)))
	assert.Equal(t, ".yaml", r.FileExtension())

	r.SetFileExtension("raw")
	assert.Equal(t, ".raw", r.FileExtension())

	path, err := r.FindFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/ABC000001.yaml", path)
	assert.Equal(t, ".yaml", r.FileExtension(), "the found extension replaces the preference")
	assert.Empty(t, f.names(t), "FindFile must not load")
}

func TestExists(t *testing.T) {
	f := newFixture(t, 1)
	r := New(f.env, "SR_")
	ctx := context.Background()

	ok, err := r.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, Number(1)))
	ok, err = r.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Get(ctx)
	require.NoError(t, err)
	ok, err = r.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSeparateResolversShareRegistry(t *testing.T) {
	f := newFixture(t, 1)
	sample := New(f.env, "SR_")
	white := New(f.env, "WB_")
	ctx := context.Background()

	require.NoError(t, sample.Set(ctx, Number(1)))
	require.NoError(t, white.Set(ctx, Number(1)))
	_, err := sample.Get(ctx)
	require.NoError(t, err)
	_, err = white.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, sample.Set(ctx, None{}))
	assert.Equal(t, []string{"WB_ABC000001", "WB_ABC000001_monitors"}, f.names(t))
}
