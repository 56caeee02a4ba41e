package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/resolver"
	"github.com/roach88/runcache/internal/runfile"
	"github.com/roach88/runcache/internal/store"
	"github.com/roach88/runcache/internal/testutil"
	"github.com/roach88/runcache/internal/workspace"
)

const defaultExtension = ".yaml"

// Harness executes one scenario against a fresh registry.
type Harness struct {
	store     *store.Store
	fs        billy.Filesystem
	env       *resolver.Env
	loader    *countingLoader
	clock     *testutil.StepClock
	logger    *slog.Logger
	resolvers map[string]resolver.Accessor
}

// countingLoader counts run files read from disk.
type countingLoader struct {
	runfile.Loader
	loads int
}

func (l *countingLoader) Load(ctx context.Context, path, target string, mode runfile.MonitorMode) (*workspace.Workspace, error) {
	l.loads++
	return l.Loader.Load(ctx, path, target, mode)
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh in-memory SQLite registry, an in-memory filesystem
// holding the scenario's run files and a step clock starting at zero.
// A returned error means the scenario could not be set up; step and
// assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step, result)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     h.store,
		Resolvers: h.resolvers,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	inst := scenario.Instrument
	if inst == "" {
		inst = testutil.Instrument
	}

	st, err := store.Open(":memory:", store.WithSessionGenerator(testutil.NewFixedSession(scenario.Session)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	fs := testutil.NewFS()
	exts, err := writeFixtures(fs, inst, scenario)
	if err != nil {
		st.Close()
		return nil, err
	}

	logger := testutil.DiscardLogger()
	loc := locate.New(fs, []string{testutil.DataDir, testutil.CalDir}, locate.WithExtensions(exts...))
	loader := &countingLoader{Loader: runfile.NewLoader(fs, st, logger)}

	mode := runfile.Separate
	if scenario.Monitors == "combined" {
		mode = runfile.Combined
	}

	h := &Harness{
		store: st,
		fs:    fs,
		env: &resolver.Env{
			Registry:    st,
			Locator:     loc,
			Loader:      loader,
			Applier:     calib.NewDetectorApplier(loc, fs, logger),
			Logger:      logger,
			Instrument:  inst,
			Extension:   defaultExtension,
			MonitorMode: mode,
		},
		loader:    loader,
		clock:     testutil.NewStepClock(),
		logger:    logger,
		resolvers: make(map[string]resolver.Accessor, len(scenario.Resolvers)),
	}

	for _, def := range scenario.Resolvers {
		local := resolver.New(h.env, def.Prefix,
			resolver.WithCalibration(calib.FromFile(def.Calibration)),
			resolver.WithEmbeddedCalibration(def.PreferEmbedded),
		)
		if def.Host == "" {
			h.resolvers[def.Role] = local
			continue
		}
		host, ok := h.resolvers[def.Host]
		if !ok {
			st.Close()
			return nil, fmt.Errorf("resolver %q: unknown host %q", def.Role, def.Host)
		}
		h.resolvers[def.Role] = resolver.NewDependent(local, host)
	}

	return h, nil
}

// writeFixtures writes run files and extra files and returns the
// extensions the locator should try, default first.
func writeFixtures(fs billy.Filesystem, inst string, scenario *Scenario) ([]string, error) {
	exts := []string{defaultExtension}
	for _, fx := range scenario.Runs {
		ext := fx.Ext
		if ext == "" {
			ext = defaultExtension
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}

		f := testutil.RunFile(fx.Run)
		f.Instrument = inst
		f.EventMode = fx.EventMode
		f.Calibration = fx.Calibration
		if fx.NoMonitors {
			f.Monitors = nil
		}
		path := filepath.Join(testutil.DataDir, fmt.Sprintf("%s%0*d%s", inst, locate.RunDigits, fx.Run, ext))
		if err := testutil.WriteRunFile(fs, path, f); err != nil {
			return nil, fmt.Errorf("failed to write run %d: %w", fx.Run, err)
		}
	}

	for path, content := range scenario.Files {
		if err := testutil.WriteFile(fs, path, content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return exts, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) {
	ev := TraceEvent{
		Step:     h.clock.Next(),
		Resolver: step.Resolver,
		Op:       step.Op,
		Arg:      step.Arg,
		Value:    step.Value,
	}

	res, err := h.invoke(ctx, h.resolvers[step.Resolver], step)
	ev.Result = res
	if err != nil {
		ev.Error = errorCode(err)
		h.logger.Debug("step failed", "step", ev.Step, "op", step.Op, "error", err)
	}
	result.AddTrace(ev)

	label := fmt.Sprintf("flow[%d] %s.%s", index, step.Resolver, step.Op)
	if step.Expect == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, err))
		}
		return
	}

	want := step.Expect
	switch {
	case want.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("%s: expected error %s, got none", label, want.Error))
	case want.Error != "" && ev.Error != want.Error:
		result.AddError(fmt.Sprintf("%s: expected error %s, got %s (%v)", label, want.Error, ev.Error, err))
	case want.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, err))
	}
	if want.Result != nil && !matchValue(res, want.Result) {
		result.AddError(fmt.Sprintf("%s: expected result %v, got %v", label, want.Result, res))
	}
}

func (h *Harness) invoke(ctx context.Context, acc resolver.Accessor, step Step) (any, error) {
	switch step.Op {
	case OpSet:
		v, err := h.toValue(ctx, step.Value)
		if err != nil {
			return nil, err
		}
		return nil, acc.Set(ctx, v)

	case OpGet:
		ws, err := acc.Get(ctx)
		return workspaceName(ws), err

	case OpName:
		return stringResult(acc.CanonicalName(ctx))

	case OpSuffix:
		return stringResult(acc.SetActionSuffix(ctx, step.Arg))

	case OpComponent:
		return stringResult(acc.SetComponent(ctx, step.Arg))

	case OpSync:
		if err := acc.Synchronize(ctx, nil); err != nil {
			return nil, err
		}
		return stringResult(acc.Identity().Name, nil)

	case OpRunNumber:
		run, ok, err := acc.RunNumber(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return run, nil

	case OpFind:
		return stringResult(acc.FindFile(ctx))

	case OpExt:
		if step.Arg != "" {
			acc.SetFileExtension(step.Arg)
		}
		return acc.FileExtension(), nil

	case OpMonitors:
		mon, err := acc.Monitors(ctx)
		return workspaceName(mon), err

	case OpExists:
		ok, err := acc.Exists(ctx)
		if err != nil {
			return nil, err
		}
		return ok, nil

	case OpRemove:
		return nil, acc.Remove(ctx)

	case OpClearMonitors:
		return nil, acc.ClearCompanionMonitor(ctx)

	case OpCalibrate:
		ws, err := acc.Get(ctx)
		if err != nil && !resolver.IsCalibrationUnavailable(err) {
			return nil, err
		}
		if err := acc.ApplyCalibration(ctx, ws, calib.FromFile(step.Arg), false); err != nil {
			return nil, err
		}
		return ws.Calibration, nil

	case OpRuns:
		runs := acc.Runs()
		out := make([]any, len(runs))
		for i, run := range runs {
			out[i] = run
		}
		return out, nil

	case OpIdentity:
		return identityMap(acc.Identity()), nil

	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// toValue converts a decoded YAML value into a resolver value.
func (h *Harness) toValue(ctx context.Context, raw any) (resolver.Value, error) {
	switch v := raw.(type) {
	case nil:
		return resolver.None{}, nil
	case int:
		return resolver.Number(v), nil
	case string:
		return resolver.Text(v), nil
	case []any:
		list := make(resolver.List, 0, len(v))
		for i, elem := range v {
			conv, err := h.toValue(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("value[%d]: %w", i, err)
			}
			list = append(list, conv)
		}
		return list, nil
	case map[string]any:
		name, ok := v["workspace"].(string)
		if !ok || len(v) != 1 {
			return nil, fmt.Errorf("value object must be {workspace: NAME}")
		}
		ws, err := h.store.Get(ctx, name)
		if errors.Is(err, registry.ErrNotFound) {
			ws = workspace.New(name)
		} else if err != nil {
			return nil, err
		}
		return resolver.Materialized{Workspace: ws}, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", raw)
	}
}

func (h *Harness) collect(ctx context.Context, result *Result) error {
	events, err := h.store.ReadEvents(ctx)
	if err != nil {
		return err
	}
	names, err := h.store.Names(ctx)
	if err != nil {
		return err
	}
	result.Events = events
	result.Names = names
	result.Loads = h.loader.loads
	return nil
}

// errorCode returns the resolver error code of err, or "ERROR".
func errorCode(err error) string {
	var rerr *resolver.Error
	if errors.As(err, &rerr) {
		return string(rerr.Code)
	}
	return "ERROR"
}

func workspaceName(ws *workspace.Workspace) any {
	if ws == nil {
		return nil
	}
	return ws.Name
}

func stringResult(s string, err error) (any, error) {
	if err != nil || s == "" {
		return nil, err
	}
	return s, nil
}

func identityMap(id resolver.Identity) map[string]any {
	return map[string]any{
		"prefix":       id.Prefix,
		"instrument":   id.Instrument,
		"run":          id.Run,
		"has_run":      id.HasRun,
		"name":         id.Name,
		"path":         id.Path,
		"ext":          id.Ext,
		"component":    id.Component,
		"suffix":       id.Suffix,
		"bound_to_sum": id.BoundToSum,
		"cached":       id.Cached,
	}
}
