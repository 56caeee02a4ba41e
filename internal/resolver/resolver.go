// Package resolver maps run identities to named workspaces in a registry.
//
// A RunResolver holds one logical run identity (a run number, a run list or
// an adopted workspace) and materializes it lazily: the workspace is loaded
// or summed only when Get is first called, and is then found in the
// registry by its canonical name. Downstream steps that rename workspaces
// report back through Synchronize so the cached name stays in step with the
// registry.
//
// # State
//
//	Empty -> Identified -> Materialized -> Calibrated
//
// Set(None) returns to Empty from any state and evicts the owned registry
// entry. Synchronize is a self-loop on Materialized and Calibrated. A
// failed calibration leaves the identity Materialized.
//
// # Concurrency
//
// A RunResolver is not safe for concurrent use. Resolvers sharing an Env
// serialize eviction and rename of the same name through Env.Locks.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/runcache/internal/aggregate"
	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/naming"
	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/workspace"
)

// Identity is a snapshot of the run identity held by a resolver.
type Identity struct {
	Prefix     string `json:"prefix"`
	Instrument string `json:"instrument"`
	Run        int    `json:"run"`
	HasRun     bool   `json:"has_run"`

	// Name is the stored canonical name, empty until computed.
	Name string `json:"name,omitempty"`

	// Path is the located run file, or the directory hint when no file has
	// been located yet.
	Path string `json:"path,omitempty"`
	Ext  string `json:"ext,omitempty"`

	Component  string `json:"component,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
	BoundToSum bool   `json:"bound_to_sum"`

	// Cached is set when the snapshot was read through to a host resolver.
	Cached bool `json:"cached"`
}

// RunResolver is the single source of truth for one run identity.
type RunResolver struct {
	env    *Env
	prefix string
	agg    aggregate.Aggregator
	log    *slog.Logger

	calSource      calib.Source
	preferEmbedded bool

	run        int
	hasRun     bool
	name       string
	inst       string
	dir        string
	file       string
	ext        string
	component  string
	action     string
	sumSuffix  string // sum marker of an adopted workspace
	boundToSum bool
}

// New creates a resolver for the role identified by prefix, e.g. "SR_".
func New(env *Env, prefix string, opts ...Option) *RunResolver {
	if env.Locks == nil {
		env.Locks = new(registry.NameLocks)
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}

	r := &RunResolver{
		env:    env,
		prefix: prefix,
		inst:   env.Instrument,
		log:    env.Logger.With("role", prefix),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.agg == nil {
		r.agg = aggregate.NewRunList(aggregate.Deps{
			Registry:   env.Registry,
			Locator:    env.Locator,
			Loader:     env.Loader,
			Instrument: env.Instrument,
			Extension:  env.Extension,
			Logger:     env.Logger,
		})
	}
	return r
}

// Prefix returns the role prefix.
func (r *RunResolver) Prefix() string {
	return r.prefix
}

// Set replaces the identity. Unless the new canonical name equals the old
// one, the registry entry under the old name and its companion monitor
// workspace are evicted.
func (r *RunResolver) Set(ctx context.Context, v Value) error {
	prev := r.name

	switch v := v.(type) {
	case nil, None:
		return r.clear(ctx, prev)

	case Materialized:
		if v.Workspace == nil {
			return r.clear(ctx, prev)
		}
		return r.adopt(ctx, prev, v.Workspace)

	case Text:
		return r.setText(ctx, prev, string(v))

	case List:
		switch len(v) {
		case 0:
			return r.clear(ctx, prev)
		case 1:
			return r.Set(ctx, v[0])
		default:
			return r.setList(ctx, prev, v)
		}

	case Number:
		return r.setNumber(ctx, prev, int(v))

	default:
		return newInvalidValueError(fmt.Sprintf("unsupported value %T", v), nil)
	}
}

func (r *RunResolver) clear(ctx context.Context, prev string) error {
	r.agg.Reset()
	r.resetIdentity()
	if prev == "" {
		return nil
	}
	return r.evict(ctx, prev)
}

func (r *RunResolver) adopt(ctx context.Context, prev string, ws *workspace.Workspace) error {
	if ws.Name == "" {
		return newInvalidValueError("workspace has no name", nil)
	}

	exists, err := r.env.Registry.Exists(ctx, ws.Name)
	if err != nil {
		return fmt.Errorf("adopt %q: %w", ws.Name, err)
	}
	if !exists {
		if err := r.env.Registry.Add(ctx, ws); err != nil {
			return fmt.Errorf("adopt %q: %w", ws.Name, err)
		}
	}

	r.resetIdentity()
	if inst, ok := ws.Logs.String(workspace.LogInstrument); ok && inst != "" {
		r.inst = inst
	}
	run, hasRun := ws.RunNumber()
	f := r.decompose(ws.Name, run, hasRun, sumSuffixOf(ws))

	r.inst = f.Instrument
	r.component = f.Component
	r.action = f.ActionSuffix
	r.sumSuffix = f.SumSuffix
	r.run, r.hasRun = run, hasRun
	if !hasRun {
		r.run, r.hasRun = f.Run, f.HasRun
	}
	r.name = ws.Name

	r.log.Debug("adopted workspace", "name", ws.Name)
	if prev == "" || prev == ws.Name {
		return nil
	}
	return r.evict(ctx, prev)
}

// decompose splits an adopted name into fields so that Build restores it.
// The action suffix is whatever follows the padded run number and the sum
// marker.
func (r *RunResolver) decompose(name string, run int, hasRun bool, sum string) naming.Fields {
	tmpl := naming.Fields{
		Prefix:     r.prefix,
		Instrument: r.inst,
		SumSuffix:  sum,
	}
	if hasRun {
		padded := fmt.Sprintf("%0*d", naming.RunDigits, run)
		if i := strings.LastIndex(name, padded); i >= 0 {
			tail := name[i+len(padded):]
			if sum != "" && strings.HasPrefix(tail, sum) {
				tail = tail[len(sum):]
			}
			tmpl.ActionSuffix = tail
		}
	}

	f, err := naming.Parse(name, tmpl)
	if err != nil {
		// Trailing digits overflow int; keep the name as an opaque component.
		return naming.Fields{Component: name}
	}
	return f
}

func sumSuffixOf(ws *workspace.Workspace) string {
	if runs, ok := ws.Logs[workspace.LogSummedRuns].(meta.List); ok && len(runs) > 1 {
		return fmt.Sprintf("SumOf%d", len(runs))
	}
	return ""
}

func (r *RunResolver) setText(ctx context.Context, prev, s string) error {
	if s == "" {
		return r.clear(ctx, prev)
	}

	ws, err := r.lookup(ctx, s)
	if err != nil {
		return err
	}
	if ws != nil {
		return r.adopt(ctx, prev, ws)
	}

	ref, err := naming.ParseRunString(s)
	if err != nil {
		return newInvalidValueError(fmt.Sprintf("cannot read %q as a run reference", s), err)
	}

	if ref.Multiple() {
		return r.bindSum(ctx, prev, ref.Runs, []string{ref.Dir}, []string{ref.Ext}, ref.Instrument)
	}

	r.resetIdentity()
	if ref.Instrument != "" {
		r.inst = ref.Instrument
	}
	r.run, r.hasRun = ref.Last(), true
	r.dir = ref.Dir
	r.ext = ref.Ext
	return r.evictIfChanged(ctx, prev)
}

func (r *RunResolver) setList(ctx context.Context, prev string, list List) error {
	var (
		runs  []int
		paths []string
		exts  []string
		inst  string
	)
	for i, elem := range list {
		switch e := elem.(type) {
		case Number:
			runs = append(runs, int(e))
			paths = append(paths, "")
			exts = append(exts, "")
		case Text:
			ref, err := naming.ParseRunString(string(e))
			if err != nil {
				return newInvalidValueError(fmt.Sprintf("list[%d]: cannot read %q as a run reference", i, string(e)), err)
			}
			if inst == "" {
				inst = ref.Instrument
			}
			for _, run := range ref.Runs {
				runs = append(runs, run)
				paths = append(paths, ref.Dir)
				exts = append(exts, ref.Ext)
			}
		default:
			return newInvalidValueError(fmt.Sprintf("list[%d]: unsupported element %T", i, elem), nil)
		}
	}
	return r.bindSum(ctx, prev, runs, paths, exts, inst)
}

func (r *RunResolver) bindSum(ctx context.Context, prev string, runs []int, paths, exts []string, inst string) error {
	if err := r.agg.RegisterMembers(runs, paths, exts); err != nil {
		return newInvalidValueError("cannot bind run list", err)
	}

	r.resetIdentity()
	if inst != "" {
		r.inst = inst
	}
	if s, ok := r.agg.(interface{ SetInstrument(string) }); ok {
		s.SetInstrument(r.inst)
	}
	r.boundToSum = true
	r.run, r.hasRun = runs[len(runs)-1], true

	r.log.Debug("bound run list", "runs", runs)
	return r.evictIfChanged(ctx, prev)
}

func (r *RunResolver) setNumber(ctx context.Context, prev string, run int) error {
	if run < 0 {
		return newInvalidValueError(fmt.Sprintf("negative run number %d", run), nil)
	}

	wasBound := r.boundToSum
	r.resetIdentity()
	r.run, r.hasRun = run, true

	if wasBound && r.agg.Select(run) > 0 {
		r.boundToSum = true
	}
	return r.evictIfChanged(ctx, prev)
}

// resetIdentity clears every identity field except the role prefix.
func (r *RunResolver) resetIdentity() {
	r.run, r.hasRun = 0, false
	r.name = ""
	r.inst = r.env.Instrument
	r.dir, r.file, r.ext = "", "", ""
	r.component, r.action, r.sumSuffix = "", "", ""
	r.boundToSum = false
}

func (r *RunResolver) fields() naming.Fields {
	f := naming.Fields{
		Prefix:       r.prefix,
		Instrument:   r.inst,
		Component:    r.component,
		Run:          r.run,
		HasRun:       r.hasRun,
		SumSuffix:    r.sumSuffix,
		ActionSuffix: r.action,
	}
	if r.boundToSum {
		f.SumSuffix = r.agg.NameSuffix()
	}
	return f
}

func (r *RunResolver) buildName() string {
	return naming.Build(r.fields())
}

func (r *RunResolver) empty() bool {
	return !r.hasRun && r.name == ""
}

func (r *RunResolver) evictIfChanged(ctx context.Context, prev string) error {
	if prev == "" || prev == r.buildName() {
		return nil
	}
	return r.evict(ctx, prev)
}

// evict deletes name and its companion monitor workspace.
func (r *RunResolver) evict(ctx context.Context, name string) error {
	unlock := r.env.Locks.Lock(name, workspace.MonitorName(name))
	defer unlock()

	if err := registry.DeleteWithMonitors(ctx, r.env.Registry, name); err != nil {
		return fmt.Errorf("evict %q: %w", name, err)
	}
	r.log.Debug("evicted workspace", "name", name)
	return nil
}

// lookup returns the workspace under name, or nil when none is registered.
func (r *RunResolver) lookup(ctx context.Context, name string) (*workspace.Workspace, error) {
	ws, err := r.env.Registry.Get(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	return ws, nil
}

// Get returns the materialized, calibrated workspace, loading or summing it
// on first use. It returns nil when the identity is empty.
//
// When calibration fails the workspace is still returned together with a
// CALIBRATION_UNAVAILABLE error.
func (r *RunResolver) Get(ctx context.Context) (*workspace.Workspace, error) {
	if r.name != "" {
		ws, err := r.lookup(ctx, r.name)
		if err != nil {
			return nil, err
		}
		if ws != nil {
			return r.calibrate(ctx, ws)
		}
	}
	if !r.hasRun {
		return nil, nil
	}

	name := r.buildName()
	ws, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		ws, err = r.materialize(ctx, name)
		if err != nil {
			return nil, err
		}
	}

	if err := r.Synchronize(ctx, ws); err != nil {
		return nil, err
	}
	return r.calibrate(ctx, ws)
}

func (r *RunResolver) materialize(ctx context.Context, name string) (*workspace.Workspace, error) {
	if r.boundToSum {
		ws, err := r.agg.LoadAndSum(ctx, name, r.env.MonitorMode)
		if errors.Is(err, locate.ErrNotFound) {
			return nil, newNotFoundError(name, r.run, err)
		}
		if err != nil {
			return nil, fmt.Errorf("materialize %q: %w", name, err)
		}
		return ws, nil
	}

	path, ext, err := r.find(ctx)
	if err != nil {
		return nil, err
	}
	r.file, r.ext = path, ext

	ws, err := r.env.Loader.Load(ctx, path, name, r.env.MonitorMode)
	if err != nil {
		return nil, fmt.Errorf("materialize %q: %w", name, err)
	}
	r.log.Info("materialized workspace", "name", name, "path", path)
	return ws, nil
}

func (r *RunResolver) find(ctx context.Context) (string, string, error) {
	path, ext, err := r.env.Locator.Find(ctx, locate.Hint{
		Instrument: r.inst,
		Run:        r.run,
		Extension:  r.FileExtension(),
		Dir:        r.dir,
	})
	if errors.Is(err, locate.ErrNotFound) {
		return "", "", newNotFoundError(r.buildName(), r.run, err)
	}
	if err != nil {
		return "", "", fmt.Errorf("find run %d: %w", r.run, err)
	}
	return path, ext, nil
}

func (r *RunResolver) calibrate(ctx context.Context, ws *workspace.Workspace) (*workspace.Workspace, error) {
	if err := r.ApplyCalibration(ctx, ws, r.calSource, r.preferEmbedded); err != nil {
		return ws, err
	}
	return ws, nil
}

// RunNumber returns the run number recorded by the materialized workspace,
// or the locally held run number when nothing is materialized.
func (r *RunResolver) RunNumber(ctx context.Context) (int, bool, error) {
	if r.name != "" {
		ws, err := r.lookup(ctx, r.name)
		if err != nil {
			return 0, false, err
		}
		if ws != nil {
			if run, ok := ws.RunNumber(); ok {
				return run, true, nil
			}
		}
	}
	return r.run, r.hasRun, nil
}

// CanonicalName returns the stored name when it is registered, otherwise
// computes, stores and returns the name built from the identity. It never
// materializes.
func (r *RunResolver) CanonicalName(ctx context.Context) (string, error) {
	if r.empty() {
		return "", newInvalidStateError("canonical name")
	}
	if r.name != "" {
		ok, err := r.env.Registry.Exists(ctx, r.name)
		if err != nil {
			return "", fmt.Errorf("canonical name: %w", err)
		}
		if ok {
			return r.name, nil
		}
	}
	r.name = r.buildName()
	return r.name, nil
}

// SetActionSuffix records the suffix set by a processing step and returns
// the name the identity now builds. The registry is renamed by Synchronize.
func (r *RunResolver) SetActionSuffix(ctx context.Context, suffix string) (string, error) {
	r.action = suffix
	if err := r.dropUnregisteredName(ctx); err != nil {
		return "", err
	}
	return r.buildName(), nil
}

// SetComponent sets the free-form component tag and returns the name the
// identity now builds.
func (r *RunResolver) SetComponent(ctx context.Context, component string) (string, error) {
	if err := naming.Validate(naming.Fields{Component: component}); err != nil {
		return "", newInvalidValueError(fmt.Sprintf("component %q", component), err)
	}
	r.component = component
	if err := r.dropUnregisteredName(ctx); err != nil {
		return "", err
	}
	return r.buildName(), nil
}

// dropUnregisteredName forgets a stored name that was computed but never
// materialized, so CanonicalName rebuilds it.
func (r *RunResolver) dropUnregisteredName(ctx context.Context) error {
	if r.name == "" {
		return nil
	}
	ok, err := r.env.Registry.Exists(ctx, r.name)
	if err != nil {
		return fmt.Errorf("check %q: %w", r.name, err)
	}
	if !ok {
		r.name = ""
	}
	return nil
}

// Synchronize renames ws and its companion monitor workspace to the name
// the identity builds, then stores that name. A nil ws synchronizes the
// workspace under the stored name, if any.
func (r *RunResolver) Synchronize(ctx context.Context, ws *workspace.Workspace) error {
	if ws == nil {
		if r.name == "" {
			return nil
		}
		var err error
		if ws, err = r.lookup(ctx, r.name); err != nil || ws == nil {
			return err
		}
	}

	target := r.buildName()
	old := ws.Name
	if old != target {
		if err := r.rename(ctx, ws, target); err != nil {
			return err
		}
	}
	r.name = target
	return nil
}

func (r *RunResolver) rename(ctx context.Context, ws *workspace.Workspace, target string) error {
	reg := r.env.Registry
	old := ws.Name
	oldMon, newMon := workspace.MonitorName(old), workspace.MonitorName(target)

	unlock := r.env.Locks.Lock(old, target, oldMon, newMon)
	defer unlock()

	ok, err := reg.Exists(ctx, old)
	if err != nil {
		return fmt.Errorf("synchronize %q: %w", old, err)
	}
	if ok {
		if err := reg.Rename(ctx, old, target); err != nil {
			return fmt.Errorf("synchronize %q: %w", old, err)
		}
		ws.Name = target
	} else {
		ws.Name = target
		if err := reg.Add(ctx, ws); err != nil {
			return fmt.Errorf("synchronize %q: %w", old, err)
		}
	}

	ok, err = reg.Exists(ctx, oldMon)
	if err != nil {
		return fmt.Errorf("synchronize %q: %w", oldMon, err)
	}
	if ok {
		if err := reg.Rename(ctx, oldMon, newMon); err != nil {
			return fmt.Errorf("synchronize %q: %w", oldMon, err)
		}
	}

	r.log.Debug("renamed workspace", "from", old, "to", target)
	return nil
}

// ApplyCalibration calibrates ws once. With preferEmbedded the reference
// recorded in the workspace logs wins over src unless it is absent or
// "none". Calibrating an already tagged workspace is a no-op.
func (r *RunResolver) ApplyCalibration(ctx context.Context, ws *workspace.Workspace, src calib.Source, preferEmbedded bool) error {
	if ws == nil {
		return newInvalidStateError("apply calibration")
	}
	if ws.Calibrated() {
		return nil
	}
	if preferEmbedded {
		if ref, ok := ws.EmbeddedCalibration(); ok {
			src = calib.FromFile(ref)
		}
	}
	if src.IsNone() {
		return nil
	}
	if r.env.Applier == nil {
		return newCalibrationError(ws.Name, fmt.Errorf("no calibration applier configured"))
	}

	if err := r.env.Applier.Apply(ctx, ws, src); err != nil {
		if errors.Is(err, calib.ErrUnavailable) {
			return newCalibrationError(ws.Name, err)
		}
		return fmt.Errorf("calibrate %q: %w", ws.Name, err)
	}
	ws.Calibration = src.Fingerprint()

	ok, err := r.env.Registry.Exists(ctx, ws.Name)
	if err != nil {
		return fmt.Errorf("calibrate %q: %w", ws.Name, err)
	}
	if ok {
		if err := r.env.Registry.Add(ctx, ws); err != nil {
			return fmt.Errorf("calibrate %q: %w", ws.Name, err)
		}
	}

	r.log.Debug("calibrated workspace", "name", ws.Name, "source", src.String())
	return nil
}

// ClearCompanionMonitor deletes the companion monitor workspace of the
// stored canonical name, if any.
func (r *RunResolver) ClearCompanionMonitor(ctx context.Context) error {
	if r.name == "" {
		return nil
	}
	mon := workspace.MonitorName(r.name)
	unlock := r.env.Locks.Lock(mon)
	defer unlock()
	if err := r.env.Registry.Delete(ctx, mon); err != nil {
		return fmt.Errorf("clear monitors %q: %w", mon, err)
	}
	return nil
}

// FileExtension returns the extension used for the next file lookup.
func (r *RunResolver) FileExtension() string {
	if r.ext != "" {
		return r.ext
	}
	return r.env.Extension
}

// SetFileExtension sets the extension used for the next file lookup of the
// current identity.
func (r *RunResolver) SetFileExtension(ext string) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.ext = ext
}

// FindFile resolves the run file of the identity without loading it.
func (r *RunResolver) FindFile(ctx context.Context) (string, error) {
	if !r.hasRun {
		return "", newInvalidStateError("find file")
	}
	path, ext, err := r.find(ctx)
	if err != nil {
		return "", err
	}
	r.file, r.ext = path, ext
	return path, nil
}

// Monitors returns the companion monitor workspace of the materialized
// workspace. When monitors were loaded combined, the monitor spectra are
// copied into a new companion workspace.
func (r *RunResolver) Monitors(ctx context.Context) (*workspace.Workspace, error) {
	ws, err := r.Get(ctx)
	if ws == nil {
		if err == nil {
			err = newInvalidStateError("monitors")
		}
		return nil, err
	}

	name := workspace.MonitorName(ws.Name)
	mon, err := r.lookup(ctx, name)
	if err != nil || mon != nil {
		return mon, err
	}

	var spectra []workspace.Spectrum
	for _, s := range ws.Clone().Spectra {
		if s.Monitor {
			spectra = append(spectra, s)
		}
	}
	if len(spectra) == 0 {
		return nil, &Error{
			Code:    ErrCodeNotFound,
			Message: "workspace carries no monitor spectra",
			Name:    ws.Name,
		}
	}

	mon = &workspace.Workspace{Name: name, Logs: ws.Logs.Clone(), Spectra: spectra}
	if err := r.env.Registry.Add(ctx, mon); err != nil {
		return nil, fmt.Errorf("monitors %q: %w", name, err)
	}
	return mon, nil
}

// Exists reports whether the canonical name of the identity is registered.
func (r *RunResolver) Exists(ctx context.Context) (bool, error) {
	if r.empty() {
		return false, nil
	}
	name := r.name
	if name == "" {
		name = r.buildName()
	}
	return r.env.Registry.Exists(ctx, name)
}

// Remove deletes the materialized workspace and its companion but keeps the
// run identity, so the next Get loads it again.
func (r *RunResolver) Remove(ctx context.Context) error {
	name := r.name
	if name == "" {
		if !r.hasRun {
			return nil
		}
		name = r.buildName()
	}
	if err := r.evict(ctx, name); err != nil {
		return err
	}
	r.name = ""
	return nil
}

// Runs returns the run numbers the identity stands for.
func (r *RunResolver) Runs() []int {
	if r.boundToSum {
		return r.agg.Members()
	}
	if r.hasRun {
		return []int{r.run}
	}
	return nil
}

// Identity returns a snapshot of the identity.
func (r *RunResolver) Identity() Identity {
	path := r.file
	if path == "" {
		path = r.dir
	}
	return Identity{
		Prefix:     r.prefix,
		Instrument: r.inst,
		Run:        r.run,
		HasRun:     r.hasRun,
		Name:       r.name,
		Path:       path,
		Ext:        r.FileExtension(),
		Component:  r.component,
		Suffix:     r.action,
		BoundToSum: r.boundToSum,
	}
}
