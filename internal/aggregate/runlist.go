// Package aggregate binds a run identity to a list of runs that are summed
// into one workspace.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/runfile"
	"github.com/roach88/runcache/internal/workspace"
)

// partSuffix names the scratch workspace each non-first member is loaded into.
const partSuffix = "_sumpart"

// Aggregator manages a list of runs to be summed.
type Aggregator interface {
	// RegisterMembers replaces the member list. paths and exts are either
	// empty, a single value applied to every run, or one value per run.
	RegisterMembers(runs []int, paths, exts []string) error

	// Select makes the members up to and including run active and returns
	// the active count. It returns 0 when run is not a member.
	Select(run int) int

	// ActiveMemberCount returns the number of runs that will be summed.
	ActiveMemberCount() int

	// NameSuffix is the sum marker appended to canonical names.
	NameSuffix() string

	// LoadAndSum loads every active member and registers the sum as target.
	LoadAndSum(ctx context.Context, target string, mode runfile.MonitorMode) (*workspace.Workspace, error)

	// Members returns the active run numbers in order.
	Members() []int

	// Reset drops all members.
	Reset()
}

// Member is one run of a sum with its lookup hints.
type Member struct {
	Run int
	Dir string
	Ext string
}

// Deps are the collaborators a RunList loads members through.
type Deps struct {
	Registry   registry.Registry
	Locator    locate.Locator
	Loader     runfile.Loader
	Instrument string
	Extension  string
	Logger     *slog.Logger
}

// RunList is the default Aggregator.
//
// Thread-safety: RunList is owned by a single resolver and is not safe for
// concurrent use.
type RunList struct {
	deps    Deps
	members []Member
	active  int
}

var _ Aggregator = (*RunList)(nil)

// NewRunList creates an empty RunList.
func NewRunList(deps Deps) *RunList {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &RunList{deps: deps}
}

// RegisterMembers implements Aggregator. All registered runs become active.
func (l *RunList) RegisterMembers(runs []int, paths, exts []string) error {
	if len(runs) == 0 {
		return fmt.Errorf("register members: empty run list")
	}
	if err := checkHintLen("paths", len(paths), len(runs)); err != nil {
		return err
	}
	if err := checkHintLen("extensions", len(exts), len(runs)); err != nil {
		return err
	}

	seen := make(map[int]bool, len(runs))
	members := make([]Member, len(runs))
	for i, run := range runs {
		if run < 0 {
			return fmt.Errorf("register members: negative run number %d", run)
		}
		if seen[run] {
			return fmt.Errorf("register members: duplicate run %d", run)
		}
		seen[run] = true
		members[i] = Member{Run: run, Dir: pick(paths, i), Ext: pick(exts, i)}
	}

	l.members = members
	l.active = len(members)
	return nil
}

// Select implements Aggregator.
func (l *RunList) Select(run int) int {
	for i, m := range l.members {
		if m.Run == run {
			l.active = i + 1
			return l.active
		}
	}
	l.active = 0
	return 0
}

// ActiveMemberCount implements Aggregator.
func (l *RunList) ActiveMemberCount() int {
	return l.active
}

// NameSuffix returns "SumOf<n>" when more than one member is active.
func (l *RunList) NameSuffix() string {
	if l.active > 1 {
		return fmt.Sprintf("SumOf%d", l.active)
	}
	return ""
}

// Members implements Aggregator.
func (l *RunList) Members() []int {
	runs := make([]int, l.active)
	for i := range runs {
		runs[i] = l.members[i].Run
	}
	return runs
}

// LastRun returns the last active run number.
func (l *RunList) LastRun() (int, bool) {
	if l.active == 0 {
		return 0, false
	}
	return l.members[l.active-1].Run, true
}

// SetInstrument changes the instrument used to find member files.
func (l *RunList) SetInstrument(inst string) {
	l.deps.Instrument = inst
}

// Reset implements Aggregator.
func (l *RunList) Reset() {
	l.members = nil
	l.active = 0
}

// LoadAndSum implements Aggregator.
//
// The first member is loaded straight into target; every other member is
// loaded into a scratch workspace, added to the accumulator and deleted.
// Companion monitor workspaces are summed the same way. On failure no
// partial sum is left in the registry.
func (l *RunList) LoadAndSum(ctx context.Context, target string, mode runfile.MonitorMode) (*workspace.Workspace, error) {
	if l.active == 0 {
		return nil, fmt.Errorf("sum into %q: no active members", target)
	}
	reg := l.deps.Registry
	scratch := target + partSuffix

	acc, err := l.sum(ctx, target, scratch, mode)
	if err != nil {
		_ = registry.DeleteWithMonitors(ctx, reg, scratch)
		_ = registry.DeleteWithMonitors(ctx, reg, target)
		return nil, err
	}

	runs := l.Members()
	last := runs[len(runs)-1]
	acc.SetRunNumber(last)
	acc.Logs[workspace.LogSummedRuns] = meta.Ints(runs...)
	if err := reg.Add(ctx, acc); err != nil {
		return nil, fmt.Errorf("sum into %q: %w", target, err)
	}

	if mon, err := reg.Get(ctx, workspace.MonitorName(target)); err == nil {
		mon.SetRunNumber(last)
		mon.Logs[workspace.LogSummedRuns] = meta.Ints(runs...)
		if err := reg.Add(ctx, mon); err != nil {
			return nil, fmt.Errorf("sum into %q: %w", mon.Name, err)
		}
	}

	l.deps.Logger.Info("summed runs", "target", target, "runs", runs)
	return acc, nil
}

func (l *RunList) sum(ctx context.Context, target, scratch string, mode runfile.MonitorMode) (*workspace.Workspace, error) {
	reg := l.deps.Registry

	var acc *workspace.Workspace
	for i, m := range l.members[:l.active] {
		path, err := l.find(ctx, m)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			acc, err = l.deps.Loader.Load(ctx, path, target, mode)
			if err != nil {
				return nil, fmt.Errorf("sum into %q: run %d: %w", target, m.Run, err)
			}
			continue
		}

		part, err := l.deps.Loader.Load(ctx, path, scratch, mode)
		if err != nil {
			return nil, fmt.Errorf("sum into %q: run %d: %w", target, m.Run, err)
		}
		if err := acc.Add(part); err != nil {
			return nil, fmt.Errorf("sum into %q: run %d: %w", target, m.Run, err)
		}
		if err := l.sumMonitors(ctx, target, scratch); err != nil {
			return nil, fmt.Errorf("sum into %q: run %d: %w", target, m.Run, err)
		}
		if err := registry.DeleteWithMonitors(ctx, reg, scratch); err != nil {
			return nil, fmt.Errorf("sum into %q: drop scratch: %w", target, err)
		}
	}
	return acc, nil
}

func (l *RunList) sumMonitors(ctx context.Context, target, scratch string) error {
	reg := l.deps.Registry
	partName := workspace.MonitorName(scratch)

	ok, err := reg.Exists(ctx, partName)
	if err != nil || !ok {
		return err
	}
	accMon, err := reg.Get(ctx, workspace.MonitorName(target))
	if err != nil {
		return fmt.Errorf("monitors: %w", err)
	}
	partMon, err := reg.Get(ctx, partName)
	if err != nil {
		return fmt.Errorf("monitors: %w", err)
	}
	if err := accMon.Add(partMon); err != nil {
		return fmt.Errorf("monitors: %w", err)
	}
	return reg.Add(ctx, accMon)
}

func (l *RunList) find(ctx context.Context, m Member) (string, error) {
	ext := m.Ext
	if ext == "" {
		ext = l.deps.Extension
	}
	path, _, err := l.deps.Locator.Find(ctx, locate.Hint{
		Instrument: l.deps.Instrument,
		Run:        m.Run,
		Extension:  ext,
		Dir:        m.Dir,
	})
	if err != nil {
		return "", fmt.Errorf("find run %d: %w", m.Run, err)
	}
	return path, nil
}

func checkHintLen(what string, got, runs int) error {
	if got > 1 && got != runs {
		return fmt.Errorf("register members: %d %s for %d runs", got, what, runs)
	}
	return nil
}

func pick(vals []string, i int) string {
	switch len(vals) {
	case 0:
		return ""
	case 1:
		return vals[0]
	default:
		return vals[i]
	}
}
