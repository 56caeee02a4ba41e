package resolver

import (
	"context"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/workspace"
)

// Accessor is the operation set shared by RunResolver and Dependent.
type Accessor interface {
	Set(ctx context.Context, v Value) error
	Get(ctx context.Context) (*workspace.Workspace, error)
	RunNumber(ctx context.Context) (int, bool, error)
	CanonicalName(ctx context.Context) (string, error)
	SetActionSuffix(ctx context.Context, suffix string) (string, error)
	SetComponent(ctx context.Context, component string) (string, error)
	Synchronize(ctx context.Context, ws *workspace.Workspace) error
	ApplyCalibration(ctx context.Context, ws *workspace.Workspace, src calib.Source, preferEmbedded bool) error
	ClearCompanionMonitor(ctx context.Context) error
	FileExtension() string
	SetFileExtension(ext string)
	FindFile(ctx context.Context) (string, error)
	Monitors(ctx context.Context) (*workspace.Workspace, error)
	Exists(ctx context.Context) (bool, error)
	Remove(ctx context.Context) error
	Runs() []int
	Identity() Identity
}

var (
	_ Accessor = (*RunResolver)(nil)
	_ Accessor = (*Dependent)(nil)
)

// Dependent reads through to a host resolver until it is given a value of
// its own. Setting an empty value returns it to read-through.
//
// Every operation picks its target explicitly: the local resolver when an
// own value is held, the host otherwise.
type Dependent struct {
	local *RunResolver
	host  Accessor
	own   bool
}

// NewDependent creates a Dependent over local that falls back to host.
func NewDependent(local *RunResolver, host Accessor) *Dependent {
	return &Dependent{local: local, host: host}
}

// HasOwnValue reports whether operations run against the local resolver.
func (d *Dependent) HasOwnValue() bool {
	return d.own
}

// Local returns the wrapped resolver.
func (d *Dependent) Local() *RunResolver {
	return d.local
}

// Set stores v locally. An empty value switches to read-through and leaves
// both resolvers untouched.
func (d *Dependent) Set(ctx context.Context, v Value) error {
	if IsEmpty(v) {
		d.own = false
		return nil
	}
	d.own = true
	return d.local.Set(ctx, v)
}

func (d *Dependent) Get(ctx context.Context) (*workspace.Workspace, error) {
	if d.own {
		return d.local.Get(ctx)
	}
	return d.host.Get(ctx)
}

func (d *Dependent) RunNumber(ctx context.Context) (int, bool, error) {
	if d.own {
		return d.local.RunNumber(ctx)
	}
	return d.host.RunNumber(ctx)
}

func (d *Dependent) CanonicalName(ctx context.Context) (string, error) {
	if d.own {
		return d.local.CanonicalName(ctx)
	}
	return d.host.CanonicalName(ctx)
}

func (d *Dependent) SetActionSuffix(ctx context.Context, suffix string) (string, error) {
	if d.own {
		return d.local.SetActionSuffix(ctx, suffix)
	}
	return d.host.SetActionSuffix(ctx, suffix)
}

func (d *Dependent) SetComponent(ctx context.Context, component string) (string, error) {
	if d.own {
		return d.local.SetComponent(ctx, component)
	}
	return d.host.SetComponent(ctx, component)
}

func (d *Dependent) Synchronize(ctx context.Context, ws *workspace.Workspace) error {
	if d.own {
		return d.local.Synchronize(ctx, ws)
	}
	return d.host.Synchronize(ctx, ws)
}

func (d *Dependent) ApplyCalibration(ctx context.Context, ws *workspace.Workspace, src calib.Source, preferEmbedded bool) error {
	if d.own {
		return d.local.ApplyCalibration(ctx, ws, src, preferEmbedded)
	}
	return d.host.ApplyCalibration(ctx, ws, src, preferEmbedded)
}

func (d *Dependent) ClearCompanionMonitor(ctx context.Context) error {
	if d.own {
		return d.local.ClearCompanionMonitor(ctx)
	}
	return d.host.ClearCompanionMonitor(ctx)
}

func (d *Dependent) FileExtension() string {
	if d.own {
		return d.local.FileExtension()
	}
	return d.host.FileExtension()
}

func (d *Dependent) SetFileExtension(ext string) {
	if d.own {
		d.local.SetFileExtension(ext)
		return
	}
	d.host.SetFileExtension(ext)
}

func (d *Dependent) FindFile(ctx context.Context) (string, error) {
	if d.own {
		return d.local.FindFile(ctx)
	}
	return d.host.FindFile(ctx)
}

func (d *Dependent) Monitors(ctx context.Context) (*workspace.Workspace, error) {
	if d.own {
		return d.local.Monitors(ctx)
	}
	return d.host.Monitors(ctx)
}

func (d *Dependent) Exists(ctx context.Context) (bool, error) {
	if d.own {
		return d.local.Exists(ctx)
	}
	return d.host.Exists(ctx)
}

func (d *Dependent) Remove(ctx context.Context) error {
	if d.own {
		return d.local.Remove(ctx)
	}
	return d.host.Remove(ctx)
}

func (d *Dependent) Runs() []int {
	if d.own {
		return d.local.Runs()
	}
	return d.host.Runs()
}

// Identity returns the local snapshot, or the host snapshot marked Cached.
func (d *Dependent) Identity() Identity {
	if d.own {
		return d.local.Identity()
	}
	id := d.host.Identity()
	id.Cached = true
	return id
}
