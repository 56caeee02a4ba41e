// Package registry defines the process-wide, string-keyed store of named
// workspaces that run resolvers read and mutate.
//
// # Ownership
//
// The registry is shared mutable state. Resolvers assume a single logical
// writer (one reduction pipeline at a time). Implementations are safe for
// concurrent calls, but a read-then-write sequence spanning several calls is
// not atomic: callers that evict and rename the same name from several
// goroutines must hold the name through NameLocks.
package registry

import (
	"context"
	"errors"

	"github.com/roach88/runcache/internal/workspace"
)

// ErrNotFound is returned when no workspace is registered under a name.
var ErrNotFound = errors.New("registry: workspace not found")

// Registry is a string-keyed store of named workspaces.
type Registry interface {
	// Exists reports whether a workspace is registered under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Get returns the workspace registered under name, or ErrNotFound.
	Get(ctx context.Context, name string) (*workspace.Workspace, error)

	// Add registers ws under ws.Name, replacing any previous entry.
	Add(ctx context.Context, ws *workspace.Workspace) error

	// Rename moves the entry under oldName to newName, replacing any entry
	// already registered under newName. Renaming to the same name is a no-op.
	Rename(ctx context.Context, oldName, newName string) error

	// Delete removes the entry under name. Deleting a missing name is a no-op.
	Delete(ctx context.Context, name string) error

	// Names returns all registered names in ascending order.
	Names(ctx context.Context) ([]string, error)
}

// DeleteWithMonitors removes name and its companion monitor workspace.
func DeleteWithMonitors(ctx context.Context, r Registry, name string) error {
	if err := r.Delete(ctx, name); err != nil {
		return err
	}
	return r.Delete(ctx, workspace.MonitorName(name))
}
