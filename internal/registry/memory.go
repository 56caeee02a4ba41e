package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/runcache/internal/workspace"
)

// Memory is an in-memory Registry.
//
// Workspaces are stored by pointer: Get returns the registered object itself,
// so in-place changes (calibration tags, renames) are visible to every holder.
//
// Thread-safety: all methods are guarded by an internal mutex.
type Memory struct {
	mu  sync.RWMutex
	wss map[string]*workspace.Workspace
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{wss: make(map[string]*workspace.Workspace)}
}

// Exists implements Registry.
func (m *Memory) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.wss[name]
	return ok, nil
}

// Get implements Registry.
func (m *Memory) Get(_ context.Context, name string) (*workspace.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.wss[name]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return ws, nil
}

// Add implements Registry.
func (m *Memory) Add(_ context.Context, ws *workspace.Workspace) error {
	if ws == nil || ws.Name == "" {
		return fmt.Errorf("add: workspace must have a name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wss[ws.Name] = ws
	return nil
}

// Rename implements Registry.
func (m *Memory) Rename(_ context.Context, oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("rename %q: empty target name", oldName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.wss[oldName]
	if !ok {
		return fmt.Errorf("rename %q: %w", oldName, ErrNotFound)
	}
	if oldName == newName {
		return nil
	}
	delete(m.wss, oldName)
	ws.Name = newName
	m.wss[newName] = ws
	return nil
}

// Delete implements Registry.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wss, name)
	return nil
}

// Names implements Registry.
func (m *Memory) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.wss))
	for name := range m.wss {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Len returns the number of registered workspaces.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.wss)
}
