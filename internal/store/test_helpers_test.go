package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/workspace"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithSession("test-session"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestWorkspace creates a workspace with a run number and one spectrum.
func createTestWorkspace(name string, run int) *workspace.Workspace {
	ws := workspace.New(name)
	ws.SetRunNumber(run)
	ws.Logs[workspace.LogInstrument] = meta.String("ABC")
	ws.Spectra = []workspace.Spectrum{{ID: 1, Counts: []int64{1, 2, 3}}}
	return ws
}
