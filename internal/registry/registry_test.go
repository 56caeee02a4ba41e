package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/workspace"
)

func TestMemory_AddGetExists(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Exists(ctx, "SR_MAR011001")
	require.NoError(t, err)
	assert.False(t, ok)

	ws := workspace.New("SR_MAR011001")
	require.NoError(t, m.Add(ctx, ws))

	ok, err = m.Exists(ctx, "SR_MAR011001")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := m.Get(ctx, "SR_MAR011001")
	require.NoError(t, err)
	assert.Same(t, ws, got)
}

func TestMemory_GetMissing(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemory_AddRequiresName(t *testing.T) {
	m := NewMemory()
	assert.Error(t, m.Add(context.Background(), workspace.New("")))
	assert.Error(t, m.Add(context.Background(), nil))
}

func TestMemory_Rename(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ws := workspace.New("a")
	require.NoError(t, m.Add(ctx, ws))

	require.NoError(t, m.Rename(ctx, "a", "b"))
	assert.Equal(t, "b", ws.Name)

	names, err := m.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestMemory_RenameOverwritesTarget(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, workspace.New("a")))
	require.NoError(t, m.Add(ctx, workspace.New("b")))

	require.NoError(t, m.Rename(ctx, "a", "b"))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_RenameMissing(t *testing.T) {
	err := NewMemory().Rename(context.Background(), "a", "b")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemory_RenameSameName(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, workspace.New("a")))
	require.NoError(t, m.Rename(ctx, "a", "a"))
	assert.Equal(t, 1, m.Len())
}

func TestDeleteWithMonitors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, workspace.New("a")))
	require.NoError(t, m.Add(ctx, workspace.New("a_monitors")))
	require.NoError(t, m.Add(ctx, workspace.New("b")))

	require.NoError(t, DeleteWithMonitors(ctx, m, "a"))

	names, err := m.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestNameLocks_SerializesSameName(t *testing.T) {
	var locks NameLocks
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("SR_MAR011001", "SR_MAR011001_monitors")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, locks.held())
}

func TestNameLocks_IgnoresEmptyAndDuplicates(t *testing.T) {
	var locks NameLocks
	unlock := locks.Lock("a", "", "a")
	assert.Equal(t, 1, locks.held())
	unlock()
	assert.Equal(t, 0, locks.held())
}
