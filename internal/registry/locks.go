package registry

import (
	"sort"
	"sync"
)

// NameLocks serializes registry mutations per name.
//
// Eviction and rename of the same canonical name must not interleave. A
// NameLocks value shared by every resolver of a pipeline gives that guarantee
// when resolvers are driven from more than one goroutine. The zero value is
// ready to use.
type NameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the locks for all given names and returns the release func.
// Names are locked in sorted order so overlapping callers cannot deadlock.
// Empty and duplicate names are ignored.
func (l *NameLocks) Lock(names ...string) (unlock func()) {
	keys := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		keys = append(keys, n)
	}
	sort.Strings(keys)

	held := make([]*nameLock, 0, len(keys))
	for _, k := range keys {
		nl := l.acquire(k)
		nl.mu.Lock()
		held = append(held, nl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
	}
}

func (l *NameLocks) acquire(name string) *nameLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*nameLock)
	}
	nl, ok := l.locks[name]
	if !ok {
		nl = &nameLock{}
		l.locks[name] = nl
	}
	nl.refs++
	return nl
}

func (l *NameLocks) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	nl := l.locks[name]
	nl.refs--
	if nl.refs == 0 {
		delete(l.locks, name)
	}
}

// held returns the number of names currently tracked. Used for testing.
func (l *NameLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
