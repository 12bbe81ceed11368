package engine

import (
	"sort"
	"sync"
)

// pathLocks serializes work on the same file while letting different files
// proceed in parallel. Entries are dropped once nobody holds them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock blocks until path is free and returns the unlock function.
func (l *pathLocks) lock(path string) func() {
	l.mu.Lock()
	entry, ok := l.locks[path]
	if !ok {
		entry = &pathLock{}
		l.locks[path] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, path)
		}
		l.mu.Unlock()
	}
}

// lockAll takes every path in sorted order so two multi-file operations
// cannot deadlock.
func (l *pathLocks) lockAll(paths []string) func() {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	unlocks := make([]func(), 0, len(sorted))
	for i, path := range sorted {
		if i > 0 && path == sorted[i-1] {
			continue
		}
		unlocks = append(unlocks, l.lock(path))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
