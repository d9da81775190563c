package watcher

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// registry is the set of directories with an active watch.
type registry struct {
	mu   sync.RWMutex
	dirs map[string]struct{}
}

func newRegistry() *registry {
	return &registry{dirs: make(map[string]struct{})}
}

// add registers dir and reports whether it was new.
func (r *registry) add(dir string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dirs[dir]; ok {
		return false
	}

	r.dirs[dir] = struct{}{}

	return true
}

func (r *registry) has(dir string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.dirs[dir]

	return ok
}

// removeTree drops dir and every registered directory below it.
func (r *registry) removeTree(dir string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := dir + string(filepath.Separator)

	var removed []string

	for d := range r.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(r.dirs, d)
			removed = append(removed, d)
		}
	}

	return removed
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dirs = make(map[string]struct{})
}

func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.dirs))
	for d := range r.dirs {
		out = append(out, d)
	}

	sort.Strings(out)

	return out
}
