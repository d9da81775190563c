// Package dedup tracks which files are being uploaded or have been
// uploaded, so that repeated finalize events for the same path produce a
// single upload.
package dedup

import (
	"sort"
	"sync"
)

// State of a tracked path.
type State int

const (
	// InFlight means an upload has been admitted and not finished.
	InFlight State = iota + 1
	// Done means the upload succeeded.
	Done
)

func (s State) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Tracker is a concurrency-safe set of canonical paths.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]State
}

// New returns a tracker pre-seeded with paths already uploaded.
func New(done ...string) *Tracker {
	t := &Tracker{entries: make(map[string]State, len(done))}

	for _, p := range done {
		t.entries[p] = Done
	}

	return t
}

// TryAdmit reserves path for upload. It returns false when the path is
// already in flight or done.
func (t *Tracker) TryAdmit(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[path]; ok {
		return false
	}

	t.entries[path] = InFlight

	return true
}

// Release drops an in-flight reservation so a later event can retry.
// Done entries are kept.
func (t *Tracker) Release(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[path] == InFlight {
		delete(t.entries, path)
	}
}

// MarkDone records a successful upload.
func (t *Tracker) MarkDone(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[path] = Done
}

// Forget removes path regardless of state.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, path)
}

// Reset clears every done entry. In-flight reservations are kept so that
// running uploads still release or complete cleanly.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for p, s := range t.entries {
		if s == Done {
			delete(t.entries, p)
		}
	}
}

// State returns the state of path and whether it is tracked.
func (t *Tracker) State(path string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.entries[path]

	return s, ok
}

// Len returns the number of tracked paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Snapshot returns the tracked paths with the given state, sorted.
func (t *Tracker) Snapshot(state State) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.entries))

	for p, s := range t.entries {
		if s == state {
			out = append(out, p)
		}
	}

	sort.Strings(out)

	return out
}
