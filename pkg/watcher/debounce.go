package watcher

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type pendingFile struct {
	deadline time.Time
	seq      uint64
}

// debouncer tracks files waiting for their quiet period to elapse. It is
// owned by the event loop goroutine and is not safe for concurrent use.
type debouncer struct {
	quiet   time.Duration
	seq     uint64
	pending map[string]pendingFile
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{
		quiet:   quiet,
		pending: make(map[string]pendingFile),
	}
}

// touch records activity on path and pushes its deadline out.
func (d *debouncer) touch(path string, now time.Time) {
	d.seq++
	d.pending[path] = pendingFile{deadline: now.Add(d.quiet), seq: d.seq}
}

// cancel forgets path.
func (d *debouncer) cancel(path string) bool {
	if _, ok := d.pending[path]; !ok {
		return false
	}

	delete(d.pending, path)

	return true
}

// cancelTree forgets every pending path at or below dir.
func (d *debouncer) cancelTree(dir string) int {
	prefix := dir + string(filepath.Separator)
	n := 0

	for p := range d.pending {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(d.pending, p)
			n++
		}
	}

	return n
}

// due removes and returns the paths whose deadline has passed, ordered by
// their last activity.
func (d *debouncer) due(now time.Time) []string {
	type item struct {
		path string
		seq  uint64
	}

	var ready []item

	for p, f := range d.pending {
		if !now.Before(f.deadline) {
			ready = append(ready, item{path: p, seq: f.seq})
		}
	}

	if len(ready) == 0 {
		return nil
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].seq < ready[j].seq })

	out := make([]string, len(ready))
	for i, it := range ready {
		delete(d.pending, it.path)
		out[i] = it.path
	}

	return out
}

func (d *debouncer) len() int {
	return len(d.pending)
}
