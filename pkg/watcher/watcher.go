// Package watcher observes a directory tree and reports finalized files,
// including files in directories created after the watch started.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/dropwatch/pkg/fsutil"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultQuietPeriod is used when Config.QuietPeriod is zero.
const DefaultQuietPeriod = 2 * time.Second

// ErrAlreadyStarted is returned by Start on a running watcher.
var ErrAlreadyStarted = errors.New("watcher already started")

// Config configures a Watcher.
type Config struct {
	// QuietPeriod is how long a file must stay unmodified after its last
	// create, move-in or write before it is reported.
	QuietPeriod time.Duration
	// Buffer is the capacity of the event channel.
	Buffer int
}

// Watcher observes a directory tree.
type Watcher interface {
	// Start watches root and every directory below it. If root is missing
	// or not a directory the returned channel is already closed.
	Start(root string) (<-chan Event, error)
	// Stop releases every watch and closes the event channel. It is
	// idempotent.
	Stop() error
	// WatchedDirs returns the directories with an active watch.
	WatchedDirs() []string
}

// Compile-time interface check.
var _ Watcher = (*watcher)(nil)

type watcher struct {
	log   logrus.FieldLogger
	cfg   Config
	dirs  *registry
	mu    sync.Mutex
	fsw   *fsnotify.Watcher
	root  string
	out   chan Event
	stop  chan struct{}
	done  chan struct{}
	alive bool
}

// New creates a Watcher.
func New(log logrus.FieldLogger, cfg Config) Watcher {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}

	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	return &watcher{
		log:  log.WithField("component", "watcher"),
		cfg:  cfg,
		dirs: newRegistry(),
	}
}

// Start implements Watcher.
func (w *watcher) Start(root string) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.alive {
		return nil, ErrAlreadyStarted
	}

	root, err := fsutil.Canonical(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	if !fsutil.IsDirectory(root) {
		w.log.WithField("root", root).Warn("Watch root is missing or not a directory")

		ch := make(chan Event)
		close(ch)

		return ch, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w.fsw = fsw
	w.root = root

	if _, err := w.addTree(root, false); err != nil {
		_ = fsw.Close()
		w.dirs.clear()

		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	w.out = make(chan Event, w.cfg.Buffer)
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.alive = true

	go w.loop(fsw, w.out, w.stop, w.done)

	w.log.WithFields(logrus.Fields{
		"root":         root,
		"directories":  len(w.dirs.list()),
		"quiet_period": w.cfg.QuietPeriod.String(),
	}).Info("Watching directory tree")

	return w.out, nil
}

// Stop implements Watcher.
func (w *watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.alive {
		return nil
	}

	close(w.stop)

	err := w.fsw.Close()

	<-w.done

	w.dirs.clear()
	close(w.out)

	w.alive = false
	w.fsw = nil

	w.log.WithField("root", w.root).Info("Stopped watching")

	if err != nil {
		return fmt.Errorf("closing fsnotify watcher: %w", err)
	}

	return nil
}

// WatchedDirs implements Watcher.
func (w *watcher) WatchedDirs() []string {
	return w.dirs.list()
}

// addTree watches dir and every directory below it. Directories that
// cannot be read or watched are skipped along with their subtree. When
// collect is set, the regular files found are returned.
func (w *watcher) addTree(dir string, collect bool) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && d == nil {
				return err
			}

			w.log.WithError(err).WithField("path", path).Warn("Skipping unreadable path")

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			if collect && d.Type().IsRegular() {
				files = append(files, path)
			}

			return nil
		}

		if w.dirs.has(path) {
			return nil
		}

		if err := w.fsw.Add(path); err != nil {
			w.log.WithError(err).WithField("dir", path).Warn("Cannot watch directory, skipping subtree")

			return filepath.SkipDir
		}

		w.dirs.add(path)

		return nil
	})

	return files, err
}

// tickInterval is how often pending files are checked.
func (w *watcher) tickInterval() time.Duration {
	tick := w.cfg.QuietPeriod / 4

	switch {
	case tick < 10*time.Millisecond:
		tick = 10 * time.Millisecond
	case tick > 500*time.Millisecond:
		tick = 500 * time.Millisecond
	}

	return tick
}

func (w *watcher) loop(
	fsw *fsnotify.Watcher,
	out chan<- Event,
	stop <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)

	deb := newDebouncer(w.cfg.QuietPeriod)

	ticker := time.NewTicker(w.tickInterval())
	defer ticker.Stop()

	emit := func(kind Kind, path string) bool {
		select {
		case out <- Event{Kind: kind, Path: path, Time: time.Now()}:
			return true
		case <-stop:
			return false
		}
	}

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}

			if !w.handle(ev, deb, emit) {
				return
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}

			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("Event queue overflowed, rescanning tree")
				w.rescan(deb)

				continue
			}

			w.log.WithError(err).Error("Watcher error")
		case now := <-ticker.C:
			for _, path := range deb.due(now) {
				if !fsutil.IsRegularFile(path) || !fsutil.IsUploadEligible(path) {
					continue
				}

				if !emit(FileFinalized, path) {
					return
				}
			}
		}
	}
}

// handle applies one fsnotify event. It returns false when the loop must
// exit.
func (w *watcher) handle(
	ev fsnotify.Event,
	deb *debouncer,
	emit func(Kind, string) bool,
) bool {
	path := filepath.Clean(ev.Name)
	now := time.Now()

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			// Gone already.
			return true
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return true
		}

		if !info.IsDir() {
			if fsutil.IsUploadEligible(path) {
				deb.touch(path, now)
			}

			return true
		}

		files, err := w.addTree(path, true)
		if err != nil {
			w.log.WithError(err).WithField("dir", path).Warn("Failed to watch new directory")

			return true
		}

		if !emit(DirectoryCreated, path) {
			return false
		}

		for _, f := range files {
			if fsutil.IsUploadEligible(f) {
				deb.touch(f, now)
			}
		}
	case ev.Has(fsnotify.Write):
		if fsutil.IsUploadEligible(path) {
			deb.touch(path, now)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		deb.cancel(path)

		if w.dirs.has(path) {
			deb.cancelTree(path)
			w.unwatchTree(path)
		}
	}

	return true
}

// unwatchTree drops the watches of dir and every registered directory
// below it. A renamed directory keeps its inotify watch under the old
// path, so the watch must be removed before the new name is added.
func (w *watcher) unwatchTree(dir string) {
	removed := w.dirs.removeTree(dir)

	for _, d := range removed {
		if err := w.fsw.Remove(d); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.log.WithError(err).WithField("dir", d).Debug("Failed to remove watch")
		}
	}

	w.log.WithFields(logrus.Fields{
		"dir":     dir,
		"removed": len(removed),
	}).Debug("Directory left the tree")
}

// rescan re-adds missing watches and schedules every file under the root.
func (w *watcher) rescan(deb *debouncer) {
	files, err := w.addTree(w.root, true)
	if err != nil {
		w.log.WithError(err).Error("Rescan failed")

		return
	}

	now := time.Now()

	for _, f := range files {
		if fsutil.IsUploadEligible(f) {
			deb.touch(f, now)
		}
	}
}
