// Package session runs one watch session at a time: a watcher on a root
// directory feeding an upload worker.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/dropwatch/pkg/fsutil"
	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/ethpandaops/dropwatch/pkg/settings"
	"github.com/ethpandaops/dropwatch/pkg/watcher"
	"github.com/ethpandaops/dropwatch/pkg/worker"
	"github.com/sirupsen/logrus"
)

// ErrNoRoot is returned when no root was given and none is stored.
var ErrNoRoot = errors.New("no watch root configured")

// Phase of the controller.
type Phase string

const (
	// PhaseIdle means no session is running.
	PhaseIdle Phase = "idle"
	// PhaseWatching means a session is running, possibly inert.
	PhaseWatching Phase = "watching"
)

// State describes the current session.
type State struct {
	Phase Phase  `json:"phase"`
	Root  string `json:"root,omitempty"`
	// Inert is set when the root was unavailable at start, so nothing is
	// being observed.
	Inert       bool      `json:"inert"`
	WatchedDirs int       `json:"watched_dirs"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Tracked     int       `json:"tracked_files"`
}

// Controller starts and stops watch sessions. Calls are serialized.
type Controller struct {
	log      logrus.FieldLogger
	watcher  watcher.Watcher
	worker   *worker.Worker
	settings settings.Store
	notifier notify.Notifier

	mu        sync.Mutex
	phase     Phase
	root      string
	inert     bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle Controller.
func New(
	log logrus.FieldLogger,
	w watcher.Watcher,
	wk *worker.Worker,
	st settings.Store,
	n notify.Notifier,
) *Controller {
	if n == nil {
		n = notify.Discard
	}

	return &Controller{
		log:      log.WithField("component", "session"),
		watcher:  w,
		worker:   wk,
		settings: st,
		notifier: n,
		phase:    PhaseIdle,
	}
}

// StartSession starts watching root, stopping any running session first.
// An empty root uses the stored one. A root that does not exist yields an
// inert session rather than an error.
func (c *Controller) StartSession(ctx context.Context, root string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if root == "" {
		stored, err := c.settings.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		root = stored.RootPath
	}

	if root == "" {
		return ErrNoRoot
	}

	root, err := fsutil.Canonical(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	if c.phase == PhaseWatching {
		c.stopLocked(ctx, false)
	}

	events, err := c.watcher.Start(root)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	// The session outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := c.worker.Run(runCtx, events); err != nil {
			c.log.WithError(err).Error("Upload worker stopped")
		}
	}()

	c.phase = PhaseWatching
	c.root = root
	c.inert = !fsutil.IsDirectory(root)
	c.startedAt = time.Now().UTC()
	c.cancel = cancel
	c.done = done

	if err := c.settings.SetRoot(ctx, root); err != nil {
		c.log.WithError(err).Warn("Failed to persist root path")
	}

	if err := c.settings.SetWatchEnabled(ctx, true); err != nil {
		c.log.WithError(err).Warn("Failed to persist watch flag")
	}

	if c.inert {
		c.log.WithField("root", root).Warn("Watch root unavailable, session is inert")
		c.notifier.Notify(notify.Watching("root unavailable: " + root))
	} else {
		c.notifier.Notify(notify.Watching(root))
	}

	return nil
}

// StopSession stops the running session and waits for in-flight uploads to
// settle. It is a no-op when idle.
func (c *Controller) StopSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseIdle {
		return nil
	}

	c.stopLocked(ctx, true)

	return nil
}

// Shutdown stops the running session without clearing the stored watch
// flag, so Resume picks it up on the next start.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseIdle {
		return
	}

	c.stopLocked(ctx, false)
}

// Resume restarts the stored session if watching was enabled.
func (c *Controller) Resume(ctx context.Context) error {
	stored, err := c.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if !stored.WatchEnabled || stored.RootPath == "" {
		c.log.Debug("No session to resume")

		return nil
	}

	return c.StartSession(ctx, stored.RootPath)
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Phase:   c.phase,
		Tracked: c.worker.Tracker().Len(),
	}

	if c.phase == PhaseWatching {
		s.Root = c.root
		s.Inert = c.inert
		s.StartedAt = c.startedAt
		s.WatchedDirs = len(c.watcher.WatchedDirs())
	}

	return s
}

// stopLocked detaches the watcher, cancels the worker and waits for it.
// persist clears the stored watch flag.
func (c *Controller) stopLocked(ctx context.Context, persist bool) {
	if err := c.watcher.Stop(); err != nil {
		c.log.WithError(err).Warn("Failed to stop watcher cleanly")
	}

	c.cancel()
	<-c.done

	c.log.WithField("root", c.root).Info("Watch session stopped")

	c.phase = PhaseIdle
	c.root = ""
	c.inert = false
	c.cancel = nil
	c.done = nil

	if persist {
		if err := c.settings.SetWatchEnabled(ctx, false); err != nil {
			c.log.WithError(err).Warn("Failed to persist watch flag")
		}
	}

	c.notifier.Notify(notify.Watching("stopped"))
}
