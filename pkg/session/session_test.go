package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/dropwatch/pkg/dedup"
	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/ethpandaops/dropwatch/pkg/settings"
	"github.com/ethpandaops/dropwatch/pkg/upload"
	"github.com/ethpandaops/dropwatch/pkg/watcher"
	"github.com/ethpandaops/dropwatch/pkg/worker"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	mu sync.Mutex
	s  settings.Settings
}

func (m *memSettings) Load(context.Context) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.s, nil
}

func (m *memSettings) SetRoot(_ context.Context, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.RootPath = root

	return nil
}

func (m *memSettings) SetWatchEnabled(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.WatchEnabled = enabled

	return nil
}

func (m *memSettings) get() settings.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.s
}

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	block chan struct{}
}

func (f *fakeUploader) Preflight(context.Context) error { return nil }

func (f *fakeUploader) Upload(ctx context.Context, body io.Reader, name, _ string) (*upload.Result, error) {
	_, _ = io.Copy(io.Discard, body)

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()

	return &upload.Result{RemoteID: name}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.names...)
}

type recorder struct {
	mu       sync.Mutex
	statuses []notify.Status
}

func (r *recorder) Notify(s notify.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses = append(r.statuses, s)
}

func (r *recorder) watching() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string

	for _, s := range r.statuses {
		if s.Kind == notify.KindWatching {
			out = append(out, s.Detail)
		}
	}

	return out
}

func (r *recorder) completed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string

	for _, s := range r.statuses {
		if s.Kind == notify.KindCompleted {
			out = append(out, s.Name)
		}
	}

	return out
}

type harness struct {
	ctrl     *Controller
	watcher  watcher.Watcher
	tracker  *dedup.Tracker
	uploader *fakeUploader
	settings *memSettings
	notifier *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	h := &harness{
		watcher:  watcher.New(log, watcher.Config{QuietPeriod: 50 * time.Millisecond}),
		tracker:  dedup.New(),
		uploader: &fakeUploader{},
		settings: &memSettings{},
		notifier: &recorder{},
	}

	wk := worker.New(log, worker.Config{}, h.uploader, h.tracker, nil, h.notifier)
	h.ctrl = New(log, h.watcher, wk, h.settings, h.notifier)

	t.Cleanup(func() { _ = h.ctrl.StopSession(context.Background()) })

	return h
}

func TestController_StartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()

	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)

	require.NoError(t, h.ctrl.StartSession(ctx, root))

	st := h.ctrl.State()
	assert.Equal(t, PhaseWatching, st.Phase)
	assert.Equal(t, root, st.Root)
	assert.False(t, st.Inert)
	assert.Equal(t, 1, st.WatchedDirs)
	assert.Equal(t, settings.Settings{RootPath: root, WatchEnabled: true}, h.settings.get())

	require.NoError(t, h.ctrl.StopSession(ctx))

	st = h.ctrl.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Zero(t, st.WatchedDirs)
	assert.Empty(t, h.watcher.WatchedDirs())
	assert.False(t, h.settings.get().WatchEnabled)
	assert.Equal(t, root, h.settings.get().RootPath)

	assert.Equal(t, []string{root, "stopped"}, h.notifier.watching())
}

func TestController_StopWhileIdle(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.StopSession(context.Background()))
	assert.Empty(t, h.notifier.watching())
}

func TestController_UploadsNewFiles(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()

	require.NoError(t, h.ctrl.StartSession(context.Background(), root))

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	require.Eventually(t, func() bool {
		return h.ctrl.State().WatchedDirs == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "report.pdf"), []byte("%PDF"), 0o644))

	require.Eventually(t, func() bool {
		return len(h.notifier.completed()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"report.pdf"}, h.uploader.uploaded())
	assert.Equal(t, []string{"report.pdf"}, h.notifier.completed())
}

func TestController_RestartWithNewRoot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := t.TempDir()
	second := t.TempDir()

	require.NoError(t, h.ctrl.StartSession(ctx, first))
	require.NoError(t, h.ctrl.StartSession(ctx, second))

	assert.Equal(t, second, h.ctrl.State().Root)
	assert.Equal(t, []string{second}, h.watcher.WatchedDirs())

	require.NoError(t, os.WriteFile(filepath.Join(first, "old.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(second, "new.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return len(h.uploader.uploaded()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, []string{"new.txt"}, h.uploader.uploaded())
}

func TestController_MissingRootIsInert(t *testing.T) {
	h := newHarness(t)
	root := filepath.Join(t.TempDir(), "not-yet")

	require.NoError(t, h.ctrl.StartSession(context.Background(), root))

	st := h.ctrl.State()
	assert.Equal(t, PhaseWatching, st.Phase)
	assert.True(t, st.Inert)
	assert.Zero(t, st.WatchedDirs)
	assert.Equal(t, []string{"root unavailable: " + root}, h.notifier.watching())

	require.NoError(t, h.ctrl.StopSession(context.Background()))
	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)
}

func TestController_StoredRoot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.ctrl.StartSession(ctx, ""), ErrNoRoot)

	root := t.TempDir()
	h.settings.s.RootPath = root

	require.NoError(t, h.ctrl.StartSession(ctx, ""))
	assert.Equal(t, root, h.ctrl.State().Root)
}

func TestController_CanonicalRoot(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()

	require.NoError(t, h.ctrl.StartSession(context.Background(), root+string(filepath.Separator)+"."))
	assert.Equal(t, root, h.ctrl.State().Root)
}

func TestController_Resume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()

	h.settings.s = settings.Settings{RootPath: root, WatchEnabled: false}
	require.NoError(t, h.ctrl.Resume(ctx))
	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)

	h.settings.s.WatchEnabled = true
	require.NoError(t, h.ctrl.Resume(ctx))
	assert.Equal(t, PhaseWatching, h.ctrl.State().Phase)
	assert.Equal(t, root, h.ctrl.State().Root)
}

func TestController_ShutdownKeepsWatchFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartSession(ctx, t.TempDir()))
	h.ctrl.Shutdown(ctx)

	assert.Equal(t, PhaseIdle, h.ctrl.State().Phase)
	assert.True(t, h.settings.get().WatchEnabled)
}

func TestController_StopCancelsInFlightUpload(t *testing.T) {
	h := newHarness(t)
	h.uploader.block = make(chan struct{})
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, h.ctrl.StartSession(ctx, root))

	path := filepath.Join(root, "slow.mov")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))

	require.Eventually(t, func() bool {
		s, ok := h.tracker.State(path)

		return ok && s == dedup.InFlight
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.ctrl.StopSession(ctx))

	// The reservation is gone once stop returns.
	_, tracked := h.tracker.State(path)
	assert.False(t, tracked)
	assert.Empty(t, h.uploader.uploaded())

	// A new session can admit the same path.
	assert.True(t, h.tracker.TryAdmit(path))
}
