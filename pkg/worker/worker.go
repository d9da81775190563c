// Package worker uploads finalized files, tracking what has already been
// uploaded and reporting every step to a notifier.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dropwatch/pkg/dedup"
	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/ethpandaops/dropwatch/pkg/store"
	"github.com/ethpandaops/dropwatch/pkg/upload"
	"github.com/ethpandaops/dropwatch/pkg/watcher"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrFileTooLarge is returned for files above the configured size limit.
var ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

// Config configures a Worker.
type Config struct {
	// Concurrency is the number of parallel uploads. Values below one mean
	// serial uploads in event order.
	Concurrency int
	// UploadsPerSecond limits upload starts. Zero disables the limit.
	UploadsPerSecond float64
	// MaxFileSize rejects larger files. Zero disables the limit.
	MaxFileSize int64
}

// Recorder persists successful uploads.
type Recorder interface {
	RecordUpload(ctx context.Context, rec *store.UploadRecord) error
}

// WatchedFile is a finalized file picked up for upload.
type WatchedFile struct {
	Path         string    `json:"path"`
	Directory    string    `json:"directory"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Outcome is the result of one upload attempt. Exactly one of Result and
// Err is set.
type Outcome struct {
	File   WatchedFile
	Result *upload.Result
	Err    error
}

// Worker consumes watcher events and uploads finalized files.
type Worker struct {
	log      logrus.FieldLogger
	cfg      Config
	uploader upload.Uploader
	tracker  *dedup.Tracker
	recorder Recorder
	notifier notify.Notifier
	limiter  *rate.Limiter
	wg       sync.WaitGroup
}

// New creates a Worker. recorder may be nil.
func New(
	log logrus.FieldLogger,
	cfg Config,
	uploader upload.Uploader,
	tracker *dedup.Tracker,
	recorder Recorder,
	notifier notify.Notifier,
) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	if notifier == nil {
		notifier = notify.Discard
	}

	w := &Worker{
		log:      log.WithField("component", "worker"),
		cfg:      cfg,
		uploader: uploader,
		tracker:  tracker,
		recorder: recorder,
		notifier: notifier,
	}

	if cfg.UploadsPerSecond > 0 {
		burst := int(math.Ceil(cfg.UploadsPerSecond))
		w.limiter = rate.NewLimiter(rate.Limit(cfg.UploadsPerSecond), burst)
	}

	return w
}

// Tracker returns the dedup tracker used by the worker.
func (w *Worker) Tracker() *dedup.Tracker {
	return w.tracker
}

// Run consumes events until the channel closes or ctx is cancelled.
// Admission happens on the consuming goroutine, uploads run on
// Config.Concurrency goroutines fed by an unbounded FIFO queue. When the
// channel closes, queued uploads still run; when ctx is cancelled they are
// released unprocessed.
func (w *Worker) Run(ctx context.Context, events <-chan watcher.Event) error {
	w.wg.Add(1)
	defer w.wg.Done()

	q := newQueue()

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				f, ok := q.pop(gctx)
				if !ok {
					return nil
				}

				w.process(gctx, f)
			}
		})
	}

consume:
	for {
		select {
		case <-ctx.Done():
			break consume
		case ev, ok := <-events:
			if !ok {
				break consume
			}

			if f, admitted := w.admit(ev); admitted {
				q.push(f)
			}
		}
	}

	q.close()

	err := g.Wait()

	for _, f := range q.drain() {
		w.tracker.Release(f.Path)
	}

	return err
}

// HandleEvent processes a single event synchronously. It returns nil when
// the event was ignored.
func (w *Worker) HandleEvent(ctx context.Context, ev watcher.Event) *Outcome {
	f, admitted := w.admit(ev)
	if !admitted {
		return nil
	}

	out := w.process(ctx, f)

	return &out
}

// Wait blocks until every running Run and UploadBatch call has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) admit(ev watcher.Event) (WatchedFile, bool) {
	if ev.Kind != watcher.FileFinalized {
		return WatchedFile{}, false
	}

	if !w.tracker.TryAdmit(ev.Path) {
		w.log.WithField("path", ev.Path).Debug("Skipping already tracked file")

		return WatchedFile{}, false
	}

	return WatchedFile{
		Path:         ev.Path,
		Directory:    filepath.Dir(ev.Path),
		DiscoveredAt: ev.Time,
	}, true
}

// process uploads an admitted file and settles its dedup entry.
func (w *Worker) process(ctx context.Context, f WatchedFile) Outcome {
	name := filepath.Base(f.Path)
	log := w.log.WithField("path", f.Path)

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.tracker.Release(f.Path)

			return Outcome{File: f, Err: err}
		}
	}

	res, err := w.uploadFile(ctx, f.Path)
	if err != nil {
		w.tracker.Release(f.Path)

		if ctx.Err() != nil {
			log.WithError(err).Debug("Upload cancelled")

			return Outcome{File: f, Err: err}
		}

		log.WithError(err).Warn("Upload failed")
		w.notifier.Notify(notify.Failed(name, err.Error()))

		return Outcome{File: f, Err: err}
	}

	w.tracker.MarkDone(f.Path)
	w.notifier.Notify(notify.Completed(name, res.RemoteLink))

	return Outcome{File: f, Result: res}
}

// uploadFile uploads one file and records it. It reports Uploading once
// the file has been accepted.
func (w *Worker) uploadFile(ctx context.Context, path string) (*upload.Result, error) {
	name := filepath.Base(path)

	w.notifier.Notify(notify.Uploading(name))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	if w.cfg.MaxFileSize > 0 && info.Size() > w.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s > %s", ErrFileTooLarge,
			units.HumanSize(float64(info.Size())),
			units.HumanSize(float64(w.cfg.MaxFileSize)),
		)
	}

	mimeType := upload.ContentTypeFor(name)
	start := time.Now()

	res, err := w.uploader.Upload(ctx, f, name, mimeType)
	if err != nil {
		return nil, err
	}

	w.log.WithFields(logrus.Fields{
		"path":      path,
		"size":      units.HumanSize(float64(info.Size())),
		"mime_type": mimeType,
		"remote_id": res.RemoteID,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Uploaded file")

	if w.recorder != nil {
		rec := &store.UploadRecord{
			Path:       path,
			Name:       name,
			RemoteID:   res.RemoteID,
			RemoteLink: res.RemoteLink,
			MimeType:   mimeType,
			Size:       info.Size(),
			UploadedAt: time.Now().UTC(),
		}

		// The object is stored; a bookkeeping failure only costs a
		// re-upload after restart.
		if err := w.recorder.RecordUpload(context.WithoutCancel(ctx), rec); err != nil {
			w.log.WithError(err).WithField("path", path).Warn("Failed to record upload")
		}
	}

	return res, nil
}
