package worker

import (
	"context"
	"path/filepath"

	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BatchResult is the outcome for one file of a manual batch.
type BatchResult struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	RemoteID   string `json:"remote_id,omitempty"`
	RemoteLink string `json:"remote_link,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Succeeded reports whether the file was uploaded.
func (r BatchResult) Succeeded() bool {
	return r.Error == ""
}

// BatchState is the progress of a manual batch.
type BatchState struct {
	ID        string        `json:"id"`
	Uploading bool          `json:"uploading"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Results   []BatchResult `json:"results"`
}

// Failed returns how many files failed so far.
func (s BatchState) Failed() int {
	n := 0

	for _, r := range s.Results {
		if !r.Succeeded() {
			n++
		}
	}

	return n
}

// UploadBatch uploads the given files one after another, bypassing dedup
// admission. A failing file does not stop the batch. progress, when not
// nil, receives a copy of the state before the first file and after every
// file.
func (w *Worker) UploadBatch(
	ctx context.Context,
	paths []string,
	progress func(BatchState),
) BatchState {
	w.wg.Add(1)
	defer w.wg.Done()

	state := BatchState{
		ID:        uuid.NewString(),
		Uploading: true,
		Total:     len(paths),
		Results:   make([]BatchResult, 0, len(paths)),
	}

	log := w.log.WithFields(logrus.Fields{
		"batch": state.ID,
		"files": state.Total,
	})
	log.Info("Starting manual upload")

	report := func() {
		if progress != nil {
			snapshot := state
			snapshot.Results = append([]BatchResult(nil), state.Results...)
			progress(snapshot)
		}
	}

	report()

	for i, p := range paths {
		state.Current = i + 1

		result := BatchResult{Path: p, Name: filepath.Base(p)}

		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
		} else if abs, err := filepath.Abs(p); err != nil {
			result.Error = err.Error()
		} else {
			result.Path = abs

			res, err := w.uploadFile(ctx, abs)
			if err != nil {
				result.Error = err.Error()
				w.notifier.Notify(notify.Failed(result.Name, result.Error))
			} else {
				result.RemoteID = res.RemoteID
				result.RemoteLink = res.RemoteLink

				// Keeps the watcher from uploading the same file again.
				w.tracker.MarkDone(abs)
				w.notifier.Notify(notify.Completed(result.Name, res.RemoteLink))
			}
		}

		state.Results = append(state.Results, result)
		report()
	}

	state.Uploading = false
	report()

	log.WithField("failed", state.Failed()).Info("Manual upload finished")

	return state
}
