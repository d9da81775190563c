package worker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/dropwatch/pkg/dedup"
	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadBatch(t *testing.T) {
	h := newHarness(t, Config{})

	a := h.file(t, "a.png", "png")
	b := h.file(t, "b.csv", "1,2")
	missing := filepath.Join(h.dir, "missing.txt")

	var progress []BatchState

	state := h.worker.UploadBatch(context.Background(), []string{a, missing, b}, func(s BatchState) {
		progress = append(progress, s)
	})

	_, err := uuid.Parse(state.ID)
	require.NoError(t, err)

	assert.False(t, state.Uploading)
	assert.Equal(t, 3, state.Total)
	assert.Equal(t, 3, state.Current)
	require.Len(t, state.Results, 3)

	assert.True(t, state.Results[0].Succeeded())
	assert.Equal(t, "id-a.png", state.Results[0].RemoteID)
	assert.False(t, state.Results[1].Succeeded())
	assert.Equal(t, "missing.txt", state.Results[1].Name)
	assert.True(t, state.Results[2].Succeeded())
	assert.Equal(t, 1, state.Failed())

	// Initial state, one per file, final state.
	require.Len(t, progress, 5)
	assert.True(t, progress[0].Uploading)
	assert.Empty(t, progress[0].Results)
	assert.Len(t, progress[2].Results, 2)
	assert.False(t, progress[4].Uploading)

	assert.Equal(t, []string{"a.png", "b.csv"}, h.uploader.names())
	assert.Equal(t, "text/csv", h.uploader.calls[1].mimeType)

	assert.Equal(t, []notify.Kind{
		notify.KindUploading, notify.KindCompleted,
		notify.KindUploading, notify.KindFailed,
		notify.KindUploading, notify.KindCompleted,
	}, h.notifier.kinds())

	s, ok := h.tracker.State(a)
	assert.True(t, ok)
	assert.Equal(t, dedup.Done, s)
}

func TestUploadBatch_IgnoresDedup(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.file(t, "a.png", "png")
	h.tracker.MarkDone(a)

	state := h.worker.UploadBatch(context.Background(), []string{a}, nil)

	require.Len(t, state.Results, 1)
	assert.True(t, state.Results[0].Succeeded())
	assert.Len(t, h.uploader.names(), 1)
}

func TestUploadBatch_Cancelled(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.file(t, "a.png", "png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := h.worker.UploadBatch(ctx, []string{a}, nil)

	require.Len(t, state.Results, 1)
	assert.False(t, state.Results[0].Succeeded())
	assert.Empty(t, h.uploader.names())
}
