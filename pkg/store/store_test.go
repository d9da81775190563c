package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/ethpandaops/dropwatch/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_RecordAndListUploads(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()

	require.NoError(t, s.RecordUpload(ctx, &store.UploadRecord{
		Path:       "/watch/a.jpg",
		Name:       "a.jpg",
		RemoteID:   "uploads/a.jpg",
		MimeType:   "image/jpeg",
		Size:       10,
		UploadedAt: now.Add(-time.Minute),
	}))
	require.NoError(t, s.RecordUpload(ctx, &store.UploadRecord{
		Path:       "/watch/b.pdf",
		Name:       "b.pdf",
		RemoteID:   "uploads/b.pdf",
		MimeType:   "application/pdf",
		Size:       20,
		UploadedAt: now,
	}))

	recs, err := s.ListUploads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b.pdf", recs[0].Name, "newest first")
	assert.Equal(t, "a.jpg", recs[1].Name)

	limited, err := s.ListUploads(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b.pdf", limited[0].Name)

	paths, err := s.UploadedPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/watch/a.jpg", "/watch/b.pdf"}, paths)
}

func TestStore_RecordUploadIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := &store.UploadRecord{
		Path:       "/watch/a.jpg",
		Name:       "a.jpg",
		RemoteID:   "v1",
		UploadedAt: time.Now().UTC(),
	}
	require.NoError(t, s.RecordUpload(ctx, rec))

	again := &store.UploadRecord{
		Path:       "/watch/a.jpg",
		Name:       "a.jpg",
		RemoteID:   "v2",
		UploadedAt: time.Now().UTC(),
	}
	require.NoError(t, s.RecordUpload(ctx, again))

	recs, err := s.ListUploads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "v2", recs[0].RemoteID)
}

func TestStore_DeleteAndReset(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/w/1", "/w/2", "/w/3"} {
		require.NoError(t, s.RecordUpload(ctx, &store.UploadRecord{
			Path:       p,
			Name:       p,
			UploadedAt: time.Now().UTC(),
		}))
	}

	require.NoError(t, s.DeleteUpload(ctx, "/w/2"))
	// Deleting a missing path is not an error.
	require.NoError(t, s.DeleteUpload(ctx, "/w/missing"))

	paths, err := s.UploadedPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/w/1", "/w/3"}, paths)

	n, err := s.ResetUploads(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	paths, err = s.UploadedPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestStore_Settings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "root_path")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "root_path", "/watch"))

	v, ok, err := s.GetSetting(ctx, "root_path")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/watch", v)

	require.NoError(t, s.SetSetting(ctx, "root_path", "/other"))

	v, ok, err = s.GetSetting(ctx, "root_path")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/other", v)
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := store.NewStore(logrus.New(), &config.DatabaseConfig{Driver: "mysql"})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
	assert.NoError(t, s.Stop())
}
