package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_DueAfterQuietPeriod(t *testing.T) {
	d := newDebouncer(100 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	d.touch("/w/a", t0)

	assert.Empty(t, d.due(t0.Add(50*time.Millisecond)))
	assert.Equal(t, []string{"/w/a"}, d.due(t0.Add(100*time.Millisecond)))
	assert.Zero(t, d.len())
}

func TestDebouncer_TouchPostpones(t *testing.T) {
	d := newDebouncer(100 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	d.touch("/w/a", t0)
	d.touch("/w/a", t0.Add(80*time.Millisecond))

	assert.Empty(t, d.due(t0.Add(120*time.Millisecond)))
	assert.Equal(t, []string{"/w/a"}, d.due(t0.Add(180*time.Millisecond)))
}

func TestDebouncer_OrderedByLastActivity(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	d.touch("/w/c", t0)
	d.touch("/w/a", t0)
	d.touch("/w/b", t0)
	d.touch("/w/c", t0)

	assert.Equal(t, []string{"/w/a", "/w/b", "/w/c"}, d.due(t0.Add(time.Second)))
}

func TestDebouncer_Cancel(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	sub := filepath.Join("/w", "sub")

	d.touch("/w/a", t0)
	d.touch(filepath.Join(sub, "x"), t0)
	d.touch(filepath.Join(sub, "deep", "y"), t0)
	d.touch("/w/subway", t0)

	assert.True(t, d.cancel("/w/a"))
	assert.False(t, d.cancel("/w/a"))
	assert.Equal(t, 2, d.cancelTree(sub))

	assert.Equal(t, []string{"/w/subway"}, d.due(t0.Add(time.Second)))
}

func TestRegistry(t *testing.T) {
	r := newRegistry()

	assert.True(t, r.add("/w"))
	assert.False(t, r.add("/w"))
	r.add("/w/a")
	r.add("/w/a/b")
	r.add("/w/ab")

	assert.True(t, r.has("/w/a"))
	assert.ElementsMatch(t, []string{"/w/a", "/w/a/b"}, r.removeTree("/w/a"))
	assert.Equal(t, []string{"/w", "/w/ab"}, r.list())

	r.clear()
	assert.Empty(t, r.list())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "directory_created", DirectoryCreated.String())
	assert.Equal(t, "file_finalized", FileFinalized.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
