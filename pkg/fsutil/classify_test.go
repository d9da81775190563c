package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUploadEligible(t *testing.T) {
	tests := []struct {
		name string
		file string
		want bool
	}{
		{name: "plain pdf", file: "report.pdf", want: true},
		{name: "no extension", file: "README", want: true},
		{name: "full path", file: "/watch/sub/photo.jpg", want: true},
		{name: "hidden file", file: ".DS_Store", want: false},
		{name: "hidden in path", file: "/watch/.hidden", want: false},
		{name: "tmp", file: "draft.tmp", want: false},
		{name: "temp", file: "draft.temp", want: false},
		{name: "part", file: "photo.jpg.part", want: false},
		{name: "crdownload", file: "movie.mp4.crdownload", want: false},
		{name: "uppercase part", file: "PHOTO.JPG.PART", want: false},
		{name: "mixed case tmp", file: "Notes.TmP", want: false},
		{name: "suffix inside name", file: "part.report.pdf", want: true},
		{name: "tmp without dot", file: "filetmp", want: true},
		{name: "dot only", file: ".", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUploadEligible(tt.file))
		})
	}
}

func TestIsDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, IsDirectory(dir))
	assert.False(t, IsDirectory(file))
	assert.False(t, IsDirectory(filepath.Join(dir, "missing")))

	assert.True(t, IsRegularFile(file))
	assert.False(t, IsRegularFile(dir))
}

func TestIsRegularFile_SymlinkNotFollowed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))

	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	assert.True(t, IsRegularFile(target))
	assert.False(t, IsRegularFile(link))
}

func TestCanonical(t *testing.T) {
	dir := t.TempDir()

	got, err := Canonical(filepath.Join(dir, "a", "..", "b") + string(filepath.Separator))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b"), got)
}

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *OwnerConfig
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "valid", input: "1000:1000", want: &OwnerConfig{UID: 1000, GID: 1000}},
		{name: "missing gid", input: "1000", wantErr: true},
		{name: "bad uid", input: "abc:10", wantErr: true},
		{name: "bad gid", input: "10:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOwner(tt.input)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
