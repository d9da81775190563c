package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// transientSuffixes mark files that editors and downloaders write before
// renaming them into place.
var transientSuffixes = []string{".tmp", ".temp", ".part", ".crdownload"}

// IsDirectory reports whether path exists and is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}

// IsUploadEligible reports whether a file name denotes a finished artifact.
// Hidden files and known partial-download suffixes are rejected. Only the
// base name is inspected.
func IsUploadEligible(name string) bool {
	base := filepath.Base(name)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return false
	}

	if strings.HasPrefix(base, ".") {
		return false
	}

	lower := strings.ToLower(base)
	for _, suffix := range transientSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}

	return true
}

// IsRegularFile reports whether path exists and is a regular file.
// Symbolic links are not followed.
func IsRegularFile(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// Canonical returns the absolute, cleaned form of path.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(abs), nil
}
