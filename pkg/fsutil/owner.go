package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OwnerConfig holds parsed UID/GID for file ownership.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses "UID:GID" string. Returns nil if empty.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	parts := strings.Split(owner, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", parts[0], err)
	}

	gid, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", parts[1], err)
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// Chown sets ownership if owner is not nil. Best-effort, ignores errors.
func Chown(path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// MkdirAll creates directory and sets ownership.
func MkdirAll(path string, perm os.FileMode, owner *OwnerConfig) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	Chown(path, owner)

	return nil
}

// WriteFrom streams r into path and sets ownership. Data goes to a hidden
// temporary file in the same directory first, so readers never observe a
// partially written file at path.
func WriteFrom(path string, r io.Reader, owner *OwnerConfig) (int64, error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return n, fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return n, fmt.Errorf("renaming into place: %w", err)
	}

	Chown(path, owner)

	return n, nil
}
