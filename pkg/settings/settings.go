package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethpandaops/dropwatch/pkg/store"
)

// Setting keys.
const (
	KeyRootPath     = "root_path"
	KeyWatchEnabled = "watch_enabled"
)

// Settings are the persisted watch preferences.
type Settings struct {
	RootPath     string `json:"root_path"`
	WatchEnabled bool   `json:"watch_enabled"`
}

// Store reads and writes watch preferences.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	SetRoot(ctx context.Context, root string) error
	SetWatchEnabled(ctx context.Context, enabled bool) error
}

// Compile-time interface check.
var _ Store = (*dbStore)(nil)

type dbStore struct {
	db store.Store
}

// New returns a settings Store backed by the settings table of db.
func New(db store.Store) Store {
	return &dbStore{db: db}
}

// Load returns the persisted settings. Missing keys yield zero values.
func (s *dbStore) Load(ctx context.Context) (Settings, error) {
	var out Settings

	root, _, err := s.db.GetSetting(ctx, KeyRootPath)
	if err != nil {
		return out, fmt.Errorf("loading %s: %w", KeyRootPath, err)
	}

	out.RootPath = root

	enabled, ok, err := s.db.GetSetting(ctx, KeyWatchEnabled)
	if err != nil {
		return out, fmt.Errorf("loading %s: %w", KeyWatchEnabled, err)
	}

	if ok {
		// An unparsable value counts as disabled.
		out.WatchEnabled, _ = strconv.ParseBool(enabled)
	}

	return out, nil
}

func (s *dbStore) SetRoot(ctx context.Context, root string) error {
	return s.db.SetSetting(ctx, KeyRootPath, root)
}

func (s *dbStore) SetWatchEnabled(ctx context.Context, enabled bool) error {
	return s.db.SetSetting(ctx, KeyWatchEnabled, strconv.FormatBool(enabled))
}
