package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists upload records and settings.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Upload records.
	RecordUpload(ctx context.Context, rec *UploadRecord) error
	ListUploads(ctx context.Context, limit int) ([]UploadRecord, error)
	UploadedPaths(ctx context.Context) ([]string, error)
	DeleteUpload(ctx context.Context, path string) error
	ResetUploads(ctx context.Context) (int64, error)

	// Settings.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	inMemory := false

	switch s.cfg.Driver {
	case "sqlite":
		path := s.cfg.SQLite.Path
		inMemory = path == ":memory:"

		if !inMemory && !strings.Contains(path, "?") {
			path += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}

		dialector = sqlite.Open(path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database.
	if inMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&UploadRecord{},
		&Setting{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("State database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// RecordUpload inserts or updates an upload record keyed by path.
func (s *store) RecordUpload(ctx context.Context, rec *UploadRecord) error {
	result := s.db.WithContext(ctx).
		Where("path = ?", rec.Path).
		Assign(rec).
		FirstOrCreate(rec)
	if result.Error != nil {
		return fmt.Errorf("recording upload: %w", result.Error)
	}

	return nil
}

// ListUploads returns the most recent uploads first. A limit <= 0 returns
// every record.
func (s *store) ListUploads(ctx context.Context, limit int) ([]UploadRecord, error) {
	q := s.db.WithContext(ctx).Order("uploaded_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []UploadRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}

	return recs, nil
}

// UploadedPaths returns the path of every recorded upload.
func (s *store) UploadedPaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := s.db.WithContext(ctx).
		Model(&UploadRecord{}).
		Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("listing uploaded paths: %w", err)
	}

	return paths, nil
}

// DeleteUpload removes the record for path, if any.
func (s *store) DeleteUpload(ctx context.Context, path string) error {
	if err := s.db.WithContext(ctx).
		Where("path = ?", path).
		Delete(&UploadRecord{}).Error; err != nil {
		return fmt.Errorf("deleting upload %s: %w", path, err)
	}

	return nil
}

// ResetUploads deletes every upload record and returns how many were removed.
func (s *store) ResetUploads(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&UploadRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("resetting uploads: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// GetSetting returns the value stored under key. The bool is false when the
// key has never been set.
func (s *store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var setting Setting

	err := s.db.WithContext(ctx).
		Where(&Setting{Key: key}).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("getting setting %s: %w", key, err)
	}

	return setting.Value, true, nil
}

// SetSetting inserts or updates a setting.
func (s *store) SetSetting(ctx context.Context, key, value string) error {
	setting := &Setting{Key: key, Value: value}

	result := s.db.WithContext(ctx).
		Where(&Setting{Key: key}).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(setting)
	if result.Error != nil {
		return fmt.Errorf("setting %s: %w", key, result.Error)
	}

	return nil
}
