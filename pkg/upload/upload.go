package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/sirupsen/logrus"
)

// Result identifies an uploaded object.
type Result struct {
	// RemoteID uniquely identifies the object in the remote store.
	RemoteID string `json:"remote_id"`
	// RemoteLink is a link to the object, for display.
	RemoteLink string `json:"remote_link"`
}

// Uploader stores a single file in remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload stores body under name with the given MIME type.
	Upload(ctx context.Context, body io.Reader, name, mimeType string) (*Result, error)
}

// New creates the uploader selected by cfg.Method.
func New(log logrus.FieldLogger, cfg *config.UploadConfig) (Uploader, error) {
	switch cfg.Method {
	case "s3":
		return NewS3Uploader(log, &cfg.S3)
	case "local":
		return NewLocalUploader(log, &cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported upload method %q", cfg.Method)
	}
}
