package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/ethpandaops/dropwatch/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// localUploader mirrors files into a local directory.
type localUploader struct {
	log   logrus.FieldLogger
	dir   string
	owner *fsutil.OwnerConfig
}

// Ensure interface compliance.
var _ Uploader = (*localUploader)(nil)

// NewLocalUploader creates an uploader that copies files into cfg.Dir.
func NewLocalUploader(
	log logrus.FieldLogger,
	cfg *config.LocalUploadConfig,
) (Uploader, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("local upload dir is required")
	}

	owner, err := fsutil.ParseOwner(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("parsing upload.local.owner: %w", err)
	}

	dir, err := fsutil.Canonical(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload.local.dir: %w", err)
	}

	return &localUploader{
		log:   log.WithField("component", "local-uploader"),
		dir:   dir,
		owner: owner,
	}, nil
}

// Preflight creates the mirror directory and checks that it is writable.
func (u *localUploader) Preflight(_ context.Context) error {
	if err := fsutil.MkdirAll(u.dir, 0o755, u.owner); err != nil {
		return fmt.Errorf("creating mirror dir %s: %w", u.dir, err)
	}

	probe := filepath.Join(u.dir, ".dropwatch-write-test")
	if _, err := fsutil.WriteFrom(probe, strings.NewReader("ok"), nil); err != nil {
		return fmt.Errorf("writing to mirror dir %s: %w", u.dir, err)
	}

	_ = os.Remove(probe)

	return nil
}

// Upload copies body to dir/name. An existing file with the same name is
// replaced.
func (u *localUploader) Upload(
	ctx context.Context,
	body io.Reader,
	name, _ string,
) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file name %q", name)
	}

	if err := fsutil.MkdirAll(u.dir, 0o755, u.owner); err != nil {
		return nil, fmt.Errorf("creating mirror dir: %w", err)
	}

	dst := filepath.Join(u.dir, base)

	n, err := fsutil.WriteFrom(dst, &ctxReader{ctx: ctx, r: body}, u.owner)
	if err != nil {
		return nil, err
	}

	u.log.WithFields(logrus.Fields{
		"path": dst,
		"size": units.HumanSize(float64(n)),
	}).Debug("Mirrored file")

	link := url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}

	return &Result{RemoteID: dst, RemoteLink: link.String()}, nil
}

// ctxReader aborts a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
