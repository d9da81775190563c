package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/sirupsen/logrus"
)

const defaultS3Prefix = "uploads"

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log     logrus.FieldLogger
	cfg     *config.S3UploadConfig
	client  *s3.Client
	presign *s3.PresignClient
	expiry  time.Duration
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) (Uploader, error) {
	expiry, err := cfg.PresignExpiryDuration()
	if err != nil {
		return nil, err
	}

	client := newS3Client(cfg)

	u := &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: client,
		expiry: expiry,
	}

	if expiry > 0 {
		u.presign = s3.NewPresignClient(client)
	}

	return u, nil
}

// newS3Client builds an S3 client with static credentials when configured
// and the default credential chain otherwise.
func newS3Client(cfg *config.S3UploadConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("dropwatch write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(u.resolveKey(".dropwatch-write-test")),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s (%s): %w",
			u.cfg.Bucket, errorCode(err), err)
	}

	return nil
}

// Upload stores body under prefix/name. An existing object with the same
// key is overwritten.
func (u *s3Uploader) Upload(
	ctx context.Context,
	body io.Reader,
	name, mimeType string,
) (*Result, error) {
	key := u.resolveKey(name)

	if mimeType == "" {
		mimeType = DefaultContentType
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(mimeType),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if u.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(u.cfg.ACL)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading file")

	out, err := u.client.PutObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("PutObject %s (%s): %w", key, errorCode(err), err)
	}

	result := &Result{
		RemoteID:   key,
		RemoteLink: fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key),
	}

	if out.VersionId != nil && *out.VersionId != "" {
		result.RemoteID = *out.VersionId
	}

	if u.presign != nil {
		link, err := u.presignedLink(ctx, key)
		if err != nil {
			// The object is stored; fall back to the s3:// link.
			u.log.WithError(err).WithField("key", key).Warn("Failed to presign link")
		} else {
			result.RemoteLink = link
		}
	}

	return result, nil
}

// presignedLink returns a presigned GET URL for key.
func (u *s3Uploader) presignedLink(ctx context.Context, key string) (string, error) {
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning GetObject: %w", err)
	}

	return req.URL, nil
}

// resolveKey builds the S3 key for a file name.
func (u *s3Uploader) resolveKey(name string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultS3Prefix
	}

	return prefix + "/" + strings.TrimLeft(name, "/")
}

// errorCode extracts the service error code, if any.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	return "unknown"
}
