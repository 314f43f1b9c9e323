package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the S3 media host.
type S3Options struct {
	Bucket    string
	KeyPrefix string // e.g. "lms"; prepended to every object key
	Region    string
	Endpoint  string // optional, for S3-compatible hosts (MinIO, R2, ...)
	PublicURL string // base URL objects are served from; derived if empty
}

// S3Service stores media on Amazon S3 or a compatible API.
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	opts     S3Options
}

// NewS3Service builds the S3 client from the ambient AWS credential chain
// (env, shared config, instance role) and the given options.
func NewS3Service(ctx context.Context, opts S3Options) (*S3Service, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
		opts:     opts,
	}, nil
}

var _ Service = (*S3Service)(nil)

// Upload stores the object under keyPrefix/key and returns its reference
// id and public URL. Objects are world-readable — everything that goes
// through this service (avatars, thumbnails, lecture media) is served to
// browsers directly.
func (s *S3Service) Upload(ctx context.Context, key string, body io.Reader, contentType string) (Asset, error) {
	if key == "" {
		return Asset{}, fmt.Errorf("storage: object key is required")
	}

	fullKey := strings.Trim(s.opts.KeyPrefix, "/")
	if fullKey != "" {
		fullKey += "/"
	}
	fullKey += strings.TrimPrefix(key, "/")

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(fullKey),
		Body:   body,
		ACL:    types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return Asset{}, fmt.Errorf("storage: uploading %s: %w", fullKey, err)
	}

	return Asset{ID: fullKey, URL: s.objectURL(fullKey)}, nil
}

// Delete removes an object by its reference id. Deleting a nonexistent
// object is not an error — S3's DeleteObject is idempotent.
func (s *S3Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("storage: object id is required")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("storage: deleting %s: %w", id, err)
	}

	return nil
}

func (s *S3Service) objectURL(key string) string {
	if s.opts.PublicURL != "" {
		return strings.TrimSuffix(s.opts.PublicURL, "/") + "/" + key
	}
	if s.opts.Endpoint != "" {
		return strings.TrimSuffix(s.opts.Endpoint, "/") + "/" + s.opts.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
}
