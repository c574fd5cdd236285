// Package storage puts chat image attachments into S3-compatible object
// storage and hands back a public URL for them.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/sakif/invite-chat/internal/apperror"
	"github.com/sakif/invite-chat/internal/config"
)

// Uploader stores an uploaded file and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error)
}

// PutObjectAPI is the subset of *s3.Client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader implements Uploader on top of an S3 bucket.
type S3Uploader struct {
	client    PutObjectAPI
	bucket    string
	publicURL string
	allowed   map[string]struct{}

	now   func() time.Time
	newID func() uuid.UUID
}

// NewS3Uploader builds an S3 client from cfg. Static credentials are used
// when configured, otherwise the SDK's default credential chain. A custom
// endpoint switches to path-style addressing, which MinIO and most
// S3-compatible providers expect.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3UploaderWithClient(client, cfg.Bucket, PublicBaseURL(cfg), cfg.AllowedFormats), nil
}

// NewS3UploaderWithClient wires an uploader around an existing client.
func NewS3UploaderWithClient(client PutObjectAPI, bucket, publicURL string, allowedFormats []string) *S3Uploader {
	allowed := make(map[string]struct{}, len(allowedFormats))
	for _, f := range allowedFormats {
		allowed[strings.ToLower(strings.TrimPrefix(f, "."))] = struct{}{}
	}
	return &S3Uploader{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		allowed:   allowed,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// PublicBaseURL returns the URL prefix objects are served under: the
// configured UPLOAD_PUBLIC_URL, else the endpoint's path-style bucket URL,
// else the AWS virtual-hosted bucket URL.
func PublicBaseURL(cfg config.UploadConfig) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// Upload stores body under a fresh date-partitioned key. The file extension
// is the only thing checked.
func (u *S3Uploader) Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error) {
	ext, err := u.extension(filename)
	if err != nil {
		return "", err
	}

	key := u.objectKey(ext)
	in := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", apperror.Unavailable("storing upload", err)
	}
	return u.publicURL + "/" + key, nil
}

func (u *S3Uploader) extension(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if _, ok := u.allowed[ext]; !ok || ext == "" {
		return "", apperror.ValidationFailed("image",
			fmt.Sprintf("file type %q is not allowed", path.Ext(filename)))
	}
	return ext, nil
}

// objectKey returns uploads/YYYY/MM/DD/<uuid>.<ext>.
func (u *S3Uploader) objectKey(ext string) string {
	d := u.now().UTC()
	return fmt.Sprintf("uploads/%04d/%02d/%02d/%s.%s", d.Year(), d.Month(), d.Day(), u.newID(), ext)
}
