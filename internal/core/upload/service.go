// Package upload pushes derived media bytes to an immutable, name-addressed
// object store and returns resolvable permanent URLs. Re-uploading a logical
// name replaces the previous object: stale same-name objects are deleted
// best-effort before the new bytes go up.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrEmptyData is returned when the payload is empty.
	ErrEmptyData = errors.New("upload data cannot be empty")

	// ErrEmptyName is returned when the logical name is empty after sanitizing.
	ErrEmptyName = errors.New("logical name cannot be empty")

	// ErrUploadFailed is returned when the store rejects the new object.
	ErrUploadFailed = errors.New("object upload failed")

	// ErrMissingBucket is returned when connecting without a bucket name.
	ErrMissingBucket = errors.New("upload bucket is required")
)

// DefaultCollisionPause is how long Upload waits between deleting stale
// same-name objects and writing the new one, to dodge name-collision races in
// eventually consistent stores.
const DefaultCollisionPause = 100 * time.Millisecond

// ObjectAPI is the slice of the S3 client the service needs. *s3.Client
// satisfies it; tests substitute a mock.
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Service is the content upload interface consumed by the handlers.
type Service interface {
	// Upload stores data under logicalName and returns its permanent URL.
	Upload(ctx context.Context, data []byte, logicalName, mimeType string) (string, error)

	// Delete removes the object for logicalName, tolerating "not found" silently.
	Delete(ctx context.Context, logicalName string) error
}

// Config holds the settings for the S3-backed upload service.
type Config struct {
	// Bucket is the target bucket name.
	Bucket string
	// Region is the bucket's region.
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible stores; empty uses AWS.
	Endpoint string
	// AccessKey and SecretKey are static credentials; empty falls back to the
	// default provider chain.
	AccessKey string
	SecretKey string
	// PublicBaseURL is the prefix for returned permanent URLs.
	PublicBaseURL string
	// CollisionPause overrides DefaultCollisionPause; negative disables the pause.
	CollisionPause time.Duration
}

// S3Service implements Service over an S3-compatible object store.
type S3Service struct {
	client ObjectAPI
	config Config
}

// NewService creates an S3Service with an already-constructed client.
func NewService(client ObjectAPI, cfg Config) *S3Service {
	if cfg.CollisionPause == 0 {
		cfg.CollisionPause = DefaultCollisionPause
	}
	return &S3Service{client: client, config: cfg}
}

// Connect builds the S3 client from config and wraps it in an S3Service.
func Connect(ctx context.Context, cfg Config) (*S3Service, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewService(client, cfg), nil
}

// sanitizeName makes a logical name safe as an object key.
func sanitizeName(name string) string {
	s := strings.ReplaceAll(name, "\\", "")
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.Trim(s, "/")
}

// Upload stores data under logicalName. Flow: best-effort delete of any
// existing object sharing the name (failures logged, never block the new
// upload), a short pause against name-collision races, then the put.
func (s *S3Service) Upload(ctx context.Context, data []byte, logicalName, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyData
	}
	key := sanitizeName(logicalName)
	if key == "" {
		return "", ErrEmptyName
	}

	if err := s.deleteByName(ctx, key); err != nil {
		slog.Warn("[UPLOAD] stale object cleanup failed, continuing with upload",
			"name", key,
			"error", err,
		)
	}

	if s.config.CollisionPause > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.config.CollisionPause):
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	url := strings.TrimSuffix(s.config.PublicBaseURL, "/") + "/" + key
	slog.Info("[UPLOAD] object stored",
		"name", key,
		"size_bytes", len(data),
		"mime", mimeType,
	)
	return url, nil
}

// Delete removes the object for logicalName. A missing object is not an error.
func (s *S3Service) Delete(ctx context.Context, logicalName string) error {
	key := sanitizeName(logicalName)
	if key == "" {
		return ErrEmptyName
	}
	return s.deleteByName(ctx, key)
}

// deleteByName lists objects under the name and deletes exact matches.
func (s *S3Service) deleteByName(ctx context.Context, key string) error {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	var firstErr error
	for _, obj := range out.Contents {
		if obj.Key == nil || *obj.Key != key {
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    obj.Key,
		}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			slog.Warn("[UPLOAD] failed to delete stale object",
				"name", key,
				"error", err,
			)
		}
	}
	return firstErr
}
