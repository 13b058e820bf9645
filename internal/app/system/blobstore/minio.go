package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioConfig configures the MinIO backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// URLExpiry bounds presigned download links. Zero means one hour.
	URLExpiry time.Duration
}

// MinioStore is a Store backed by a MinIO (or any S3-compatible)
// server.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
	logger    *zap.Logger
}

// NewMinio connects to a MinIO server and ensures the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created minio bucket", zap.String("bucket", cfg.Bucket))
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
		logger:    logger,
	}, nil
}

// Put streams an object to the bucket. Size is unknown at this layer,
// so the upload is chunked (-1) and MinIO assembles it server-side.
func (s *MinioStore) Put(ctx context.Context, path string, r io.Reader, opts *storage.PutOptions) error {
	putOpts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if opts != nil && opts.ContentType != "" {
		putOpts.ContentType = opts.ContentType
	}

	if _, err := s.client.PutObject(ctx, s.bucket, path, r, -1, putOpts); err != nil {
		return fmt.Errorf("failed to put object %s: %w", path, err)
	}
	return nil
}

// Get opens an object for reading.
func (s *MinioStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", path, err)
	}
	return obj, nil
}

// Delete removes an object.
func (s *MinioStore) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

// URL returns a presigned GET link for the object, or "" when one
// cannot be produced.
func (s *MinioStore) URL(path string) string {
	u, err := s.client.PresignedGetObject(context.Background(), s.bucket, path, s.urlExpiry, url.Values{})
	if err != nil {
		s.logger.Warn("failed to presign object url",
			zap.String("path", path),
			zap.Error(err))
		return ""
	}
	return u.String()
}
