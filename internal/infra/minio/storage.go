package minio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage mirrors finished job artifacts into a bucket and hands out
// presigned download URLs for them.
type Storage struct {
	client    *miniogo.Client
	bucket    string
	urlExpiry time.Duration
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	return &Storage{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
	}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// UploadArtifact stores the file under objectKey and returns a presigned GET URL.
func (s *Storage) UploadArtifact(ctx context.Context, objectKey, filePath, contentType string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, objectKey, filePath, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", objectKey, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign artifact %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// Ping reports whether the artifact bucket is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("minio unreachable: %w", err)
	}
	return nil
}
