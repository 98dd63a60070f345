package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// The bucket is provisioned lazily on the first write rather than at startup,
// so the service comes up even when object storage is still booting.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase *url.URL
	log        *zap.Logger
}

// NewMinioStorage creates a MinIO client. publicBase, when non-empty, is the
// externally reachable base URL; presigned URLs get their scheme and host
// rewritten to it while keeping the signed path and query intact. This is
// needed when the signing endpoint (e.g. a compose-internal hostname) is not
// reachable from the caller's network.
func NewMinioStorage(endpoint, accessKey, secretKey, bucket, region, publicBase string, useSSL bool, log *zap.Logger) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinioStorage{
		client: client,
		bucket: bucket,
		region: region,
		log:    log,
	}

	if publicBase != "" {
		base, err := url.Parse(strings.TrimRight(publicBase, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse public base URL %q: %w", publicBase, err)
		}
		s.publicBase = base
	}

	return s, nil
}

// Put writes reader to the bucket under key, creating the bucket first if it
// does not exist yet. size must be the exact byte count.
func (s *MinioStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %q: %w", s.bucket, err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// PresignGet returns a presigned GET URL for key valid for ttl. Signing
// failures are logged and reported as "" so a listing can degrade to a null
// URL instead of failing outright.
func (s *MinioStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) string {
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		s.log.Warn("presign failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return s.rewriteURL(signed).String()
}

// Delete removes the object at key. MinIO treats removal of a missing key as
// success, which matches the idempotent contract callers rely on.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// ensureBucket checks for the bucket and creates it when absent. A concurrent
// creator winning the race is treated as success. The check runs on every
// write; cheap enough at this scale, revisit if it ever shows up in profiles.
func (s *MinioStorage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}

	s.log.Info("created bucket", zap.String("bucket", s.bucket))
	return nil
}

// rewriteURL swaps the scheme and host of a presigned URL for the configured
// public base, preserving the signed path and query.
func (s *MinioStorage) rewriteURL(u *url.URL) *url.URL {
	if s.publicBase == nil {
		return u
	}
	out := *u
	out.Scheme = s.publicBase.Scheme
	out.Host = s.publicBase.Host
	return &out
}
