// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup —
// the MinIO implementation works with any S3-compatible provider (MinIO, LocalStack, AWS S3).
package storage

import (
	"context"
	"io"
	"time"
)

// Storage is the interface for storing and retrieving binary objects.
type Storage interface {
	// Put streams data to the store under the given key, overwriting any
	// existing object. The backing bucket is provisioned on demand.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// PresignGet returns a time-limited retrieval URL for key, or "" when
	// the signing operation fails for any reason.
	PresignGet(ctx context.Context, key string, ttl time.Duration) string
	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
