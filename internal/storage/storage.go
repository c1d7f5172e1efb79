// Package storage abstracts where avatar blobs live. The filesystem backend
// serves local development; the S3 backend serves deployments.
package storage

import (
	"context"
	"io"
)

// BlobStore stores and serves opaque blobs under hierarchical keys.
type BlobStore interface {
	// Put writes the blob under key, overwriting any existing blob.
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	// Get opens the blob stored under key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns the public URL the blob is served from.
	URL(key string) string
}
