// Package storage keeps temporary files on local disk and optionally
// publishes finished artifacts to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and persistent file storage.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name is a hint; its extension is preserved.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data under key with the given content type and
	// returns its public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
