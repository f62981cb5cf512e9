// Package storage provides temporary and published file storage.
// It defines the Storage interface (port) and implementations for local disk
// and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for uploaded video files and exported thumbnails.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data under key and returns its URL.
	// Returns ErrPublishNotConfigured when there is no remote store.
	Publish(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
