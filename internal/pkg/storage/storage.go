// Package storage writes exported documents to an object store.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Storage is the object store behind statement exports.
type Storage interface {
	// Put stores the object at key, replacing any previous one.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get opens the object at key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns where the object can be fetched from.
	GetURL(key string) string
}

// Config holds S3/MinIO connection settings.
type Config struct {
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}
