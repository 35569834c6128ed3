// Package storage keeps uploaded files, either on local disk or in an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Read when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// Storage defines the file operations the image service needs.
type Storage interface {
	// Write stores the content of r under key. size is -1 if unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Read returns the content stored under key. The caller closes it.
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object under key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// List returns the keys of all objects under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// URL returns the url a client can load the object from.
	URL(key string) string
}

// Config selects and configures the storage backend.
type Config struct {
	Driver   string   `mapstructure:"driver"`
	BasePath string   `mapstructure:"base_path"`
	S3       S3Config `mapstructure:"s3"`
}

// New returns the storage backend named by cfg.Driver ("local" or "s3").
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.BasePath)
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
