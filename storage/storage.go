// Package storage holds run artifacts. Screenshots are written to a
// LocalStorage rooted at the run's dump folder and optionally mirrored to an
// S3 archive.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a requested file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a path is invalid or contains path traversal.
	ErrInvalidPath = errors.New("invalid path")

	ErrUnsupportedType = errors.New("unsupported storage type")
)

// BlobStorage defines the interface for storing and retrieving binary data.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download retrieves data from the specified path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the data at the specified path.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetURL returns a URL for accessing the data at the specified path.
	// For local storage this is the absolute file path.
	GetURL(ctx context.Context, path string) (string, error)
}

// Config selects a BlobStorage. Prefix applies to S3 keys only.
type Config struct {
	Type          string        `mapstructure:"type"`
	BaseDir       string        `mapstructure:"base_dir"`
	Bucket        string        `mapstructure:"s3_bucket"`
	Region        string        `mapstructure:"s3_region"`
	Prefix        string        `mapstructure:"s3_prefix"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// New creates a BlobStorage implementation based on configuration.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "local":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case "s3":
		s3Storage, err := NewS3Storage(ctx, cfg.Bucket, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		s3Storage.prefix = strings.Trim(cfg.Prefix, "/")
		if cfg.PresignExpiry > 0 {
			s3Storage.presignExpiration = cfg.PresignExpiry
		}
		return s3Storage, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, cfg.Type)
}

// Copy streams path from src to dst.
func Copy(ctx context.Context, dst, src BlobStorage, path string) error {
	rc, err := src.Download(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	return dst.Upload(ctx, path, rc)
}
