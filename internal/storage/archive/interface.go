// Package archive stores settings exports and other documents on local disk or S3.
package archive

import (
	"context"
	"errors"
	"slices"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
)

// ErrNotFound is returned by Read for a missing object.
var ErrNotFound = errors.New("archive: object not found")

// ErrInvalidPath is returned for paths escaping the archive root.
var ErrInvalidPath = errors.New("archive: invalid path")

// Storage defines the interface for archive backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// New builds the configured backend.
func New(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown archive type %q", cfg.Type)
	}
}

// Latest returns the lexically greatest path under prefix.
// Timestamped names make that the newest object.
func Latest(ctx context.Context, s Storage, prefix string) (string, bool, error) {
	paths, err := s.List(ctx, prefix)
	if err != nil || len(paths) == 0 {
		return "", false, err
	}
	return slices.Max(paths), true, nil
}
