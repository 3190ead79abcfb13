// Package store provides path-safe file access rooted at a working directory.
package store

import (
	"context"
	"time"
)

// FileInfo represents file metadata.
type FileInfo struct {
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Store abstracts read/write file operations below a root directory.
// Every path is relative to the root and is rejected if it escapes it.
//
//nolint:interfacebloat // Store needs all these methods for backup and update flows
type Store interface {
	// Read operations
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// Write operations
	Write(ctx context.Context, path string, content []byte) error
	Delete(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error

	// Path handling
	Root() string
	Resolve(path string) (string, error)
}
