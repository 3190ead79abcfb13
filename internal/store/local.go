package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// File and directory permissions for newly created entries.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0644 // File permissions: rw-r--r-- (project files stay readable)
)

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	rootPath string
	logger   *slog.Logger
}

// LocalStoreOption configures LocalStore.
type LocalStoreOption func(*LocalStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) LocalStoreOption {
	return func(s *LocalStore) {
		s.logger = l
	}
}

// NewLocalStore creates a new local store rooted at the given path.
func NewLocalStore(path string, opts ...LocalStoreOption) (*LocalStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}

	store := &LocalStore{
		rootPath: absPath,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Root returns the absolute root path.
func (s *LocalStore) Root() string {
	return s.rootPath
}

// Resolve returns the absolute path for a store-relative path.
func (s *LocalStore) Resolve(path string) (string, error) {
	full, _, err := SafePath(s.rootPath, path)
	return full, err
}

// Read reads a file from the store.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "reading file", "path", path)

	data, err := os.ReadFile(fullPath) //nolint:gosec // path is validated by SafePath
	if err != nil {
		s.logger.DebugContext(ctx, "read file failed", "path", path, "error", err)
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	s.logger.DebugContext(ctx, "read file complete", "path", path, "size", len(data))
	return data, nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return false, err
	}

	s.logger.DebugContext(ctx, "checking file exists", "path", path)

	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		s.logger.DebugContext(ctx, "file does not exist", "path", path)
		return false, nil
	}
	s.logger.DebugContext(ctx, "exists check failed", "path", path, "error", err)
	return false, err
}

// List lists files in a directory.
func (s *LocalStore) List(ctx context.Context, dir string) ([]FileInfo, error) {
	fullPath, err := s.Resolve(dir)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "listing directory", "dir", dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.DebugContext(ctx, "directory does not exist", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(dir, entry.Name()),
			IsDir:   entry.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	s.logger.DebugContext(ctx, "list directory complete", "dir", dir, "count", len(files))
	return files, nil
}

// Write writes content to a file, keeping the mode of an existing file.
// The content goes to a temporary file first and is renamed into place.
func (s *LocalStore) Write(ctx context.Context, path string, content []byte) error {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "writing file", "path", path, "size", len(content))

	perm := os.FileMode(filePerm)
	if info, statErr := os.Stat(fullPath); statErr == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(fullPath)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close file %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod file %s: %w", path, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename file %s: %w", path, err)
	}

	s.logger.DebugContext(ctx, "write file complete", "path", path)
	return nil
}

// Delete deletes a file.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "deleting file", "path", path)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

// RemoveAll deletes a directory tree.
func (s *LocalStore) RemoveAll(ctx context.Context, path string) error {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return err
	}
	if fullPath == s.rootPath {
		return fmt.Errorf("refusing to remove store root %s", s.rootPath)
	}

	s.logger.DebugContext(ctx, "removing tree", "path", path)

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Mkdir creates a directory.
func (s *LocalStore) Mkdir(ctx context.Context, path string) error {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "creating directory", "path", path)

	if err := os.MkdirAll(fullPath, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}
