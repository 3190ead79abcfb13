package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// SafePath resolves path against root and rejects anything escaping it.
// The lexical check runs before the filesystem is touched; when the target
// (or its closest existing parent) exists, symlinks are resolved and checked again.
// It returns the absolute path and the cleaned path relative to root.
func SafePath(root, path string) (string, string, error) {
	if strings.TrimSpace(path) == "" {
		return "", "", apperrors.ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return "", "", fmt.Errorf("%w: %q", apperrors.ErrPathTraversal, path)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("resolve root: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || escapes(rel) {
		return "", "", fmt.Errorf("%w: %q", apperrors.ErrPathTraversal, path)
	}

	if err := checkSymlinks(absRoot, target); err != nil {
		return "", "", fmt.Errorf("%w: %q", err, path)
	}

	return target, rel, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkSymlinks resolves the deepest existing ancestor of target and makes sure
// it is still below root.
func checkSymlinks(absRoot, target string) error {
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		// Root does not exist yet: nothing can be linked out of it.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	existing := target
	for {
		if _, statErr := os.Lstat(existing); statErr == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}

	realTarget, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(realRoot, realTarget)
	if err != nil || escapes(rel) {
		return apperrors.ErrPathTraversal
	}
	return nil
}
