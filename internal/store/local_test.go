package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

func newTestStore(t *testing.T) (*LocalStore, string) {
	t.Helper()

	tmpDir := t.TempDir()
	store, err := NewLocalStore(tmpDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, tmpDir
}

func TestLocalStore_WriteRead(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Write(ctx, "deep/nested/file.txt", []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := store.Read(ctx, "deep/nested/file.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want %q", data, "hello")
	}

	exists, err := store.Exists(ctx, "deep/nested/file.txt")
	if err != nil || !exists {
		t.Errorf("expected file to exist, got %v, %v", exists, err)
	}
}

func TestLocalStore_WriteKeepsMode(t *testing.T) {
	t.Parallel()
	store, tmpDir := newTestStore(t)
	ctx := context.Background()

	script := filepath.Join(tmpDir, "run.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := store.Write(ctx, "run.sh", []byte("#!/bin/sh\necho hi\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(script)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("expected mode 0755, got %04o", info.Mode().Perm())
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp") {
			t.Errorf("found leftover temp file: %s", entry.Name())
		}
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	paths := []string{"../../etc/passwd", "a/../../b", "/etc/passwd", ".."}
	for _, p := range paths {
		if _, err := store.Read(ctx, p); !errors.Is(err, apperrors.ErrPathTraversal) {
			t.Errorf("Read(%q): expected ErrPathTraversal, got %v", p, err)
		}
		if err := store.Write(ctx, p, []byte("x")); !errors.Is(err, apperrors.ErrPathTraversal) {
			t.Errorf("Write(%q): expected ErrPathTraversal, got %v", p, err)
		}
		if _, err := store.Exists(ctx, p); !errors.Is(err, apperrors.ErrPathTraversal) {
			t.Errorf("Exists(%q): expected ErrPathTraversal, got %v", p, err)
		}
	}
}

func TestLocalStore_RejectsSymlinkEscape(t *testing.T) {
	t.Parallel()
	store, tmpDir := newTestStore(t)
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(tmpDir, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := store.Read(context.Background(), "link/secret.txt")
	if !errors.Is(err, apperrors.ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal, got %v", err)
	}
}

func TestSafePath_AllowsInsideAbsolute(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	full, rel, err := SafePath(root, filepath.Join(root, "sub", "file.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rel != filepath.Join("sub", "file.json") {
		t.Errorf("unexpected rel path %q", rel)
	}
	if !strings.HasSuffix(full, filepath.Join("sub", "file.json")) {
		t.Errorf("unexpected full path %q", full)
	}

	if _, _, err := SafePath(root, ""); !errors.Is(err, apperrors.ErrEmptyPath) {
		t.Errorf("expected ErrEmptyPath, got %v", err)
	}
}

func TestLocalStore_RemoveAllRefusesRoot(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	if err := store.RemoveAll(context.Background(), "."); err == nil {
		t.Error("expected error removing the store root")
	}
}
