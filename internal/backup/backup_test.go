package backup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/store"
)

func setupBackupTest(t *testing.T) (context.Context, *Store, string) {
	t.Helper()

	root := t.TempDir()
	workspace, err := store.NewLocalStore(root)
	if err != nil {
		t.Fatalf("failed to create workspace store: %v", err)
	}

	backups, err := NewStore(workspace, "")
	if err != nil {
		t.Fatalf("failed to create backup store: %v", err)
	}

	return context.Background(), backups, root
}

func mustWrite(t *testing.T, root, name, content string) {
	t.Helper()

	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func mustRead(t *testing.T, root, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func backupDirs(t *testing.T, s *Store) []string {
	t.Helper()

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		t.Fatalf("read backup dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStore_RestoreExactBytes(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)

	mustWrite(t, root, "package.json", "{\n  \"version\": \"1.0.0\"\n}\n")
	mustWrite(t, root, "sub/VERSION", "1.0.0\r\n\x00binary")

	id, err := backups.CreateBackup(ctx, []string{"package.json", "sub/VERSION"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	mustWrite(t, root, "package.json", "changed")
	mustWrite(t, root, "sub/VERSION", "changed too")

	if err := backups.RestoreBackup(ctx, id); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}

	if got := mustRead(t, root, "package.json"); got != "{\n  \"version\": \"1.0.0\"\n}\n" {
		t.Errorf("package.json not restored: %q", got)
	}
	if got := mustRead(t, root, "sub/VERSION"); got != "1.0.0\r\n\x00binary" {
		t.Errorf("sub/VERSION not restored: %q", got)
	}

	set, ok := backups.Get(id)
	if !ok {
		t.Fatal("expected set to be known")
	}
	if set.Entries[1].SnapshotPath != filepath.Join(id, "sub", "VERSION") {
		t.Errorf("snapshot should mirror relative path, got %s", set.Entries[1].SnapshotPath)
	}
}

func TestStore_CreateRejectsMissingAndTraversal(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)
	mustWrite(t, root, "a.txt", "a")

	_, err := backups.CreateBackup(ctx, []string{"a.txt", "missing.txt"})
	if !errors.Is(err, apperrors.ErrBackupCreateFailed) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected backup failure for missing file, got %v", err)
	}

	_, err = backups.CreateBackup(ctx, []string{"../../etc/passwd"})
	if !errors.Is(err, apperrors.ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal, got %v", err)
	}

	if dirs := backupDirs(t, backups); len(dirs) != 0 {
		t.Errorf("expected no snapshot left behind, got %v", dirs)
	}
}

func TestStore_PartialFailureCleansUp(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)
	mustWrite(t, root, "a.txt", "a")
	if err := os.MkdirAll(filepath.Join(root, "not-a-file"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := backups.CreateBackup(ctx, []string{"a.txt", "not-a-file"})
	var backupErr *apperrors.BackupError
	if !errors.As(err, &backupErr) || backupErr.Path != "not-a-file" {
		t.Fatalf("expected BackupError on not-a-file, got %v", err)
	}

	if dirs := backupDirs(t, backups); len(dirs) != 0 {
		t.Errorf("expected partial snapshot to be removed, got %v", dirs)
	}
}

func TestStore_RestoreSkipsMissingSnapshot(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)
	mustWrite(t, root, "a.txt", "a")
	mustWrite(t, root, "b.txt", "b")

	id, err := backups.CreateBackup(ctx, []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	if err := os.Remove(filepath.Join(backups.Dir(), id, "a.txt")); err != nil {
		t.Fatalf("remove snapshot: %v", err)
	}
	mustWrite(t, root, "a.txt", "a2")
	mustWrite(t, root, "b.txt", "b2")

	if err := backups.RestoreBackup(ctx, id); err != nil {
		t.Fatalf("expected restore to tolerate missing snapshot, got %v", err)
	}
	if got := mustRead(t, root, "a.txt"); got != "a2" {
		t.Errorf("a.txt should be untouched, got %q", got)
	}
	if got := mustRead(t, root, "b.txt"); got != "b" {
		t.Errorf("b.txt should be restored, got %q", got)
	}
}

func TestStore_RestoreFile(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)
	mustWrite(t, root, "a.txt", "a")
	mustWrite(t, root, "b.txt", "b")

	id, err := backups.CreateBackup(ctx, []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	mustWrite(t, root, "a.txt", "a2")
	mustWrite(t, root, "b.txt", "b2")

	if err := backups.RestoreFile(ctx, id, "a.txt"); err != nil {
		t.Fatalf("RestoreFile failed: %v", err)
	}
	if got := mustRead(t, root, "a.txt"); got != "a" {
		t.Errorf("a.txt not restored: %q", got)
	}
	if got := mustRead(t, root, "b.txt"); got != "b2" {
		t.Errorf("b.txt should be untouched: %q", got)
	}

	if err := backups.RestoreFile(ctx, id, "c.txt"); !errors.Is(err, apperrors.ErrBackupEntryNotFound) {
		t.Errorf("expected ErrBackupEntryNotFound, got %v", err)
	}
}

func TestStore_CleanupAndUnknown(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)
	mustWrite(t, root, "a.txt", "a")

	id, err := backups.CreateBackup(ctx, []string{"a.txt"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	backups.CleanupBackup(ctx, id)
	if _, ok := backups.Get(id); ok {
		t.Error("expected set to be forgotten")
	}
	if _, err := os.Stat(filepath.Join(backups.Dir(), id)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected snapshot dir removed, got %v", err)
	}

	if err := backups.RestoreBackup(ctx, id); !errors.Is(err, apperrors.ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
	if err := backups.RestoreBackup(ctx, "../outside"); !errors.Is(err, apperrors.ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound for invalid id, got %v", err)
	}

	// Cleaning up twice or an unknown id only logs.
	backups.CleanupBackup(ctx, id)
	backups.CleanupBackup(ctx, "../../etc")
}

func TestStore_RetainedSetsAreListable(t *testing.T) {
	t.Parallel()
	ctx, backups, root := setupBackupTest(t)
	mustWrite(t, root, "a.txt", "a")

	id, err := backups.CreateBackup(ctx, []string{"a.txt"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	// A new process sees the retained set through its manifest.
	workspace, err := store.NewLocalStore(root)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	fresh, err := NewStore(workspace, "", WithClock(func() time.Time { return time.Unix(0, 0) }))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sets, err := fresh.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sets) != 1 || sets[0].ID != id {
		t.Fatalf("expected retained set %s, got %+v", id, sets)
	}
	if !strings.HasPrefix(sets[0].ID, idPrefix) || sets[0].Paths()[0] != "a.txt" {
		t.Errorf("unexpected set %+v", sets[0])
	}

	mustWrite(t, root, "a.txt", "changed")
	if err := fresh.RestoreBackup(ctx, id); err != nil {
		t.Fatalf("RestoreBackup from manifest failed: %v", err)
	}
	if got := mustRead(t, root, "a.txt"); got != "a" {
		t.Errorf("a.txt not restored: %q", got)
	}
}
