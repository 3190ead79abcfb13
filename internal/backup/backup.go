// Package backup snapshots workspace files before they are modified so a failed
// release can put them back byte for byte.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/store"
)

const (
	// DefaultDir is the snapshot area, relative to the workspace root.
	DefaultDir = ".releasekit/backups"

	manifestFile = "manifest.json"
	idPrefix     = "backup-"
	idTimeLayout = "20060102T150405Z"
	idSuffixLen  = 8
)

// Entry maps a workspace file to its snapshot.
type Entry struct {
	OriginalPath string `json:"original_path"` // relative to the workspace root
	SnapshotPath string `json:"snapshot_path"` // relative to the snapshot area
}

// Set is an immutable group of snapshots taken together.
type Set struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Paths returns the original paths of the set.
func (s *Set) Paths() []string {
	paths := make([]string, len(s.Entries))
	for i := range s.Entries {
		paths[i] = s.Entries[i].OriginalPath
	}
	return paths
}

// Store creates, restores and removes backup sets.
// It is meant for a single release process and is not safe for concurrent use.
type Store struct {
	workspace store.Store
	snapshots *store.LocalStore
	sets      map[string]*Set
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a backup store for workspace, keeping snapshots under dir.
// A relative dir is resolved against the workspace root and must stay inside it.
func NewStore(workspace store.Store, dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}

	snapshotRoot := dir
	if !filepath.IsAbs(dir) {
		resolved, err := workspace.Resolve(dir)
		if err != nil {
			return nil, fmt.Errorf("backup dir: %w", err)
		}
		snapshotRoot = resolved
	}

	s := &Store{
		workspace: workspace,
		sets:      make(map[string]*Set),
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	snapshots, err := store.NewLocalStore(snapshotRoot, store.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	s.snapshots = snapshots

	return s, nil
}

// Dir returns the absolute snapshot area.
func (s *Store) Dir() string {
	return s.snapshots.Root()
}

// CreateBackup snapshots files and returns the new set id.
// Every path is validated before anything is copied; if copying fails midway
// the partial snapshot is removed.
func (s *Store) CreateBackup(ctx context.Context, files []string) (string, error) {
	relPaths := make([]string, 0, len(files))
	for _, file := range files {
		rel, err := s.validate(ctx, file)
		if err != nil {
			return "", &apperrors.BackupError{Path: file, Err: err}
		}
		if !slices.Contains(relPaths, rel) {
			relPaths = append(relPaths, rel)
		}
	}

	createdAt := s.now().UTC()
	set := &Set{
		ID:        newID(createdAt),
		CreatedAt: createdAt,
	}

	s.logger.InfoContext(ctx, "creating backup", "backup_id", set.ID, "files", len(relPaths))

	for _, rel := range relPaths {
		entry := Entry{
			OriginalPath: rel,
			SnapshotPath: filepath.Join(set.ID, rel),
		}
		if err := s.copyToSnapshot(ctx, entry); err != nil {
			s.discardPartial(ctx, set.ID)
			return "", &apperrors.BackupError{Path: rel, Err: err}
		}
		set.Entries = append(set.Entries, entry)
	}

	if err := s.writeManifest(ctx, set); err != nil {
		s.discardPartial(ctx, set.ID)
		return "", &apperrors.BackupError{Path: manifestFile, Err: err}
	}

	s.sets[set.ID] = set
	s.logger.InfoContext(ctx, "backup created", "backup_id", set.ID, "dir", filepath.Join(s.Dir(), set.ID))
	return set.ID, nil
}

// RestoreBackup copies every snapshot of the set back over the live files.
// Missing snapshot entries are logged and skipped.
func (s *Store) RestoreBackup(ctx context.Context, id string) error {
	set, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "restoring backup", "backup_id", id, "files", len(set.Entries))

	var errs []error
	for _, entry := range set.Entries {
		if err := s.restoreEntry(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: backup %s: %w", apperrors.ErrRestoreFailed, id, errors.Join(errs...))
	}

	s.logger.InfoContext(ctx, "backup restored", "backup_id", id)
	return nil
}

// RestoreFile restores a single file of the set.
func (s *Store) RestoreFile(ctx context.Context, id, path string) error {
	set, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	_, rel, err := store.SafePath(s.workspace.Root(), path)
	if err != nil {
		return err
	}

	for _, entry := range set.Entries {
		if entry.OriginalPath != rel {
			continue
		}
		if err := s.restoreEntry(ctx, entry); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrRestoreFailed, err)
		}
		return nil
	}

	return fmt.Errorf("%w: %s in %s", apperrors.ErrBackupEntryNotFound, path, id)
}

// CleanupBackup removes the snapshot area of a set and forgets it.
// Failures are logged only: cleanup never blocks a release.
func (s *Store) CleanupBackup(ctx context.Context, id string) {
	delete(s.sets, id)

	if !validID(id) {
		s.logger.WarnContext(ctx, "refusing to clean up invalid backup id", "backup_id", id)
		return
	}

	if err := s.snapshots.RemoveAll(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to clean up backup", "backup_id", id, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "backup cleaned up", "backup_id", id)
}

// Get returns a set created by this store.
func (s *Store) Get(id string) (*Set, bool) {
	set, ok := s.sets[id]
	return set, ok
}

// Load returns a set, reading its manifest from disk when this process did not create it.
func (s *Store) Load(ctx context.Context, id string) (*Set, error) {
	if set, ok := s.sets[id]; ok {
		return set, nil
	}
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrBackupNotFound, id)
	}

	data, err := s.snapshots.Read(ctx, filepath.Join(id, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrBackupNotFound, id)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal manifest %s: %w", id, err)
	}
	if set.ID != id {
		return nil, fmt.Errorf("%w: manifest id %q does not match %q", apperrors.ErrBackupNotFound, set.ID, id)
	}

	s.sets[id] = &set
	return &set, nil
}

// List returns the retained sets found on disk, oldest first.
func (s *Store) List(ctx context.Context) ([]*Set, error) {
	entries, err := s.snapshots.List(ctx, ".")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	var sets []*Set
	for _, entry := range entries {
		id := filepath.Base(entry.Path)
		if !entry.IsDir || !validID(id) {
			continue
		}
		set, err := s.Load(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable backup", "backup_id", id, "error", err)
			continue
		}
		sets = append(sets, set)
	}

	slices.SortFunc(sets, func(a, b *Set) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sets, nil
}

func (s *Store) validate(ctx context.Context, file string) (string, error) {
	full, err := s.workspace.Resolve(file)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.workspace.Root(), full)
	if err != nil {
		return "", err
	}
	if isInside(s.Dir(), full) {
		return "", fmt.Errorf("%w: cannot back up the snapshot area", apperrors.ErrPathTraversal)
	}

	exists, err := s.workspace.Exists(ctx, rel)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fs.ErrNotExist
	}
	return rel, nil
}

func (s *Store) copyToSnapshot(ctx context.Context, entry Entry) error {
	data, err := s.workspace.Read(ctx, entry.OriginalPath)
	if err != nil {
		return err
	}
	return s.snapshots.Write(ctx, entry.SnapshotPath, data)
}

func (s *Store) restoreEntry(ctx context.Context, entry Entry) error {
	data, err := s.snapshots.Read(ctx, entry.SnapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "snapshot missing, skipping file",
				"path", entry.OriginalPath, "snapshot", entry.SnapshotPath)
			return nil
		}
		return fmt.Errorf("read snapshot %s: %w", entry.SnapshotPath, err)
	}

	if err := s.workspace.Write(ctx, entry.OriginalPath, data); err != nil {
		return fmt.Errorf("restore %s: %w", entry.OriginalPath, err)
	}

	s.logger.DebugContext(ctx, "file restored", "path", entry.OriginalPath)
	return nil
}

func (s *Store) writeManifest(ctx context.Context, set *Set) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.snapshots.Write(ctx, filepath.Join(set.ID, manifestFile), data)
}

func (s *Store) discardPartial(ctx context.Context, id string) {
	if err := s.snapshots.RemoveAll(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to remove partial backup", "backup_id", id, "error", err)
	}
}

func newID(t time.Time) string {
	return idPrefix + t.Format(idTimeLayout) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLen]
}

// validID keeps ids from naming anything but a direct child of the snapshot area.
func validID(id string) bool {
	return strings.HasPrefix(id, idPrefix) && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func isInside(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
