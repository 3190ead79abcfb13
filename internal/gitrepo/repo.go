// Package gitrepo performs the git side of a release: reading history, committing,
// tagging, pushing and undoing those steps.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

const (
	defaultUser  = "releasekit"
	defaultEmail = "releasekit@localhost"
)

// Repo is a git working copy.
type Repo struct {
	path   string
	repo   *git.Repository
	remote *RemoteConfig
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Repo.
type Option func(*Repo)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repo) {
		r.logger = l
	}
}

// WithRemote sets the remote configuration.
func WithRemote(cfg *RemoteConfig) Option {
	return func(r *Repo) {
		r.remote = cfg
	}
}

// WithClock sets the time source used for signatures.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) {
		r.now = now
	}
}

// IsGitRepository reports whether path is inside a git working copy.
func IsGitRepository(path string) bool {
	_, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// Open opens the git working copy containing path.
func Open(path string, opts ...Option) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNotGitRepository, path)
		}
		return nil, fmt.Errorf("open git repo: %w", err)
	}

	root := path
	if worktree, err := repo.Worktree(); err == nil {
		root = worktree.Filesystem.Root()
	}

	r := &Repo{
		path:   root,
		repo:   repo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path returns the root of the working copy.
func (r *Repo) Path() string {
	return r.path
}

// HasUncommittedChanges reports whether tracked files differ from HEAD.
// Untracked files are ignored.
func (r *Repo) HasUncommittedChanges(_ context.Context) (bool, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("get status: %w", err)
	}

	for _, s := range status {
		if s.Staging == git.Untracked && s.Worktree == git.Untracked {
			continue
		}
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

// CurrentCommitHash returns the hash of HEAD.
func (r *Repo) CurrentCommitHash(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// ParentCommitHash returns the first parent of ref.
func (r *Repo) ParentCommitHash(_ context.Context, ref string) (string, error) {
	commit, err := r.commit(ref)
	if err != nil {
		return "", err
	}
	if commit.NumParents() == 0 {
		return "", fmt.Errorf("%w: %s", apperrors.ErrNoParentCommit, commit.Hash)
	}
	return commit.ParentHashes[0].String(), nil
}

// LastCommitMessage returns the full message of HEAD.
func (r *Repo) LastCommitMessage(_ context.Context) (string, error) {
	commit, err := r.commit("HEAD")
	if err != nil {
		return "", err
	}
	return commit.Message, nil
}

// GitUser returns the identity used for commits and tags: the repository's
// git config, then the global one, then the remote configuration.
func (r *Repo) GitUser() (name, email string) {
	for _, scope := range []config.Scope{config.LocalScope, config.GlobalScope} {
		cfg, err := r.repo.ConfigScoped(scope)
		if err != nil {
			continue
		}
		if name == "" {
			name = cfg.User.Name
		}
		if email == "" {
			email = cfg.User.Email
		}
	}

	if r.remote != nil {
		if name == "" {
			name = r.remote.User
		}
		if email == "" {
			email = r.remote.Email
		}
	}

	if name == "" {
		name = defaultUser
	}
	if email == "" {
		email = defaultEmail
	}
	return name, email
}

// Commit stages paths and commits them. It returns the new commit hash.
func (r *Repo) Commit(ctx context.Context, message string, paths []string) (string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}

	for _, p := range paths {
		if _, addErr := worktree.Add(p); addErr != nil {
			return "", fmt.Errorf("git add %s: %w", p, addErr)
		}
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: r.signature(),
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	r.logger.InfoContext(ctx, "committed", "hash", hash.String(), "files", len(paths))
	return hash.String(), nil
}

// ResetToCommit moves the current branch to ref. A hard reset also discards
// working tree changes to tracked files.
func (r *Repo) ResetToCommit(ctx context.Context, ref string, hard bool) error {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	mode := git.MixedReset
	if hard {
		mode = git.HardReset
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: *hash, Mode: mode}); err != nil {
		return fmt.Errorf("reset to %s: %w", ref, err)
	}

	r.logger.InfoContext(ctx, "reset branch", "commit", hash.String(), "hard", hard)
	return nil
}

func (r *Repo) commit(ref string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commit, nil
}

func (r *Repo) signature() *object.Signature {
	name, email := r.GitUser()
	return &object.Signature{
		Name:  name,
		Email: email,
		When:  r.now(),
	}
}
