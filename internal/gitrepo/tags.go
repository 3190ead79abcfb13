package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"golang.org/x/mod/semver"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/versioning"
)

// Release is a tag marking a released version.
type Release struct {
	Tag     string
	Version string
	Commit  string
}

// TagExists reports whether a local tag exists.
func (r *Repo) TagExists(_ context.Context, name string) (bool, error) {
	_, err := r.repo.Tag(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, git.ErrTagNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("lookup tag %s: %w", name, err)
}

// CreateTag creates an annotated tag on HEAD.
func (r *Repo) CreateTag(ctx context.Context, name, message string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("get HEAD: %w", err)
	}

	_, err = r.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger:  r.signature(),
		Message: message,
	})
	if err != nil {
		if errors.Is(err, git.ErrTagExists) {
			return fmt.Errorf("%w: %s", apperrors.ErrTagExists, name)
		}
		return fmt.Errorf("create tag %s: %w", name, err)
	}

	r.logger.InfoContext(ctx, "created tag", "tag", name, "commit", head.Hash().String())
	return nil
}

// CommitAndTag commits paths with message and tags the new commit.
// The tag is checked before committing so a conflict leaves no commit behind.
func (r *Repo) CommitAndTag(ctx context.Context, message, tag string, paths []string) (string, error) {
	exists, err := r.TagExists(ctx, tag)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %s", apperrors.ErrTagExists, tag)
	}

	hash, err := r.Commit(ctx, message, paths)
	if err != nil {
		return "", err
	}
	if err := r.CreateTag(ctx, tag, message); err != nil {
		return hash, err
	}
	return hash, nil
}

// DeleteLocalTag removes a local tag.
func (r *Repo) DeleteLocalTag(ctx context.Context, name string) error {
	if err := r.repo.DeleteTag(name); err != nil {
		if errors.Is(err, git.ErrTagNotFound) {
			return fmt.Errorf("%w: %s", apperrors.ErrTagNotFound, name)
		}
		return fmt.Errorf("delete tag %s: %w", name, err)
	}

	r.logger.InfoContext(ctx, "deleted local tag", "tag", name)
	return nil
}

// LastReleaseTag returns the nearest release tag reachable from HEAD, or nil
// when none exists. Release tags are prefix followed by a valid version; when
// several sit on the same commit the highest version wins.
func (r *Repo) LastReleaseTag(_ context.Context, prefix string) (*Release, error) {
	byCommit, err := r.releaseTags(prefix)
	if err != nil {
		return nil, err
	}
	if len(byCommit) == 0 {
		return nil, nil //nolint:nilnil // no release yet
	}

	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil //nolint:nilnil // empty repository
		}
		return nil, fmt.Errorf("get HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	var found *Release
	err = iter.ForEach(func(c *object.Commit) error {
		if rel, ok := byCommit[c.Hash]; ok {
			found = rel
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}
	return found, nil
}

// CommitsSinceLastRelease returns the commits reachable from HEAD but not from
// the last release tag, newest first, together with that release.
func (r *Repo) CommitsSinceLastRelease(ctx context.Context, prefix string) ([]versioning.Commit, *Release, error) {
	last, err := r.LastReleaseTag(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}

	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, last, nil
		}
		return nil, nil, fmt.Errorf("get HEAD: %w", err)
	}

	released := map[plumbing.Hash]bool{}
	if last != nil {
		if released, err = r.ancestors(plumbing.NewHash(last.Commit)); err != nil {
			return nil, nil, err
		}
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	var commits []versioning.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if released[c.Hash] {
			return nil
		}
		commits = append(commits, versioning.ParseCommitMessage(c.Hash.String(), c.Message, c.Author.When))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk history: %w", err)
	}

	r.logger.DebugContext(ctx, "commits since last release", "count", len(commits), "release", last)
	return commits, last, nil
}

func (r *Repo) ancestors(from plumbing.Hash) (map[plumbing.Hash]bool, error) {
	iter, err := r.repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return nil, fmt.Errorf("git log %s: %w", from, err)
	}
	defer iter.Close()

	seen := map[plumbing.Hash]bool{}
	err = iter.ForEach(func(c *object.Commit) error {
		seen[c.Hash] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk history: %w", err)
	}
	return seen, nil
}

// releaseTags indexes release tags by the commit they point at.
func (r *Repo) releaseTags(prefix string) (map[plumbing.Hash]*Release, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer refs.Close()

	byCommit := map[plumbing.Hash]*Release{}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		v, parseErr := versioning.ParseVersion(strings.TrimPrefix(name, prefix))
		if parseErr != nil {
			return nil
		}

		hash, ok := r.peel(ref.Hash())
		if !ok {
			return nil
		}

		rel := &Release{Tag: name, Version: v.String(), Commit: hash.String()}
		if cur, exists := byCommit[hash]; !exists || semver.Compare("v"+rel.Version, "v"+cur.Version) > 0 {
			byCommit[hash] = rel
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return byCommit, nil
}

// peel resolves a tag reference to the commit it designates.
func (r *Repo) peel(hash plumbing.Hash) (plumbing.Hash, bool) {
	// Lightweight tags point directly at a commit; annotated tags point at a tag object.
	if _, err := r.repo.CommitObject(hash); err == nil {
		return hash, true
	}
	cur := hash
	for range 8 {
		tag, err := r.repo.TagObject(cur)
		if err != nil {
			return plumbing.ZeroHash, false
		}
		switch tag.TargetType {
		case plumbing.CommitObject:
			return tag.Target, true
		case plumbing.TagObject:
			cur = tag.Target
		default:
			return plumbing.ZeroHash, false
		}
	}
	return plumbing.ZeroHash, false
}
