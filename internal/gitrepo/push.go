package gitrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// RemoteURL returns the URL pushes go to.
func (r *Repo) RemoteURL() (string, error) {
	if r.remote != nil && r.remote.URL != "" {
		return r.remote.URL, nil
	}

	rem, err := r.repo.Remote(r.remote.remoteName())
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrRemoteNotConfigured, r.remote.remoteName())
		}
		return "", fmt.Errorf("get remote: %w", err)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", apperrors.ErrRemoteNotConfigured
	}
	return urls[0], nil
}

// Push pushes the current branch and the given tags.
func (r *Repo) Push(ctx context.Context, tags ...string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("get HEAD: %w", err)
	}

	var specs []config.RefSpec
	if head.Name().IsBranch() {
		specs = append(specs, config.RefSpec(fmt.Sprintf("%s:%s", head.Name(), head.Name())))
	}
	for _, tag := range tags {
		specs = append(specs, config.RefSpec(fmt.Sprintf("refs/tags/%s:refs/tags/%s", tag, tag)))
	}

	r.logger.InfoContext(ctx, "pushing to remote", "branch", head.Name().Short(), "tags", tags)
	if err := r.push(ctx, specs); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	r.logger.InfoContext(ctx, "push complete")
	return nil
}

// DeleteRemoteTag removes a tag from the remote.
func (r *Repo) DeleteRemoteTag(ctx context.Context, name string) error {
	spec := config.RefSpec(":refs/tags/" + name)
	if err := r.push(ctx, []config.RefSpec{spec}); err != nil {
		return fmt.Errorf("delete remote tag %s: %w", name, err)
	}

	r.logger.InfoContext(ctx, "deleted remote tag", "tag", name)
	return nil
}

func (r *Repo) push(ctx context.Context, specs []config.RefSpec) error {
	url, err := r.RemoteURL()
	if err != nil {
		return err
	}

	auth, err := r.remote.Auth(url)
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	opts := &git.PushOptions{
		RemoteName: r.remote.remoteName(),
		RefSpecs:   specs,
		Auth:       auth,
	}
	if r.remote != nil && r.remote.URL != "" {
		opts.RemoteURL = r.remote.URL
	}

	err = r.repo.PushContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	if err != nil {
		r.logger.InfoContext(ctx, "nothing to push")
	}
	return nil
}
