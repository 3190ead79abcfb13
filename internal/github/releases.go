package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository parses "owner/name".
func ParseRepository(slug string) (Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(slug), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("%w: %q", apperrors.ErrGitHubRepoRequired, slug)
	}
	return Repository{Owner: owner, Name: name}, nil
}

var remotePattern = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// RepositoryFromRemote extracts the repository from a git remote URL
// such as git@github.com:owner/name.git or https://github.com/owner/name.
func RepositoryFromRemote(remoteURL string) (Repository, error) {
	m := remotePattern.FindStringSubmatch(remoteURL)
	if m == nil {
		return Repository{}, fmt.Errorf("%w: cannot infer from remote %q", apperrors.ErrGitHubRepoRequired, remoteURL)
	}
	return Repository{Owner: m[1], Name: m[2]}, nil
}

// ReleaseRequest is the payload of a release creation.
type ReleaseRequest struct {
	TagName         string `json:"tag_name"`
	TargetCommitish string `json:"target_commitish,omitempty"`
	Name            string `json:"name,omitempty"`
	Body            string `json:"body,omitempty"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

// Release is a published GitHub release.
type Release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Draft   bool   `json:"draft"`
}

// CreateRelease publishes a release and returns its web URL.
func (c *Client) CreateRelease(ctx context.Context, repo Repository, req ReleaseRequest) (string, error) {
	var release Release
	path := fmt.Sprintf("/repos/%s/%s/releases", url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	if err := c.do(ctx, http.MethodPost, path, req, &release); err != nil {
		return "", fmt.Errorf("create release %s: %w", req.TagName, err)
	}

	c.logger.InfoContext(ctx, "created GitHub release", "repo", repo.String(), "tag", release.TagName, "url", release.HTMLURL)
	return release.HTMLURL, nil
}

// GetReleaseByTag fetches the release attached to tag.
func (c *Client) GetReleaseByTag(ctx context.Context, repo Repository, tag string) (*Release, error) {
	var release Release
	path := fmt.Sprintf("/repos/%s/%s/releases/tags/%s",
		url.PathEscape(repo.Owner), url.PathEscape(repo.Name), url.PathEscape(tag))
	if err := c.do(ctx, http.MethodGet, path, nil, &release); err != nil {
		return nil, fmt.Errorf("get release %s: %w", tag, err)
	}
	return &release, nil
}

// Publisher creates releases on a single repository.
type Publisher struct {
	client *Client
	repo   Repository
}

// Publisher binds the client to repo.
func (c *Client) Publisher(repo Repository) *Publisher {
	return &Publisher{client: c, repo: repo}
}

// CreateRelease publishes a release on the bound repository.
func (p *Publisher) CreateRelease(ctx context.Context, req ReleaseRequest) (string, error) {
	return p.client.CreateRelease(ctx, p.repo, req)
}
