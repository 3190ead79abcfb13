package gitrepo

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// DefaultRemote is the remote releases are pushed to.
const DefaultRemote = "origin"

// RemoteConfig holds configuration for remote git operations.
type RemoteConfig struct {
	Name  string // Remote name (RLK_GIT_REMOTE)
	URL   string // Override of the remote URL, empty to use the repository's (RLK_GIT_URL)
	Token string // Password/token for HTTPS auth (RLK_GIT_TOKEN)
	User  string // Commit author name when git config has none (RLK_GIT_USER)
	Email string // Commit author email when git config has none (RLK_GIT_EMAIL)
}

func (c *RemoteConfig) remoteName() string {
	if c == nil || c.Name == "" {
		return DefaultRemote
	}
	return c.Name
}

// IsSSH returns true if url is an SSH URL.
func IsSSH(url string) bool {
	return strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://")
}

// Auth returns the authentication method for url.
// Local and file:// remotes need none.
func (c *RemoteConfig) Auth(url string) (transport.AuthMethod, error) {
	if url == "" {
		return nil, apperrors.ErrRemoteNotConfigured
	}

	if IsSSH(url) {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("create SSH agent auth: %w", err)
		}
		return auth, nil
	}

	if !isHTTP(url) {
		return nil, nil //nolint:nilnil // no auth for local transports
	}

	if c == nil || c.Token == "" {
		return nil, apperrors.ErrHTTPSPasswordRequired
	}

	return &http.BasicAuth{
		Username: "oauth2",
		Password: c.Token,
	}, nil
}
