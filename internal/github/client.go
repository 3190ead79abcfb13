// Package github publishes releases on GitHub.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

const (
	// BaseURL is the GitHub REST API base URL.
	BaseURL = "https://api.github.com"
	// APIVersion is the GitHub REST API version to use.
	APIVersion = "2022-11-28"

	// HTTP client configuration.
	httpTimeout = 30 * time.Second

	// Rate limiting configuration (~1 request/second, well below the secondary limits).
	rateLimitInterval = time.Second

	maxRetries     = 5
	initialBackoff = time.Second

	// First status code indicating an error.
	httpStatusBadRequest = 400
)

// Client is a GitHub API client with rate limiting.
type Client struct {
	httpClient  *http.Client
	token       string
	rateLimiter *rate.Limiter
	baseURL     string
	backoff     time.Duration
	logger      *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithBaseURL sets a custom base URL, for GitHub Enterprise or tests.
func WithBaseURL(url string) ClientOption {
	return func(client *Client) {
		client.baseURL = url
	}
}

// WithRateLimit sets the minimum interval between requests.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(client *Client) {
		client.rateLimiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithBackoff sets the initial wait after a 429 response.
func WithBackoff(d time.Duration) ClientOption {
	return func(client *Client) {
		client.backoff = d
	}
}

// NewClient creates a new GitHub API client.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, apperrors.ErrGitHubTokenRequired
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: httpTimeout},
		token:       token,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitInterval), 1),
		baseURL:     BaseURL,
		backoff:     initialBackoff,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// APIError is an error payload returned by the GitHub API.
type APIError struct {
	Status           int    `json:"-"`
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %d %s", e.Status, e.Message)
}

// do performs an HTTP request with rate limiting and retries on 429.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	c.logger.DebugContext(ctx, "API request", "method", method, "path", path)
	startTime := time.Now()
	backoff := c.backoff

	for attempt := range maxRetries {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", APIVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.WarnContext(ctx, "rate limited, backing off", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		if resp.StatusCode >= httpStatusBadRequest {
			var errResp APIError
			if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Message == "" {
				return apperrors.NewHTTPError(resp.StatusCode, string(respBody))
			}
			errResp.Status = resp.StatusCode
			return &errResp
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}

		c.logger.DebugContext(ctx, "API response",
			"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(startTime))
		return nil
	}

	return apperrors.ErrMaxRetriesExceeded
}
