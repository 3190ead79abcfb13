// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPError represents an HTTP error with a status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// Common static errors used throughout the application.
var (
	// ErrInvalidVersion is returned when a version string does not follow MAJOR.MINOR.PATCH.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidBump is returned when a bump type is not one of major, minor or patch.
	ErrInvalidBump = errors.New("invalid bump type (expected major, minor or patch)")

	// ErrVersionConflict is returned when an explicit bump is lower than what the commits require.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNoHandler is returned when no file handler matches a path.
	ErrNoHandler = errors.New("no handler for file")

	// ErrNoPatternDefined is returned when a handler has no pattern registered for a key.
	ErrNoPatternDefined = errors.New("no pattern defined")

	// ErrNoMatchesFound is returned when a pattern matched nothing in the file content.
	ErrNoMatchesFound = errors.New("no matches found")

	// ErrPathTraversal is returned when a path escapes the working root.
	ErrPathTraversal = errors.New("path escapes working root")

	// ErrEmptyPath is returned when an empty path is provided.
	ErrEmptyPath = errors.New("empty path")

	// ErrBackupCreateFailed is returned when a backup set could not be created.
	ErrBackupCreateFailed = errors.New("backup creation failed")

	// ErrBackupNotFound is returned when a backup id is unknown.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrBackupEntryNotFound is returned when a file is not part of a backup set.
	ErrBackupEntryNotFound = errors.New("file not in backup set")

	// ErrRestoreFailed is returned when restoring a backup failed.
	ErrRestoreFailed = errors.New("restore failed")

	// ErrOperationNotFound is returned when a ledger operation id is unknown.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrInvalidTransition is returned when an operation state change is not allowed.
	ErrInvalidTransition = errors.New("invalid operation state transition")

	// ErrManualFollowUp is returned by compensations that cannot be automated.
	ErrManualFollowUp = errors.New("requires manual follow-up")

	// ErrRollbackPartialFailure is returned when at least one compensation failed.
	ErrRollbackPartialFailure = errors.New("rollback partially failed")

	// ErrNotGitRepository is returned when the working directory is not a git repository.
	ErrNotGitRepository = errors.New("not a git repository")

	// ErrUncommittedChanges is returned when the working tree is dirty.
	ErrUncommittedChanges = errors.New("working tree has uncommitted changes")

	// ErrTagExists is returned when the release tag already exists.
	ErrTagExists = errors.New("tag already exists")

	// ErrTagNotFound is returned when a tag does not exist.
	ErrTagNotFound = errors.New("tag not found")

	// ErrNoParentCommit is returned when HEAD has no parent to reset to.
	ErrNoParentCommit = errors.New("commit has no parent")

	// ErrRemoteNotConfigured is returned when a git remote operation is attempted but no remote is configured.
	ErrRemoteNotConfigured = errors.New("no remote configured")

	// ErrHTTPSPasswordRequired is returned when HTTPS git URL is used without RLK_GIT_TOKEN.
	ErrHTTPSPasswordRequired = errors.New("RLK_GIT_TOKEN required for HTTPS URLs")

	// ErrGitHubTokenRequired is returned when a release is requested without a token.
	ErrGitHubTokenRequired = errors.New("github token required (--github-token or GITHUB_TOKEN env var)")

	// ErrGitHubRepoRequired is returned when the owner/repo slug is missing.
	ErrGitHubRepoRequired = errors.New("github repository required (owner/name)")

	// ErrMaxRetriesExceeded is returned when the maximum number of retries is exceeded.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrVersionRequired is returned when the version cannot be inferred and no prompt is possible.
	ErrVersionRequired = errors.New("version required (last commit is not a release commit, use --version)")

	// ErrAborted is returned when the operator declines a confirmation.
	ErrAborted = errors.New("aborted by user")

	// ErrBackupIDRequired is returned when a backup id argument is missing.
	ErrBackupIDRequired = errors.New("backup id required")
)

// VersionConflictError reports that an explicit bump would under-version the release.
type VersionConflictError struct {
	Requested string
	Required  string
	Commits   []string // offending commits, formatted "hash type: description"
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: bump %q is lower than required %q (commits: %s)",
		ErrVersionConflict, e.Requested, e.Required, strings.Join(e.Commits, "; "))
}

// Unwrap allows errors.Is(err, ErrVersionConflict).
func (e *VersionConflictError) Unwrap() error {
	return ErrVersionConflict
}

// BackupError reports a failed backup on a specific file.
type BackupError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *BackupError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBackupCreateFailed, e.Path, e.Err)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *BackupError) Unwrap() []error {
	return []error{ErrBackupCreateFailed, e.Err}
}

// PatternError reports a named substitution failure for a file and key.
type PatternError struct {
	Path string
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("%s: key %q: %v", e.Path, e.Key, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *PatternError) Unwrap() error {
	return e.Err
}
