// Package rollback undoes an already-completed release from git history alone,
// after the process that made it has exited.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/audit"
)

// DefaultCommitPrefix marks release commits.
const DefaultCommitPrefix = "chore(release):"

// versionGrammar is the only shape accepted before a version reaches git.
var versionGrammar = regexp.MustCompile(`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(-[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?$`)

// Git is the part of the repository the manager needs.
type Git interface {
	LastCommitMessage(ctx context.Context) (string, error)
	ParentCommitHash(ctx context.Context, ref string) (string, error)
	ResetToCommit(ctx context.Context, ref string, hard bool) error
	TagExists(ctx context.Context, name string) (bool, error)
	DeleteLocalTag(ctx context.Context, name string) error
	DeleteRemoteTag(ctx context.Context, name string) error
}

// Options controls one rollback.
type Options struct {
	Version     string // Version to roll back; inferred from the last commit when empty
	AutoConfirm bool   // Skip confirmation prompts
	Interactive bool   // Prompts may be shown
	Remote      bool   // Also delete the remote tag
}

// Report describes what a rollback did.
type Report struct {
	Version          string
	Tag              string
	ReleaseCommit    bool   // Last commit was the release commit of Version
	TagDeleted       bool   // Local tag removed
	ResetTo          string // Parent commit the branch was reset to
	RemoteTagDeleted bool
	RemoteSkipped    bool     // Remote deletion requested but not confirmed
	Warnings         []string // Non-fatal problems
}

// Manager performs post-hoc rollbacks.
type Manager struct {
	git          Git
	prompter     Prompter
	audit        *audit.Logger
	logger       *slog.Logger
	tagPrefix    string
	commitPrefix string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithPrompter sets how the operator is asked for input.
func WithPrompter(p Prompter) Option {
	return func(m *Manager) {
		m.prompter = p
	}
}

// WithAudit sets the audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(m *Manager) {
		m.audit = a
	}
}

// WithTagPrefix sets the prefix put in front of versions to name tags.
func WithTagPrefix(prefix string) Option {
	return func(m *Manager) {
		m.tagPrefix = prefix
	}
}

// WithCommitPrefix sets the subject prefix of release commits.
func WithCommitPrefix(prefix string) Option {
	return func(m *Manager) {
		m.commitPrefix = prefix
	}
}

// NewManager creates a rollback manager.
func NewManager(git Git, opts ...Option) *Manager {
	m := &Manager{
		git:          git,
		logger:       slog.Default(),
		tagPrefix:    "v",
		commitPrefix: DefaultCommitPrefix,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.audit == nil {
		m.audit = audit.New(m.logger)
	}
	return m
}

// ValidateVersion checks version against the strict release grammar.
func ValidateVersion(version string) error {
	if !versionGrammar.MatchString(version) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidVersion, version)
	}
	if !semver.IsValid("v" + strings.TrimPrefix(version, "v")) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidVersion, version)
	}
	return nil
}

// ReleaseVersion extracts the version from a release commit subject.
func ReleaseVersion(prefix, message string) (string, bool) {
	subject, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	rest, ok := strings.CutPrefix(strings.TrimSpace(subject), prefix)
	if !ok {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// Rollback undoes the release named by opts.Version, or the one made by the last commit.
func (m *Manager) Rollback(ctx context.Context, opts Options) (*Report, error) {
	m.audit.Audit(ctx, audit.ActionRollbackStart,
		"mode", "manual",
		"requested_version", opts.Version,
		"remote", opts.Remote)

	report, err := m.rollback(ctx, opts)
	if err != nil {
		m.audit.Audit(ctx, audit.ActionRollbackFailed,
			"mode", "manual",
			"version", report.Version,
			"error", err.Error())
		return report, err
	}

	m.audit.Audit(ctx, audit.ActionRollbackComplete,
		"mode", "manual",
		"version", report.Version,
		"tag_deleted", report.TagDeleted,
		"reset_to", report.ResetTo,
		"remote_tag_deleted", report.RemoteTagDeleted,
		"warnings", len(report.Warnings))
	return report, nil
}

func (m *Manager) rollback(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{}

	message, err := m.git.LastCommitMessage(ctx)
	if err != nil {
		return report, fmt.Errorf("read last commit: %w", err)
	}
	committed, isRelease := ReleaseVersion(m.commitPrefix, message)

	version := opts.Version
	if version == "" && isRelease {
		version = committed
	}
	if version == "" {
		if version, err = m.askVersion(ctx, opts); err != nil {
			return report, err
		}
	}

	if err := ValidateVersion(version); err != nil {
		return report, err
	}
	if isRelease && ValidateVersion(committed) != nil {
		isRelease = false
	}

	version = strings.TrimPrefix(version, "v")
	report.Version = version
	report.Tag = m.tagPrefix + version
	report.ReleaseCommit = isRelease && strings.TrimPrefix(committed, "v") == version

	// An explicit non-interactive invocation is its own confirmation for local changes.
	if opts.Interactive && m.prompter != nil && !m.confirm(ctx, opts, fmt.Sprintf("Roll back release %s?", version)) {
		return report, apperrors.ErrAborted
	}

	if err := m.deleteLocalTag(ctx, report); err != nil {
		return report, err
	}

	if report.ReleaseCommit {
		parent, err := m.git.ParentCommitHash(ctx, "HEAD")
		if err != nil {
			return report, fmt.Errorf("find parent of release commit: %w", err)
		}
		if err := m.git.ResetToCommit(ctx, parent, true); err != nil {
			return report, fmt.Errorf("reset to %s: %w", parent, err)
		}
		report.ResetTo = parent
	} else {
		m.logger.WarnContext(ctx, "last commit is not the release commit, history left untouched",
			"version", version, "last_commit", firstLine(message))
		report.Warnings = append(report.Warnings, "last commit is not the release commit of "+version+", no reset performed")
	}

	if opts.Remote {
		m.deleteRemoteTag(ctx, opts, report)
	}

	return report, nil
}

func (m *Manager) deleteLocalTag(ctx context.Context, report *Report) error {
	exists, err := m.git.TagExists(ctx, report.Tag)
	if err != nil {
		return fmt.Errorf("lookup tag %s: %w", report.Tag, err)
	}
	if !exists {
		m.logger.InfoContext(ctx, "local tag not found", "tag", report.Tag)
		return nil
	}
	if err := m.git.DeleteLocalTag(ctx, report.Tag); err != nil {
		return fmt.Errorf("delete local tag: %w", err)
	}
	report.TagDeleted = true
	return nil
}

func (m *Manager) deleteRemoteTag(ctx context.Context, opts Options, report *Report) {
	if !m.confirm(ctx, opts, fmt.Sprintf("Delete remote tag %s?", report.Tag)) {
		report.RemoteSkipped = true
		return
	}

	if err := m.git.DeleteRemoteTag(ctx, report.Tag); err != nil {
		m.logger.WarnContext(ctx, "failed to delete remote tag", "tag", report.Tag, "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("remote tag %s not deleted: %v", report.Tag, err))
		return
	}
	report.RemoteTagDeleted = true
}

func (m *Manager) askVersion(ctx context.Context, opts Options) (string, error) {
	if !opts.Interactive || m.prompter == nil {
		return "", apperrors.ErrVersionRequired
	}
	version, err := m.prompter.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("prompt version: %w", err)
	}
	if version == "" {
		return "", apperrors.ErrVersionRequired
	}
	return version, nil
}

// confirm asks a yes/no question. Without AutoConfirm and without a prompt it answers no.
func (m *Manager) confirm(ctx context.Context, opts Options, question string) bool {
	if opts.AutoConfirm {
		return true
	}
	if !opts.Interactive || m.prompter == nil {
		return false
	}
	ok, err := m.prompter.Confirm(ctx, question)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.WarnContext(ctx, "prompt failed", "error", err)
		}
		return false
	}
	return ok
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
