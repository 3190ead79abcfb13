// Package audit emits structured audit entries for release and rollback actions.
package audit

import (
	"context"
	"log/slog"
	"os/user"
)

// Actions recorded by the release engine.
const (
	ActionRollbackStart    = "rollback.start"
	ActionRollbackComplete = "rollback.complete"
	ActionRollbackFailed   = "rollback.failed"
	ActionReleaseStart     = "release.start"
	ActionReleaseComplete  = "release.complete"
	ActionReleaseFailed    = "release.failed"
)

// Logger writes audit entries through slog.
type Logger struct {
	logger *slog.Logger
	actor  string
}

// New creates an audit logger. The actor defaults to the OS user.
func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	actor := "unknown"
	if u, err := user.Current(); err == nil {
		actor = u.Username
	}
	return &Logger{logger: logger, actor: actor}
}

// WithActor returns a copy recording actor as the initiator (e.g. the git user).
func (l *Logger) WithActor(actor string) *Logger {
	if actor == "" {
		return l
	}
	cp := *l
	cp.actor = actor
	return &cp
}

// Audit records action with its details.
func (l *Logger) Audit(ctx context.Context, action string, details ...any) {
	if l == nil {
		return
	}
	l.logger.InfoContext(ctx, "audit",
		slog.Bool("audit", true),
		slog.String("action", action),
		slog.String("actor", l.actor),
		slog.Group("details", details...),
	)
}
