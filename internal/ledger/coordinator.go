package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/audit"
)

// FailedRollback is a compensation that returned an error.
type FailedRollback struct {
	Operation Operation
	Err       error
}

// RollbackResult reports what was undone and what still needs an operator.
type RollbackResult struct {
	Success         bool
	RolledBack      []Operation
	Failed          []FailedRollback
	ManualFollowUps []Operation
}

// Err returns nil on success, otherwise an error wrapping ErrRollbackPartialFailure.
func (r *RollbackResult) Err() error {
	if r.Success {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Operation, f.Err))
	}
	return fmt.Errorf("%w: %w", apperrors.ErrRollbackPartialFailure, errors.Join(errs...))
}

// Coordinator replays a ledger backwards, invoking compensations.
type Coordinator struct {
	ledger      *Ledger
	compensator Compensator
	audit       *audit.Logger
	logger      *slog.Logger
}

// CoordinatorOption configures the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets a custom logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithAudit sets the audit logger.
func WithAudit(a *audit.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.audit = a
	}
}

// NewCoordinator creates a coordinator for ledger.
func NewCoordinator(ledger *Ledger, compensator Compensator, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		ledger:      ledger,
		compensator: compensator,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.audit == nil {
		c.audit = audit.New(c.logger)
	}
	return c
}

// PerformRollback undoes every COMPLETED operation, newest first.
// A failing compensation is recorded and the remaining ones still run.
// Each compensation runs at most once, even across repeated calls.
func (c *Coordinator) PerformRollback(ctx context.Context) RollbackResult {
	result := RollbackResult{}

	completed := c.ledger.ByState(StateCompleted)
	c.audit.Audit(ctx, audit.ActionRollbackStart,
		"operations", len(completed),
		"tracked", c.ledger.Len())
	c.logger.WarnContext(ctx, "rolling back release", "operations", len(completed))

	for i := len(completed) - 1; i >= 0; i-- {
		op := completed[i]

		if op.Compensation == nil {
			c.logger.DebugContext(ctx, "nothing to undo", "operation", op.String())
			continue
		}
		if c.ledger.markCompensated(op.ID) {
			c.logger.DebugContext(ctx, "compensation already invoked", "operation", op.String())
			continue
		}

		err := c.invoke(ctx, op)
		switch {
		case err == nil:
			c.logger.InfoContext(ctx, "rolled back", "operation", op.String())
			result.RolledBack = append(result.RolledBack, op)
		case errors.Is(err, apperrors.ErrManualFollowUp):
			c.logger.WarnContext(ctx, "manual follow-up required", "operation", op.String(), "reason", err)
			result.ManualFollowUps = append(result.ManualFollowUps, op)
		default:
			c.logger.ErrorContext(ctx, "rollback step failed", "operation", op.String(), "error", err)
			result.Failed = append(result.Failed, FailedRollback{Operation: op, Err: err})
		}
	}

	result.Success = len(result.Failed) == 0

	if result.Success {
		c.audit.Audit(ctx, audit.ActionRollbackComplete,
			"rolled_back", len(result.RolledBack),
			"manual_follow_ups", len(result.ManualFollowUps))
	} else {
		failed := make([]string, len(result.Failed))
		for i, f := range result.Failed {
			failed[i] = f.Operation.String() + ": " + f.Err.Error()
		}
		c.audit.Audit(ctx, audit.ActionRollbackFailed,
			"rolled_back", len(result.RolledBack),
			"failed", failed,
			"manual_follow_ups", len(result.ManualFollowUps))
	}

	return result
}

// invoke runs one compensation, turning a panic into an error.
func (c *Coordinator) invoke(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()
	return c.compensator.Compensate(ctx, op)
}
