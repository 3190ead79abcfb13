package release

import (
	"fmt"
	"strings"

	"github.com/fclairamb/releasekit/internal/ledger"
)

// Step names a mutating phase of a release.
type Step string

// Release steps.
const (
	StepBackup      Step = "backup"
	StepUpdateFiles Step = "update files"
	StepCommit      Step = "commit"
	StepTag         Step = "tag"
	StepPush        Step = "push"
	StepPublish     Step = "publish release"
)

// Error reports a release that failed after changing something, and what the
// rollback could and could not undo.
type Error struct {
	Step     Step
	Err      error
	Rollback *ledger.RollbackResult
	BackupID string // Retained snapshot set, empty if none was taken
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "release failed at %s: %v", e.Step, e.Err)
	if e.Rollback == nil {
		return b.String()
	}

	fmt.Fprintf(&b, " (rolled back %d step(s)", len(e.Rollback.RolledBack))
	if n := len(e.Rollback.Failed); n > 0 {
		fmt.Fprintf(&b, ", %d rollback failure(s)", n)
	}
	if n := len(e.Rollback.ManualFollowUps); n > 0 {
		fmt.Fprintf(&b, ", %d manual follow-up(s)", n)
	}
	b.WriteString(")")
	return b.String()
}

// Unwrap returns the cause and, when rollback was incomplete, the rollback error.
func (e *Error) Unwrap() []error {
	errs := []error{e.Err}
	if e.Rollback != nil {
		if err := e.Rollback.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// FollowUps lists what an operator must still clean up by hand.
func (e *Error) FollowUps() []string {
	if e.Rollback == nil {
		return nil
	}
	var out []string
	for _, f := range e.Rollback.Failed {
		out = append(out, fmt.Sprintf("%s: rollback failed: %v", f.Operation.Description, f.Err))
	}
	for _, op := range e.Rollback.ManualFollowUps {
		out = append(out, op.Description+": "+op.Compensation.Reason)
	}
	return out
}
