// Package ledger records the mutating steps of a release so they can be undone.
//
// Operations are appended in creation order and never removed; ids are their
// 1-based position. Rollback walks the same slice backwards.
package ledger

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// OperationType identifies what a tracked step does.
type OperationType string

// Tracked operation types.
const (
	TypeFileBackup    OperationType = "FILE_BACKUP"
	TypeFileUpdate    OperationType = "FILE_UPDATE"
	TypeGitCommit     OperationType = "GIT_COMMIT"
	TypeGitTag        OperationType = "GIT_TAG"
	TypeGitPush       OperationType = "GIT_PUSH"
	TypeGitHubRelease OperationType = "GITHUB_RELEASE"
)

// State is the lifecycle state of an operation.
type State string

// Operation states.
const (
	StatePending    State = "PENDING"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Metadata keys shared by the release flow and the compensations.
const (
	MetaPath     = "path"
	MetaBackupID = "backup_id"
	MetaCommit   = "commit"
	MetaParent   = "parent"
	MetaTag      = "tag"
	MetaPushed   = "pushed"
	MetaURL      = "url"
	MetaError    = "error"
)

// Operation is a snapshot of a tracked step.
type Operation struct {
	ID           int
	Type         OperationType
	State        State
	Description  string
	Metadata     map[string]string
	Compensation *Compensation
	Compensated  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// String returns a short human description.
func (o Operation) String() string {
	return fmt.Sprintf("#%d %s %s (%s)", o.ID, o.Type, o.Description, o.State)
}

// Ledger is the ordered, append-only record of one release attempt.
// It is process-local with a single writer.
type Ledger struct {
	ops    []*Operation
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) {
		lg.logger = l
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Track registers a step before it runs and returns its id. The step starts PENDING.
func (l *Ledger) Track(typ OperationType, description string, metadata map[string]string, comp *Compensation) int {
	now := l.now()
	op := &Operation{
		ID:           len(l.ops) + 1,
		Type:         typ,
		State:        StatePending,
		Description:  description,
		Metadata:     maps.Clone(metadata),
		Compensation: comp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if op.Metadata == nil {
		op.Metadata = map[string]string{}
	}
	l.ops = append(l.ops, op)

	l.logger.Debug("operation tracked", "id", op.ID, "type", typ, "description", description)
	return op.ID
}

// MarkInProgress moves a PENDING operation to IN_PROGRESS.
func (l *Ledger) MarkInProgress(id int, metadata map[string]string) error {
	return l.transition(id, StateInProgress, metadata)
}

// MarkCompleted moves an IN_PROGRESS operation to COMPLETED.
func (l *Ledger) MarkCompleted(id int, metadata map[string]string) error {
	return l.transition(id, StateCompleted, metadata)
}

// MarkFailed moves a PENDING or IN_PROGRESS operation to FAILED and records cause.
func (l *Ledger) MarkFailed(id int, cause error, metadata map[string]string) error {
	merged := maps.Clone(metadata)
	if cause != nil {
		if merged == nil {
			merged = map[string]string{}
		}
		merged[MetaError] = cause.Error()
	}
	return l.transition(id, StateFailed, merged)
}

// Annotate merges metadata into an operation without changing its state.
func (l *Ledger) Annotate(id int, metadata map[string]string) error {
	op, err := l.lookup(id)
	if err != nil {
		return err
	}
	maps.Copy(op.Metadata, metadata)
	op.UpdatedAt = l.now()
	return nil
}

// Get returns a copy of an operation.
func (l *Ledger) Get(id int) (Operation, error) {
	op, err := l.lookup(id)
	if err != nil {
		return Operation{}, err
	}
	return op.clone(), nil
}

// Len returns the number of tracked operations.
func (l *Ledger) Len() int {
	return len(l.ops)
}

// Operations returns copies of every operation in creation order.
func (l *Ledger) Operations() []Operation {
	return l.filter(func(*Operation) bool { return true })
}

// ByType returns the operations of a given type in creation order.
func (l *Ledger) ByType(typ OperationType) []Operation {
	return l.filter(func(op *Operation) bool { return op.Type == typ })
}

// ByState returns the operations in a given state in creation order.
func (l *Ledger) ByState(state State) []Operation {
	return l.filter(func(op *Operation) bool { return op.State == state })
}

// Summary counts operations per type and state.
func (l *Ledger) Summary() map[OperationType]map[State]int {
	summary := make(map[OperationType]map[State]int)
	for _, op := range l.ops {
		if summary[op.Type] == nil {
			summary[op.Type] = make(map[State]int)
		}
		summary[op.Type][op.State]++
	}
	return summary
}

func (l *Ledger) filter(keep func(*Operation) bool) []Operation {
	var out []Operation
	for _, op := range l.ops {
		if keep(op) {
			out = append(out, op.clone())
		}
	}
	return out
}

func (l *Ledger) lookup(id int) (*Operation, error) {
	if id < 1 || id > len(l.ops) {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrOperationNotFound, id)
	}
	return l.ops[id-1], nil
}

func (l *Ledger) transition(id int, to State, metadata map[string]string) error {
	op, err := l.lookup(id)
	if err != nil {
		return err
	}

	if !allowed(op.State, to) {
		return fmt.Errorf("%w: operation %d %s -> %s", apperrors.ErrInvalidTransition, id, op.State, to)
	}

	op.State = to
	maps.Copy(op.Metadata, metadata)
	op.UpdatedAt = l.now()

	l.logger.Debug("operation state changed", "id", id, "type", op.Type, "state", to)
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateInProgress || to == StateFailed
	case StateInProgress:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// markCompensated flips the once-only flag and reports whether it was already set.
func (l *Ledger) markCompensated(id int) (already bool) {
	op := l.ops[id-1]
	if op.Compensated {
		return true
	}
	op.Compensated = true
	return false
}

func (o *Operation) clone() Operation {
	cp := *o
	cp.Metadata = maps.Clone(o.Metadata)
	if o.Compensation != nil {
		comp := *o.Compensation
		cp.Compensation = &comp
	}
	return cp
}
