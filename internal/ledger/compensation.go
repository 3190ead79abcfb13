package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// CompensationKind selects the inverse action of a step.
type CompensationKind string

// Compensation kinds.
const (
	KindNoop        CompensationKind = "noop"
	KindRestoreFile CompensationKind = "restore_file"
	KindResetCommit CompensationKind = "reset_commit"
	KindDeleteTag   CompensationKind = "delete_tag"
	KindManual      CompensationKind = "manual"
)

// Compensation describes how to undo a step as plain data.
// The Dispatcher turns it into an action at rollback time.
type Compensation struct {
	Kind       CompensationKind `json:"kind"`
	BackupID   string           `json:"backup_id,omitempty"`
	Path       string           `json:"path,omitempty"`
	ParentHash string           `json:"parent_hash,omitempty"`
	Tag        string           `json:"tag,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Noop is the compensation of steps with nothing to undo, such as taking a backup.
func Noop() *Compensation {
	return &Compensation{Kind: KindNoop}
}

// RestoreFile puts path back from a backup set.
func RestoreFile(backupID, path string) *Compensation {
	return &Compensation{Kind: KindRestoreFile, BackupID: backupID, Path: path}
}

// ResetCommit hard-resets the branch to parent.
func ResetCommit(parent string) *Compensation {
	return &Compensation{Kind: KindResetCommit, ParentHash: parent}
}

// DeleteTag removes a local tag, and the remote one when the operation is marked pushed.
func DeleteTag(tag string) *Compensation {
	return &Compensation{Kind: KindDeleteTag, Tag: tag}
}

// Manual marks a step that cannot be undone automatically.
func Manual(reason string) *Compensation {
	return &Compensation{Kind: KindManual, Reason: reason}
}

// Compensator undoes a completed operation.
type Compensator interface {
	Compensate(ctx context.Context, op Operation) error
}

// FileRestorer restores a file from a backup set.
type FileRestorer interface {
	RestoreFile(ctx context.Context, backupID, path string) error
}

// GitReverter undoes git side effects.
type GitReverter interface {
	ResetToCommit(ctx context.Context, ref string, hard bool) error
	DeleteLocalTag(ctx context.Context, tag string) error
	DeleteRemoteTag(ctx context.Context, tag string) error
}

// Dispatcher maps compensation kinds to actions on backups and git.
type Dispatcher struct {
	Backups FileRestorer
	Git     GitReverter
	Logger  *slog.Logger
}

// Compensate runs the inverse action described by op.Compensation.
func (d *Dispatcher) Compensate(ctx context.Context, op Operation) error {
	comp := op.Compensation
	if comp == nil {
		return nil
	}

	switch comp.Kind {
	case KindNoop:
		return nil

	case KindRestoreFile:
		if d.Backups == nil {
			return fmt.Errorf("restore %s: no backup store", comp.Path)
		}
		return d.Backups.RestoreFile(ctx, comp.BackupID, comp.Path)

	case KindResetCommit:
		if d.Git == nil {
			return fmt.Errorf("reset to %s: no git repository", comp.ParentHash)
		}
		return d.Git.ResetToCommit(ctx, comp.ParentHash, true)

	case KindDeleteTag:
		if d.Git == nil {
			return fmt.Errorf("delete tag %s: no git repository", comp.Tag)
		}
		if err := d.Git.DeleteLocalTag(ctx, comp.Tag); err != nil {
			return err
		}
		if op.Metadata[MetaPushed] == "true" {
			if err := d.Git.DeleteRemoteTag(ctx, comp.Tag); err != nil {
				d.logger().WarnContext(ctx, "failed to delete remote tag, delete it manually",
					"tag", comp.Tag, "error", err)
			}
		}
		return nil

	case KindManual:
		return fmt.Errorf("%w: %s", apperrors.ErrManualFollowUp, comp.Reason)

	default:
		return fmt.Errorf("unknown compensation kind %q", comp.Kind)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
