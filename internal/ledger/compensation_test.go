package ledger

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type fakeRestorer struct {
	restored []string
	err      error
}

func (f *fakeRestorer) RestoreFile(_ context.Context, backupID, path string) error {
	f.restored = append(f.restored, backupID+":"+path)
	return f.err
}

type fakeGit struct {
	calls     []string
	remoteErr error
}

func (f *fakeGit) ResetToCommit(_ context.Context, ref string, hard bool) error {
	if hard {
		f.calls = append(f.calls, "reset --hard "+ref)
	}
	return nil
}

func (f *fakeGit) DeleteLocalTag(_ context.Context, tag string) error {
	f.calls = append(f.calls, "tag -d "+tag)
	return nil
}

func (f *fakeGit) DeleteRemoteTag(_ context.Context, tag string) error {
	f.calls = append(f.calls, "push --delete "+tag)
	return f.remoteErr
}

func TestDispatcher_BuiltInCompensations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	restorer := &fakeRestorer{}
	git := &fakeGit{remoteErr: errors.New("remote unreachable")}
	d := &Dispatcher{Backups: restorer, Git: git}

	ops := []Operation{
		{Type: TypeFileBackup, Compensation: Noop()},
		{Type: TypeFileUpdate, Compensation: RestoreFile("b1", "package.json")},
		{Type: TypeGitCommit, Compensation: ResetCommit("abc123")},
		{Type: TypeGitTag, Compensation: DeleteTag("v1.0.0"), Metadata: map[string]string{MetaPushed: "true"}},
		{Type: TypeGitTag, Compensation: DeleteTag("v0.9.0"), Metadata: map[string]string{}},
	}

	for _, op := range ops {
		if err := d.Compensate(ctx, op); err != nil {
			t.Errorf("%s: unexpected error %v", op.Type, err)
		}
	}

	if !slices.Equal(restorer.restored, []string{"b1:package.json"}) {
		t.Errorf("unexpected restores %v", restorer.restored)
	}
	want := []string{"reset --hard abc123", "tag -d v1.0.0", "push --delete v1.0.0", "tag -d v0.9.0"}
	if !slices.Equal(git.calls, want) {
		t.Errorf("got git calls %v, want %v", git.calls, want)
	}
}

func TestDispatcher_RestoreErrorPropagates(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{Backups: &fakeRestorer{err: errors.New("disk full")}}

	err := d.Compensate(context.Background(), Operation{Compensation: RestoreFile("b1", "a")})
	if err == nil {
		t.Error("expected restore error")
	}
}

func TestCoordinator_WithDispatcherRestoresFiles(t *testing.T) {
	t.Parallel()
	l := New()
	restorer := &fakeRestorer{}

	for _, path := range []string{"a.json", "b.toml"} {
		id := l.Track(TypeFileUpdate, "update "+path, map[string]string{MetaPath: path}, RestoreFile("b1", path))
		_ = l.MarkInProgress(id, nil)
		_ = l.MarkCompleted(id, nil)
	}

	result := NewCoordinator(l, &Dispatcher{Backups: restorer}).PerformRollback(context.Background())
	if !result.Success {
		t.Fatalf("unexpected failure %v", result.Err())
	}
	if !slices.Equal(restorer.restored, []string{"b1:b.toml", "b1:a.json"}) {
		t.Errorf("expected reverse restore order, got %v", restorer.restored)
	}
}
