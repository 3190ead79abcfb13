package rollback

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/audit"
)

type fakeGit struct {
	message   string
	tags      map[string]bool
	remoteErr error
	calls     []string
}

func (f *fakeGit) LastCommitMessage(context.Context) (string, error) {
	f.calls = append(f.calls, "log")
	return f.message, nil
}

func (f *fakeGit) ParentCommitHash(_ context.Context, ref string) (string, error) {
	f.calls = append(f.calls, "parent "+ref)
	return "parent123", nil
}

func (f *fakeGit) ResetToCommit(_ context.Context, ref string, hard bool) error {
	if !hard {
		return errors.New("expected hard reset")
	}
	f.calls = append(f.calls, "reset "+ref)
	return nil
}

func (f *fakeGit) TagExists(_ context.Context, name string) (bool, error) {
	return f.tags[name], nil
}

func (f *fakeGit) DeleteLocalTag(_ context.Context, name string) error {
	f.calls = append(f.calls, "tag -d "+name)
	delete(f.tags, name)
	return nil
}

func (f *fakeGit) DeleteRemoteTag(_ context.Context, name string) error {
	f.calls = append(f.calls, "push --delete "+name)
	return f.remoteErr
}

type fakePrompter struct {
	version string
	answer  bool
	asked   []string
}

func (p *fakePrompter) Version(context.Context) (string, error) {
	p.asked = append(p.asked, "version")
	return p.version, nil
}

func (p *fakePrompter) Confirm(_ context.Context, question string) (bool, error) {
	p.asked = append(p.asked, question)
	return p.answer, nil
}

func newTestManager(git Git, opts ...Option) (*Manager, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	opts = append([]Option{WithLogger(logger), WithAudit(audit.New(logger).WithActor("tester"))}, opts...)
	return NewManager(git, opts...), &buf
}

func TestRollback_ReleaseCommit(t *testing.T) {
	t.Parallel()
	git := &fakeGit{message: "chore(release): 1.2.0\n\nRelease notes", tags: map[string]bool{"v1.2.0": true}}
	m, logs := newTestManager(git)

	report, err := m.Rollback(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if report.Version != "1.2.0" || !report.ReleaseCommit || !report.TagDeleted || report.ResetTo != "parent123" {
		t.Errorf("unexpected report %+v", report)
	}
	want := []string{"log", "tag -d v1.2.0", "parent HEAD", "reset parent123"}
	if !slices.Equal(git.calls, want) {
		t.Errorf("got calls %v, want %v", git.calls, want)
	}

	out := logs.String()
	for _, action := range []string{audit.ActionRollbackStart, audit.ActionRollbackComplete} {
		if !strings.Contains(out, `"action":"`+action+`"`) {
			t.Errorf("missing audit entry %s in %s", action, out)
		}
	}
}

func TestRollback_NonReleaseCommitNeverResets(t *testing.T) {
	t.Parallel()
	git := &fakeGit{message: "fix: unrelated work", tags: map[string]bool{"v1.2.0": true}}
	m, _ := newTestManager(git)

	report, err := m.Rollback(context.Background(), Options{Version: "v1.2.0"})
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if report.ReleaseCommit || report.ResetTo != "" || !report.TagDeleted {
		t.Errorf("unexpected report %+v", report)
	}
	if slices.ContainsFunc(git.calls, func(c string) bool { return strings.HasPrefix(c, "reset") }) {
		t.Errorf("history was reset: %v", git.calls)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("expected a warning, got %v", report.Warnings)
	}
}

func TestRollback_OtherReleaseCommitNotReset(t *testing.T) {
	t.Parallel()
	git := &fakeGit{message: "chore(release): 1.3.0", tags: map[string]bool{}}
	m, _ := newTestManager(git)

	report, err := m.Rollback(context.Background(), Options{Version: "1.2.0"})
	if err != nil {
		t.Fatal(err)
	}
	if report.ReleaseCommit || report.ResetTo != "" {
		t.Errorf("release commit of another version must not be reset: %+v", report)
	}
}

func TestRollback_VersionRequired(t *testing.T) {
	t.Parallel()
	git := &fakeGit{message: "feat: something"}
	m, logs := newTestManager(git)

	_, err := m.Rollback(context.Background(), Options{})
	if !errors.Is(err, apperrors.ErrVersionRequired) {
		t.Errorf("expected ErrVersionRequired, got %v", err)
	}
	if !strings.Contains(logs.String(), audit.ActionRollbackFailed) {
		t.Error("missing failure audit entry")
	}
}

func TestRollback_PromptsForVersion(t *testing.T) {
	t.Parallel()
	git := &fakeGit{message: "feat: something", tags: map[string]bool{"v2.0.0": true}}
	prompter := &fakePrompter{version: "2.0.0", answer: true}
	m, _ := newTestManager(git, WithPrompter(prompter))

	report, err := m.Rollback(context.Background(), Options{Interactive: true})
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if report.Version != "2.0.0" || !report.TagDeleted {
		t.Errorf("unexpected report %+v", report)
	}
	if prompter.asked[0] != "version" {
		t.Errorf("expected version prompt first, got %v", prompter.asked)
	}
}

func TestRollback_DeclinedConfirmationAborts(t *testing.T) {
	t.Parallel()
	git := &fakeGit{message: "chore(release): 1.0.0", tags: map[string]bool{"v1.0.0": true}}
	m, _ := newTestManager(git, WithPrompter(&fakePrompter{answer: false}))

	_, err := m.Rollback(context.Background(), Options{Interactive: true})
	if !errors.Is(err, apperrors.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if !slices.Equal(git.calls, []string{"log"}) {
		t.Errorf("nothing should change after declining, got %v", git.calls)
	}
}

func TestRollback_RejectsMalformedVersionBeforeGit(t *testing.T) {
	t.Parallel()

	for _, version := range []string{"1.0", "1.0.0; rm -rf /", "$(whoami)", "1.0.0 --force", "01.0.0", "v1.0.0-"} {
		t.Run(version, func(t *testing.T) {
			t.Parallel()
			git := &fakeGit{message: "fix: x", tags: map[string]bool{}}
			m, _ := newTestManager(git)

			_, err := m.Rollback(context.Background(), Options{Version: version})
			if !errors.Is(err, apperrors.ErrInvalidVersion) {
				t.Errorf("expected ErrInvalidVersion, got %v", err)
			}
			if len(git.calls) != 1 {
				t.Errorf("only the commit message may be read, got %v", git.calls)
			}
		})
	}
}

func TestRollback_RemoteTag(t *testing.T) {
	t.Parallel()

	t.Run("unconfirmed is skipped", func(t *testing.T) {
		t.Parallel()
		git := &fakeGit{message: "chore(release): 1.0.0", tags: map[string]bool{}}
		m, _ := newTestManager(git)

		report, err := m.Rollback(context.Background(), Options{Remote: true})
		if err != nil {
			t.Fatal(err)
		}
		if !report.RemoteSkipped || report.RemoteTagDeleted {
			t.Errorf("unexpected report %+v", report)
		}
		if slices.Contains(git.calls, "push --delete v1.0.0") {
			t.Error("remote deleted without confirmation")
		}
	})

	t.Run("auto confirmed", func(t *testing.T) {
		t.Parallel()
		git := &fakeGit{message: "chore(release): 1.0.0", tags: map[string]bool{}}
		m, _ := newTestManager(git)

		report, err := m.Rollback(context.Background(), Options{Remote: true, AutoConfirm: true})
		if err != nil || !report.RemoteTagDeleted {
			t.Errorf("unexpected report %+v, %v", report, err)
		}
	})

	t.Run("failure is not fatal", func(t *testing.T) {
		t.Parallel()
		git := &fakeGit{message: "chore(release): 1.0.0", tags: map[string]bool{}, remoteErr: errors.New("permission denied")}
		m, _ := newTestManager(git)

		report, err := m.Rollback(context.Background(), Options{Remote: true, AutoConfirm: true})
		if err != nil {
			t.Fatalf("remote failure must not fail the rollback: %v", err)
		}
		if report.RemoteTagDeleted || len(report.Warnings) != 1 || report.ResetTo == "" {
			t.Errorf("unexpected report %+v", report)
		}
	})
}

func TestReleaseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    string
		ok      bool
	}{
		{"chore(release): 1.2.3", "1.2.3", true},
		{"chore(release): v1.2.3\n\nbody", "v1.2.3", true},
		{"  chore(release):   2.0.0-rc.1  ", "2.0.0-rc.1", true},
		{"chore(release):", "", false},
		{"feat: chore(release): 1.0.0", "", false},
	}

	for _, tt := range tests {
		got, ok := ReleaseVersion(DefaultCommitPrefix, tt.message)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ReleaseVersion(%q) = %q, %v; want %q, %v", tt.message, got, ok, tt.want, tt.ok)
		}
	}
}
