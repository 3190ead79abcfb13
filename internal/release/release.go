// Package release runs a release end to end: version resolution, file updates,
// commit, tag, push and publication, undoing local steps when one fails.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/audit"
	"github.com/fclairamb/releasekit/internal/fileupdate"
	"github.com/fclairamb/releasekit/internal/github"
	"github.com/fclairamb/releasekit/internal/gitrepo"
	"github.com/fclairamb/releasekit/internal/ledger"
	"github.com/fclairamb/releasekit/internal/store"
	"github.com/fclairamb/releasekit/internal/versioning"
)

const (
	// DefaultTagPrefix is put in front of versions to name tags.
	DefaultTagPrefix = "v"
	// DefaultCommitPrefix starts the subject of release commits.
	DefaultCommitPrefix = "chore(release):"
	// DefaultInitialVersion is the current version when no release tag exists.
	DefaultInitialVersion = "0.0.0"
)

// DefaultFiles are the version files updated when none are configured and they exist.
var DefaultFiles = []string{
	"package.json", "package-lock.json", "Cargo.toml", "pyproject.toml",
	"setup.py", "setup.cfg", "Chart.yaml", "pubspec.yaml", "pom.xml",
	"build.gradle", "build.gradle.kts", "gradle.properties", "VERSION", "version.txt",
}

// Git is the repository the release is made in.
type Git interface {
	ledger.GitReverter
	HasUncommittedChanges(ctx context.Context) (bool, error)
	CommitsSinceLastRelease(ctx context.Context, prefix string) ([]versioning.Commit, *gitrepo.Release, error)
	CurrentCommitHash(ctx context.Context) (string, error)
	TagExists(ctx context.Context, name string) (bool, error)
	Commit(ctx context.Context, message string, paths []string) (string, error)
	CreateTag(ctx context.Context, name, message string) error
	Push(ctx context.Context, tags ...string) error
	GitUser() (name, email string)
}

// Backups snapshots files before they are changed.
type Backups interface {
	ledger.FileRestorer
	CreateBackup(ctx context.Context, files []string) (string, error)
	CleanupBackup(ctx context.Context, id string)
}

// Publisher creates the hosted release.
type Publisher interface {
	CreateRelease(ctx context.Context, req github.ReleaseRequest) (string, error)
}

// FileTarget is a file to update and how.
type FileTarget struct {
	Path   string
	Key    string                // Handler pattern key, defaults to "version"
	Custom fileupdate.CustomFunc // Replaces the handler when set
}

// Options controls one release.
type Options struct {
	Bump          *versioning.Severity // Explicit bump, must not be lower than what commits require
	Files         []FileTarget         // Defaults to the existing DefaultFiles
	DryRun        bool
	Push          bool
	CreateRelease bool
	AllowDirty    bool
}

// FileChange is the computed update of one file.
type FileChange struct {
	Path          string
	Handler       string
	Matches       int
	Diff          string
	Preview       []fileupdate.Match
	ValidationErr error
}

// Result describes a release.
type Result struct {
	PreviousVersion string
	Version         string
	Tag             string
	Commit          string
	ReleaseURL      string
	Notes           string
	Commits         []versioning.Commit
	Files           []FileChange
	DryRun          bool
	Pushed          bool
	Operations      []ledger.Operation
}

// Releaser performs releases in a single repository.
type Releaser struct {
	git            Git
	workspace      store.Store
	engine         *fileupdate.Engine
	backups        Backups
	publisher      Publisher
	audit          *audit.Logger
	logger         *slog.Logger
	tagPrefix      string
	commitPrefix   string
	initialVersion string
	now            func() time.Time
}

// Option configures the Releaser.
type Option func(*Releaser)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Releaser) {
		r.logger = l
	}
}

// WithPublisher sets where releases are published.
func WithPublisher(p Publisher) Option {
	return func(r *Releaser) {
		r.publisher = p
	}
}

// WithAudit sets the audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(r *Releaser) {
		r.audit = a
	}
}

// WithTagPrefix sets the tag prefix.
func WithTagPrefix(prefix string) Option {
	return func(r *Releaser) {
		r.tagPrefix = prefix
	}
}

// WithCommitPrefix sets the release commit subject prefix.
func WithCommitPrefix(prefix string) Option {
	return func(r *Releaser) {
		r.commitPrefix = prefix
	}
}

// WithInitialVersion sets the version assumed before the first release.
func WithInitialVersion(v string) Option {
	return func(r *Releaser) {
		r.initialVersion = v
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Releaser) {
		r.now = now
	}
}

// NewReleaser creates a Releaser.
func NewReleaser(git Git, workspace store.Store, engine *fileupdate.Engine, backups Backups, opts ...Option) *Releaser {
	r := &Releaser{
		git:            git,
		workspace:      workspace,
		engine:         engine,
		backups:        backups,
		logger:         slog.Default(),
		tagPrefix:      DefaultTagPrefix,
		commitPrefix:   DefaultCommitPrefix,
		initialVersion: DefaultInitialVersion,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.audit == nil {
		r.audit = audit.New(r.logger)
	}
	return r
}

// NextVersion resolves the version the next release would get.
func (r *Releaser) NextVersion(ctx context.Context, bump *versioning.Severity) (*Result, error) {
	commits, last, err := r.git.CommitsSinceLastRelease(ctx, r.tagPrefix)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	current := r.initialVersion
	if last != nil {
		current = last.Version
	}

	next, err := versioning.CalculateNewVersion(current, commits, bump)
	if err != nil {
		return nil, err
	}

	return &Result{
		PreviousVersion: current,
		Version:         next,
		Tag:             r.tagPrefix + next,
		Commits:         commits,
		Notes:           Notes(next, r.now(), commits),
	}, nil
}

// Run performs a release. Every mutating step is recorded in a ledger before it
// runs; on failure the completed ones are undone and a *Error is returned.
func (r *Releaser) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.CreateRelease && !opts.DryRun && r.publisher == nil {
		return nil, apperrors.ErrGitHubTokenRequired
	}

	if !opts.AllowDirty {
		dirty, err := r.git.HasUncommittedChanges(ctx)
		if err != nil {
			return nil, fmt.Errorf("check working tree: %w", err)
		}
		if dirty {
			return nil, apperrors.ErrUncommittedChanges
		}
	}

	result, err := r.NextVersion(ctx, opts.Bump)
	if err != nil {
		return nil, err
	}
	result.DryRun = opts.DryRun

	exists, err := r.git.TagExists(ctx, result.Tag)
	if err != nil {
		return nil, fmt.Errorf("check tag: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTagExists, result.Tag)
	}

	targets, err := r.targets(ctx, opts.Files)
	if err != nil {
		return nil, err
	}

	contents, err := r.compute(ctx, targets, result)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		r.logger.InfoContext(ctx, "dry run, nothing changed", "version", result.Version, "files", len(result.Files))
		return result, nil
	}

	r.audit.Audit(ctx, audit.ActionReleaseStart,
		"version", result.Version,
		"previous", result.PreviousVersion,
		"files", len(targets))

	run := &execution{
		Releaser: r,
		ledger:   ledger.New(ledger.WithLogger(r.logger)),
		result:   result,
		opts:     opts,
	}
	if err := run.execute(ctx, targets, contents); err != nil {
		result.Operations = run.ledger.Operations()
		return result, err
	}

	result.Operations = run.ledger.Operations()
	r.audit.Audit(ctx, audit.ActionReleaseComplete,
		"version", result.Version,
		"tag", result.Tag,
		"commit", result.Commit,
		"pushed", result.Pushed,
		"url", result.ReleaseURL)
	return result, nil
}

// targets fills in defaults and drops missing default files.
func (r *Releaser) targets(ctx context.Context, files []FileTarget) ([]FileTarget, error) {
	if len(files) == 0 {
		for _, path := range DefaultFiles {
			ok, err := r.workspace.Exists(ctx, path)
			if err != nil {
				return nil, err
			}
			if ok {
				files = append(files, FileTarget{Path: path})
			}
		}
	}

	out := make([]FileTarget, 0, len(files))
	for _, f := range files {
		if f.Key == "" {
			f.Key = fileupdate.KeyVersion
		}
		out = append(out, f)
	}
	return out, nil
}

// compute derives every new file content without writing. All files are
// attempted; any failure aborts the release before anything is changed.
func (r *Releaser) compute(ctx context.Context, targets []FileTarget, result *Result) ([]string, error) {
	contents := make([]string, len(targets))
	var errs []error

	for i, t := range targets {
		before, err := r.workspace.Read(ctx, t.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", t.Path, err))
			continue
		}

		res := r.engine.UpdateContent(t.Path, string(before), t.Key, result.Version, t.Custom)
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}

		change := FileChange{
			Path:          t.Path,
			Handler:       res.Handler,
			Matches:       res.Matches,
			ValidationErr: res.ValidationErr,
		}
		if change.Diff, err = fileupdate.UnifiedDiff(t.Path, string(before), res.Content); err != nil {
			r.logger.WarnContext(ctx, "failed to render diff", "path", t.Path, "error", err)
		}
		if t.Custom == nil {
			if change.Preview, err = r.engine.PreviewChanges(ctx, t.Path, t.Key, result.Version); err != nil {
				r.logger.WarnContext(ctx, "failed to preview", "path", t.Path, "error", err)
			}
		}

		contents[i] = res.Content
		result.Files = append(result.Files, change)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("update files: %w", errors.Join(errs...))
	}
	return contents, nil
}

// execution is the mutating part of one release.
type execution struct {
	*Releaser
	ledger   *ledger.Ledger
	result   *Result
	opts     Options
	backupID string
}

func (e *execution) execute(ctx context.Context, targets []FileTarget, contents []string) error {
	paths := make([]string, len(targets))
	for i, t := range targets {
		paths[i] = t.Path
	}

	if err := e.backup(ctx, paths); err != nil {
		return err
	}
	if err := e.writeFiles(ctx, targets, contents); err != nil {
		return err
	}
	if err := e.commit(ctx, paths); err != nil {
		return err
	}
	if err := e.tag(ctx); err != nil {
		return err
	}
	if e.opts.Push {
		if err := e.push(ctx); err != nil {
			return err
		}
	}
	if e.opts.CreateRelease {
		if err := e.publish(ctx); err != nil {
			return err
		}
	}

	e.backups.CleanupBackup(ctx, e.backupID)
	return nil
}

func (e *execution) backup(ctx context.Context, paths []string) error {
	id := e.ledger.Track(ledger.TypeFileBackup, "snapshot version files",
		map[string]string{"files": strconv.Itoa(len(paths))}, ledger.Noop())
	if err := e.ledger.MarkInProgress(id, nil); err != nil {
		return err
	}

	backupID, err := e.backups.CreateBackup(ctx, paths)
	if err != nil {
		return e.fail(ctx, StepBackup, id, err)
	}
	e.backupID = backupID
	return e.ledger.MarkCompleted(id, map[string]string{ledger.MetaBackupID: backupID})
}

// writeFiles writes every file even when one fails, then fails if any did.
func (e *execution) writeFiles(ctx context.Context, targets []FileTarget, contents []string) error {
	var errs []error
	lastFailed := 0

	for i, t := range targets {
		id := e.ledger.Track(ledger.TypeFileUpdate, "update "+t.Path,
			map[string]string{ledger.MetaPath: t.Path, ledger.MetaBackupID: e.backupID},
			ledger.RestoreFile(e.backupID, t.Path))
		if err := e.ledger.MarkInProgress(id, nil); err != nil {
			return err
		}

		if err := e.engine.WriteFile(ctx, t.Path, contents[i]); err != nil {
			_ = e.ledger.MarkFailed(id, err, nil)
			errs = append(errs, err)
			lastFailed = id
			continue
		}
		if err := e.ledger.MarkCompleted(id, nil); err != nil {
			return err
		}
	}

	if len(errs) > 0 {
		return e.fail(ctx, StepUpdateFiles, lastFailed, errors.Join(errs...))
	}
	return nil
}

func (e *execution) commit(ctx context.Context, paths []string) error {
	parent, err := e.git.CurrentCommitHash(ctx)
	if err != nil {
		return e.fail(ctx, StepCommit, 0, fmt.Errorf("read HEAD: %w", err))
	}

	message := e.commitPrefix + " " + e.result.Version
	id := e.ledger.Track(ledger.TypeGitCommit, message,
		map[string]string{ledger.MetaParent: parent}, ledger.ResetCommit(parent))
	if err := e.ledger.MarkInProgress(id, nil); err != nil {
		return err
	}

	hash, err := e.git.Commit(ctx, message, paths)
	if err != nil {
		return e.fail(ctx, StepCommit, id, err)
	}
	e.result.Commit = hash
	return e.ledger.MarkCompleted(id, map[string]string{ledger.MetaCommit: hash})
}

func (e *execution) tag(ctx context.Context) error {
	id := e.ledger.Track(ledger.TypeGitTag, "tag "+e.result.Tag,
		map[string]string{ledger.MetaTag: e.result.Tag}, ledger.DeleteTag(e.result.Tag))
	if err := e.ledger.MarkInProgress(id, nil); err != nil {
		return err
	}

	if err := e.git.CreateTag(ctx, e.result.Tag, "Release "+e.result.Version); err != nil {
		return e.fail(ctx, StepTag, id, err)
	}
	return e.ledger.MarkCompleted(id, nil)
}

func (e *execution) push(ctx context.Context) error {
	id := e.ledger.Track(ledger.TypeGitPush, "push branch and "+e.result.Tag,
		map[string]string{ledger.MetaTag: e.result.Tag},
		ledger.Manual("the release commit "+e.result.Commit+" was pushed and must be reverted on the remote branch"))
	if err := e.ledger.MarkInProgress(id, nil); err != nil {
		return err
	}

	if err := e.git.Push(ctx, e.result.Tag); err != nil {
		return e.fail(ctx, StepPush, id, err)
	}

	for _, op := range e.ledger.ByType(ledger.TypeGitTag) {
		if err := e.ledger.Annotate(op.ID, map[string]string{ledger.MetaPushed: "true"}); err != nil {
			return err
		}
	}
	e.result.Pushed = true
	return e.ledger.MarkCompleted(id, nil)
}

func (e *execution) publish(ctx context.Context) error {
	if e.publisher == nil {
		return e.fail(ctx, StepPublish, 0, apperrors.ErrGitHubTokenRequired)
	}

	id := e.ledger.Track(ledger.TypeGitHubRelease, "publish release "+e.result.Tag,
		map[string]string{ledger.MetaTag: e.result.Tag},
		ledger.Manual("delete the hosted release "+e.result.Tag))
	if err := e.ledger.MarkInProgress(id, nil); err != nil {
		return err
	}

	url, err := e.publisher.CreateRelease(ctx, github.ReleaseRequest{
		TagName: e.result.Tag,
		Name:    e.result.Tag,
		Body:    e.result.Notes,
	})
	if err != nil {
		return e.fail(ctx, StepPublish, id, err)
	}
	e.result.ReleaseURL = url
	return e.ledger.MarkCompleted(id, map[string]string{ledger.MetaURL: url})
}

// fail marks the step failed, rolls back and builds the error.
func (e *execution) fail(ctx context.Context, step Step, id int, cause error) error {
	if id > 0 {
		if op, err := e.ledger.Get(id); err == nil && op.State != ledger.StateFailed {
			_ = e.ledger.MarkFailed(id, cause, nil)
		}
	}
	e.logger.ErrorContext(ctx, "release step failed", "step", step, "error", cause)

	coordinator := ledger.NewCoordinator(e.ledger, &ledger.Dispatcher{
		Backups: e.backups,
		Git:     e.git,
		Logger:  e.logger,
	}, ledger.WithCoordinatorLogger(e.logger), ledger.WithAudit(e.audit))
	rollback := coordinator.PerformRollback(ctx)

	e.audit.Audit(ctx, audit.ActionReleaseFailed,
		"version", e.result.Version,
		"step", string(step),
		"error", cause.Error(),
		"rolled_back", len(rollback.RolledBack),
		"rollback_failures", len(rollback.Failed),
		"manual_follow_ups", len(rollback.ManualFollowUps),
		"backup_id", e.backupID)

	return &Error{
		Step:     step,
		Err:      cause,
		Rollback: &rollback,
		BackupID: e.backupID,
	}
}
