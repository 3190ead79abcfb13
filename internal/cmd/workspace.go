package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/audit"
	"github.com/fclairamb/releasekit/internal/backup"
	"github.com/fclairamb/releasekit/internal/config"
	"github.com/fclairamb/releasekit/internal/fileupdate"
	"github.com/fclairamb/releasekit/internal/github"
	"github.com/fclairamb/releasekit/internal/gitrepo"
	"github.com/fclairamb/releasekit/internal/release"
	"github.com/fclairamb/releasekit/internal/store"
)

type configKey struct{}

var errConfigNotLoaded = errors.New("configuration not loaded")

// setup loads the configuration and configures logging before a command runs.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	root := cmd.String("dir")
	if repo, err := gitrepo.Open(root); err == nil {
		root = repo.Path()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return ctx, err
	}
	setupLogging(cmd, cfg.Log.Format)
	return context.WithValue(ctx, configKey{}, cfg), nil
}

// workspace bundles what the commands operate on.
type workspace struct {
	cfg     *config.Config
	repo    *gitrepo.Repo
	files   *store.LocalStore
	engine  *fileupdate.Engine
	backups *backup.Store
	audit   *audit.Logger
}

// openWorkspace opens the repository containing --dir.
func openWorkspace(ctx context.Context, cmd *cli.Command) (*workspace, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok {
		return nil, errConfigNotLoaded
	}

	dir, err := filepath.Abs(cmd.String("dir"))
	if err != nil {
		return nil, fmt.Errorf("resolve dir: %w", err)
	}

	logger := slog.Default()
	repo, err := gitrepo.Open(dir,
		gitrepo.WithLogger(logger),
		gitrepo.WithRemote(&gitrepo.RemoteConfig{
			Name:  cfg.Git.Remote,
			URL:   cfg.Git.URL,
			Token: cfg.Git.Token,
			User:  cfg.Git.User,
			Email: cfg.Git.Email,
		}),
	)
	if err != nil {
		return nil, err
	}

	files, err := store.NewLocalStore(repo.Path(), store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	backups, err := backup.NewStore(files, cfg.BackupDir, backup.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	user, _ := repo.GitUser()
	logger.DebugContext(ctx, "workspace opened", "root", repo.Path(), "backups", backups.Dir())

	return &workspace{
		cfg:     cfg,
		repo:    repo,
		files:   files,
		engine:  fileupdate.NewEngine(files, fileupdate.WithLogger(logger)),
		backups: backups,
		audit:   audit.New(logger).WithActor(user),
	}, nil
}

// releaser builds a Releaser; publish wires the GitHub publisher.
func (w *workspace) releaser(cmd *cli.Command, publish bool) (*release.Releaser, error) {
	opts := []release.Option{
		release.WithLogger(slog.Default()),
		release.WithAudit(w.audit),
		release.WithTagPrefix(w.cfg.TagPrefix),
		release.WithCommitPrefix(w.cfg.CommitPrefix),
		release.WithInitialVersion(w.cfg.InitialVersion),
	}

	if publish {
		publisher, err := w.publisher(cmd)
		if err != nil {
			return nil, err
		}
		opts = append(opts, release.WithPublisher(publisher))
	}

	return release.NewReleaser(w.repo, w.files, w.engine, w.backups, opts...), nil
}

// publisher creates the GitHub publisher for the repository.
func (w *workspace) publisher(cmd *cli.Command) (*github.Publisher, error) {
	token := cmd.String("github-token")
	if token == "" {
		token = w.cfg.GitHub.Token
	}

	client, err := github.NewClient(token,
		github.WithBaseURL(w.cfg.GitHub.BaseURL),
		github.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, err
	}

	repo, err := w.githubRepository()
	if err != nil {
		return nil, err
	}
	return client.Publisher(repo), nil
}

// githubRepository returns the configured owner/name, or derives it from the remote URL.
func (w *workspace) githubRepository() (github.Repository, error) {
	if w.cfg.GitHub.Repository != "" {
		return github.ParseRepository(w.cfg.GitHub.Repository)
	}
	url, err := w.repo.RemoteURL()
	if err != nil {
		return github.Repository{}, fmt.Errorf("%w: %w", apperrors.ErrGitHubRepoRequired, err)
	}
	return github.RepositoryFromRemote(url)
}

// releaseOptions reads the options shared by preview and release.
func (w *workspace) releaseOptions(cmd *cli.Command) (release.Options, error) {
	bump, err := parseBump(cmd.String("bump"))
	if err != nil {
		return release.Options{}, err
	}

	files := cmd.StringSlice("file")
	if len(files) == 0 {
		files = w.cfg.Files
	}

	opts := release.Options{
		Bump:          bump,
		Files:         parseFileTargets(files),
		Push:          w.cfg.Push,
		CreateRelease: w.cfg.Release,
	}
	if cmd.IsSet("push") {
		opts.Push = cmd.Bool("push")
	}
	if cmd.IsSet("publish") {
		opts.CreateRelease = cmd.Bool("publish")
	}
	return opts, nil
}
