// Package cmd provides the CLI commands for releasekit.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/release"
	"github.com/fclairamb/releasekit/internal/rollback"
	"github.com/fclairamb/releasekit/internal/version"
	"github.com/fclairamb/releasekit/internal/versioning"
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// bumpFlag forces the bump type.
var bumpFlag = &cli.StringFlag{
	Name:    "bump",
	Usage:   "Bump type (major, minor, patch); must not be lower than what commits require",
	Aliases: []string{"b"},
}

// fileFlag overrides the version files.
var fileFlag = &cli.StringSliceFlag{
	Name:    "file",
	Usage:   "Version file to update, as path or path:key (repeatable)",
	Aliases: []string{"f"},
}

// LogFormat represents the log output format.
type LogFormat string

const (
	// LogFormatText is the human-readable text format (default).
	LogFormatText LogFormat = "text"
	// LogFormatJSON is the JSON-formatted structured logs.
	LogFormatJSON LogFormat = "json"
)

// parseLogFormat returns the log format for a configured value.
func parseLogFormat(val string) (LogFormat, bool) {
	switch strings.ToLower(val) {
	case "json":
		return LogFormatJSON, true
	case "text", "":
		return LogFormatText, true
	default:
		return LogFormatText, false
	}
}

// setupLogging configures the global logger based on the verbose flag and log.format (RLK_LOG_FORMAT).
func setupLogging(cmd *cli.Command, configured string) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	format, valid := parseLogFormat(configured)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	// Warn about invalid format after logger is set up
	if !valid {
		slog.Warn("Invalid RLK_LOG_FORMAT value, using text format", "value", configured)
	}

	if level == slog.LevelDebug {
		slog.Debug("Verbose logging enabled", "releasekit", version.String())
	}
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "releasekit",
		Usage:   "Cut releases from conventional commits and undo them when something breaks",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "Path inside the git repository to release",
				Aliases: []string{"C"},
				Value:   ".",
				Sources: cli.EnvVars("RLK_DIR"),
			},
			&cli.StringFlag{
				Name:    "github-token",
				Usage:   "GitHub API token for publishing releases",
				Sources: cli.EnvVars("RLK_GITHUB_TOKEN", "GITHUB_TOKEN"),
			},
			verboseFlag,
		},
		Commands: []*cli.Command{
			nextCommand(),
			previewCommand(),
			releaseCommand(),
			rollbackCommand(),
			backupsCommand(),
			restoreCommand(),
		},
	}
}

func nextCommand() *cli.Command {
	return &cli.Command{
		Name:   "next",
		Usage:  "Show the next version and its release notes",
		Flags:  []cli.Flag{bumpFlag, verboseFlag},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ws, err := openWorkspace(ctx, cmd)
			if err != nil {
				return err
			}

			bump, err := parseBump(cmd.String("bump"))
			if err != nil {
				return err
			}

			releaser, err := ws.releaser(cmd, false)
			if err != nil {
				return err
			}

			result, err := releaser.NextVersion(ctx, bump)
			if err != nil {
				return err
			}

			displayNextVersion(result)
			return nil
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:   "preview",
		Usage:  "Show the changes a release would make to version files",
		Flags:  []cli.Flag{bumpFlag, fileFlag, verboseFlag},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ws, err := openWorkspace(ctx, cmd)
			if err != nil {
				return err
			}

			opts, err := ws.releaseOptions(cmd)
			if err != nil {
				return err
			}
			opts.DryRun = true
			opts.AllowDirty = true

			releaser, err := ws.releaser(cmd, false)
			if err != nil {
				return err
			}

			result, err := releaser.Run(ctx, opts)
			if err != nil {
				return err
			}

			displayPreview(result)
			return nil
		},
	}
}

func releaseCommand() *cli.Command {
	return &cli.Command{
		Name:  "release",
		Usage: "Bump version files, commit, tag, push and publish a release",
		Flags: []cli.Flag{
			bumpFlag,
			fileFlag,
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "Compute the release and show diffs without changing anything",
				Aliases: []string{"n"},
			},
			&cli.BoolFlag{
				Name:  "push",
				Usage: "Push the release commit and tag (default from config)",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Create a GitHub release (default from config)",
			},
			&cli.BoolFlag{
				Name:  "allow-dirty",
				Usage: "Release even if tracked files have uncommitted changes",
			},
			verboseFlag,
		},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ws, err := openWorkspace(ctx, cmd)
			if err != nil {
				return err
			}

			opts, err := ws.releaseOptions(cmd)
			if err != nil {
				return err
			}
			opts.DryRun = cmd.Bool("dry-run")
			opts.AllowDirty = cmd.Bool("allow-dirty")

			releaser, err := ws.releaser(cmd, opts.CreateRelease && !opts.DryRun)
			if err != nil {
				return err
			}

			result, err := releaser.Run(ctx, opts)
			if err != nil {
				var relErr *release.Error
				if errors.As(err, &relErr) {
					displayReleaseFailure(relErr)
				}
				return err
			}

			displayReleaseResult(result)
			return nil
		},
	}
}

func rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:      "rollback",
		Usage:     "Undo a release: delete its tag and reset the release commit",
		ArgsUsage: "[version]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "version",
				Usage: "Version to roll back (inferred from the last commit when omitted)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Usage:   "Do not ask for confirmation",
				Aliases: []string{"y"},
			},
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Also delete the tag on the remote",
			},
			verboseFlag,
		},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ws, err := openWorkspace(ctx, cmd)
			if err != nil {
				return err
			}

			ver := cmd.String("version")
			if ver == "" {
				ver = cmd.Args().First()
			}

			manager := rollback.NewManager(ws.repo,
				rollback.WithLogger(slog.Default()),
				rollback.WithPrompter(rollback.NewTerminalPrompter()),
				rollback.WithAudit(ws.audit),
				rollback.WithTagPrefix(ws.cfg.TagPrefix),
				rollback.WithCommitPrefix(ws.cfg.CommitPrefix),
			)

			report, err := manager.Rollback(ctx, rollback.Options{
				Version:     ver,
				AutoConfirm: cmd.Bool("yes"),
				Interactive: rollback.IsTerminal(),
				Remote:      cmd.Bool("remote"),
			})
			if err != nil {
				return err
			}

			displayRollbackReport(report)
			return nil
		},
	}
}

func backupsCommand() *cli.Command {
	return &cli.Command{
		Name:   "backups",
		Usage:  "List backups retained by failed releases",
		Flags:  []cli.Flag{verboseFlag},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ws, err := openWorkspace(ctx, cmd)
			if err != nil {
				return err
			}

			sets, err := ws.backups.List(ctx)
			if err != nil {
				return err
			}

			displayBackups(sets, ws.backups.Dir())
			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore the files of a retained backup",
		ArgsUsage: "<backup-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "delete",
				Usage: "Delete the backup once restored",
			},
			verboseFlag,
		},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return apperrors.ErrBackupIDRequired
			}

			ws, err := openWorkspace(ctx, cmd)
			if err != nil {
				return err
			}

			set, err := ws.backups.Load(ctx, id)
			if err != nil {
				return err
			}
			if err := ws.backups.RestoreBackup(ctx, id); err != nil {
				return err
			}
			if cmd.Bool("delete") {
				ws.backups.CleanupBackup(ctx, id)
			}

			displayRestored(set)
			return nil
		},
	}
}

// parseBump parses an optional bump flag.
func parseBump(value string) (*versioning.Severity, error) {
	if value == "" {
		return nil, nil //nolint:nilnil // no explicit bump
	}
	bump, err := versioning.ParseBump(value)
	if err != nil {
		return nil, fmt.Errorf("--bump: %w", err)
	}
	return &bump, nil
}

// parseFileTargets turns "path" or "path:key" entries into targets.
func parseFileTargets(entries []string) []release.FileTarget {
	targets := make([]release.FileTarget, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		path, key, _ := strings.Cut(entry, ":")
		targets = append(targets, release.FileTarget{Path: path, Key: key})
	}
	return targets
}
