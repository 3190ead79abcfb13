// Package config loads releasekit settings from defaults, an optional
// .releasekit.yaml file and RLK_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// FileName is the project configuration file, relative to the repository root.
	FileName = ".releasekit.yaml"
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "RLK_"
)

// Config holds every setting.
type Config struct {
	TagPrefix      string       `koanf:"tag_prefix"`
	CommitPrefix   string       `koanf:"commit_prefix"`
	InitialVersion string       `koanf:"initial_version"`
	BackupDir      string       `koanf:"backup_dir"`
	Files          []string     `koanf:"files"`
	Push           bool         `koanf:"push"`
	Release        bool         `koanf:"release"`
	Git            GitConfig    `koanf:"git"`
	GitHub         GitHubConfig `koanf:"github"`
	Log            LogConfig    `koanf:"log"`
}

// GitConfig configures the git remote.
type GitConfig struct {
	Remote string `koanf:"remote"`
	URL    string `koanf:"url"`
	Token  string `koanf:"token"`
	User   string `koanf:"user"`
	Email  string `koanf:"email"`
}

// GitHubConfig configures release publication.
type GitHubConfig struct {
	Token      string `koanf:"token"`
	Repository string `koanf:"repository"`
	BaseURL    string `koanf:"base_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
}

// defaults are loaded first.
var defaults = map[string]any{
	"tag_prefix":      "v",
	"commit_prefix":   "chore(release):",
	"initial_version": "0.0.0",
	"backup_dir":      ".releasekit/backups",
	"push":            true,
	"release":         false,
	"git.remote":      "origin",
	"github.base_url": "https://api.github.com",
	"log.format":      "text",
}

// envKeys maps environment variables to configuration keys.
var envKeys = map[string]string{
	"RLK_TAG_PREFIX":      "tag_prefix",
	"RLK_COMMIT_PREFIX":   "commit_prefix",
	"RLK_INITIAL_VERSION": "initial_version",
	"RLK_BACKUP_DIR":      "backup_dir",
	"RLK_FILES":           "files",
	"RLK_PUSH":            "push",
	"RLK_RELEASE":         "release",
	"RLK_GIT_REMOTE":      "git.remote",
	"RLK_GIT_URL":         "git.url",
	"RLK_GIT_TOKEN":       "git.token",
	"RLK_GIT_USER":        "git.user",
	"RLK_GIT_EMAIL":       "git.email",
	"RLK_GITHUB_TOKEN":    "github.token",
	"RLK_GITHUB_REPO":     "github.repository",
	"RLK_GITHUB_URL":      "github.base_url",
	"RLK_LOG_FORMAT":      "log.format",
}

// Load reads the configuration for the repository at root. A missing
// configuration file is not an error.
func Load(root string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", FileName, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", FileName, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// envValue maps a variable to its key. Unknown variables are skipped.
func envValue(name, value string) (string, any) {
	key, ok := envKeys[name]
	if !ok {
		return "", nil
	}
	if key == "files" {
		var files []string
		for f := range strings.SplitSeq(value, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
		return key, files
	}
	return key, value
}
