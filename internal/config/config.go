// Package config loads worldsync settings.
//
// Settings come from, in order of precedence: command-line flags bound to
// the viper instance, WORLDSYNC_* environment variables, an optional
// worldsync.yaml file, and built-in defaults. The config file is read from
// $WORLDSYNC_CONFIG when set, otherwise from the repository root or
// $HOME/.worldsync.
//
// The resulting Config is an explicit value handed to every component.
// Nothing downstream reads the environment or the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/danieljhkim/worldsync/internal/dataset"
	"github.com/danieljhkim/worldsync/internal/fsops"
	"github.com/danieljhkim/worldsync/internal/gitx"
	"github.com/danieljhkim/worldsync/internal/repo"
)

// Viper keys.
const (
	KeyWorld       = "world"
	KeyRepoDir     = "repo_dir"
	KeyLiveDir     = "live_dir"
	KeyMarker      = "marker"
	KeyRemote      = "remote"
	KeyBranch      = "branch"
	KeyBackend     = "backend"
	KeyLogLevel    = "log_level"
	KeyAuthorName  = "author_name"
	KeyAuthorEmail = "author_email"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "WORLDSYNC"

	// EnvConfigFile names an explicit config file.
	EnvConfigFile = "WORLDSYNC_CONFIG"

	// FileName is the config file name without extension.
	FileName = "worldsync"

	// DefaultWorld is the world name used when none is configured.
	DefaultWorld = "MyWorld"

	// DefaultLiveDir is where the game keeps its worlds.
	DefaultLiveDir = "~/AppData/LocalLow/IronGate/Valheim/worlds"

	// DefaultMarker is the lock marker file name inside the tracked folder.
	DefaultMarker = "lock"
)

// ErrInvalidConfig is returned when a loaded configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything a worldsync session needs.
type Config struct {
	// World is the dataset name; members are World and World.*.
	World string `mapstructure:"world"`

	// RepoDir is the working copy root of the shared repository.
	RepoDir string `mapstructure:"repo_dir"`

	// LiveDir is the folder the game loads worlds from.
	LiveDir string `mapstructure:"live_dir"`

	// Marker is the lock file name, relative to the tracked folder.
	Marker string `mapstructure:"marker"`

	Remote  string `mapstructure:"remote"`
	Branch  string `mapstructure:"branch"`
	Backend string `mapstructure:"backend"`

	LogLevel string `mapstructure:"log_level"`

	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyWorld, DefaultWorld)
	v.SetDefault(KeyRepoDir, "")
	v.SetDefault(KeyLiveDir, DefaultLiveDir)
	v.SetDefault(KeyMarker, DefaultMarker)
	v.SetDefault(KeyRemote, repo.DefaultRemoteName)
	v.SetDefault(KeyBranch, repo.DefaultBranch)
	v.SetDefault(KeyBackend, repo.BackendGit)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAuthorName, "")
	v.SetDefault(KeyAuthorEmail, "")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. configFile overrides the search path when
// non-empty. When repo_dir is unset it is discovered from cwd.
func Load(v *viper.Viper, configFile, cwd string, repos gitx.GitRepo) (*Config, error) {
	repoDir := v.GetString(KeyRepoDir)
	var discoverErr error
	if repoDir == "" {
		repoDir, discoverErr = repos.Discover(cwd)
	}

	if configFile == "" {
		configFile = os.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if repoDir != "" {
			v.AddConfigPath(repoDir)
		}
		v.AddConfigPath("$HOME/.worldsync")
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.RepoDir == "" {
		if discoverErr != nil {
			return nil, fmt.Errorf("failed to locate the shared repository (set %s or --repo): %w", KeyRepoDir, discoverErr)
		}
		cfg.RepoDir = repoDir
	}
	if cfg.AuthorName == "" || cfg.AuthorEmail == "" {
		name, email := repos.Identity(cfg.RepoDir)
		if cfg.AuthorName == "" {
			cfg.AuthorName = name
		}
		if cfg.AuthorEmail == "" {
			cfg.AuthorEmail = email
		}
	}

	var err error
	if cfg.RepoDir, err = absPath(cfg.RepoDir); err != nil {
		return nil, err
	}
	if cfg.LiveDir, err = absPath(cfg.LiveDir); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := fsops.ValidateIdentifier(c.World); err != nil {
		return fmt.Errorf("%w: world: %v", ErrInvalidConfig, err)
	}
	if err := fsops.ValidateIdentifier(c.Marker); err != nil {
		return fmt.Errorf("%w: marker: %v", ErrInvalidConfig, err)
	}
	if dataset.IsMember(c.Marker, c.World) {
		return fmt.Errorf("%w: marker %q would be taken for a world file", ErrInvalidConfig, c.Marker)
	}
	if c.RepoDir == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, KeyRepoDir)
	}
	if c.LiveDir == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, KeyLiveDir)
	}
	if err := repo.ValidateRef(c.Remote, "remote"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := repo.ValidateRef(c.Branch, "branch"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Backend {
	case repo.BackendGit, repo.BackendGoGit:
	default:
		return fmt.Errorf("%w: backend %q (want %s or %s)", ErrInvalidConfig, c.Backend, repo.BackendGit, repo.BackendGoGit)
	}
	if filepath.Clean(c.TrackedDir()) == filepath.Clean(c.LiveDir) {
		return fmt.Errorf("%w: live folder must differ from the tracked folder", ErrInvalidConfig)
	}
	return nil
}

// TrackedDir is the folder inside the repository holding the tracked world.
func (c *Config) TrackedDir() string {
	return filepath.Join(c.RepoDir, c.World)
}

// MarkerPath is the absolute path of the lock marker.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.TrackedDir(), c.Marker)
}

// RepoOptions returns the repository client options for this configuration.
func (c *Config) RepoOptions() repo.Options {
	return repo.Options{
		Backend: c.Backend,
		Root:    c.RepoDir,
		Remote:  c.Remote,
		Branch:  c.Branch,
		Author:  repo.Author{Name: c.AuthorName, Email: c.AuthorEmail},
	}
}

// absPath expands a leading ~ and makes path absolute.
func absPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}
