package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danieljhkim/worldsync/internal/backup"
	"github.com/danieljhkim/worldsync/internal/clock"
	"github.com/danieljhkim/worldsync/internal/config"
	"github.com/danieljhkim/worldsync/internal/fsops"
	"github.com/danieljhkim/worldsync/internal/gitx"
	"github.com/danieljhkim/worldsync/internal/hash"
	"github.com/danieljhkim/worldsync/internal/lock"
	"github.com/danieljhkim/worldsync/internal/logging"
	"github.com/danieljhkim/worldsync/internal/repo"
)

// app bundles the real implementations every command works with.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	fs      fsops.FS
	repo    repo.Client
	hasher  hash.Hasher
	backups *backup.Manager
	locker  *lock.Manager
}

// newApp loads configuration and wires the real implementations.
func newApp(cmd *cobra.Command) (*app, error) {
	v := config.NewViper()
	flags := cmd.Root().PersistentFlags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg, err := config.Load(v, cfgFile, cwd, gitx.NewRealGitRepo())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", zap.String("path", used))
	}

	client, err := repo.Open(cfg.RepoOptions(), logger)
	if err != nil {
		return nil, err
	}

	fs := fsops.NewRealFS()
	return &app{
		cfg:     cfg,
		logger:  logger,
		fs:      fs,
		repo:    client,
		hasher:  hash.NewSHA256Hasher(fs),
		backups: backup.NewManager(fs, &clock.RealClock{}, logger),
		locker:  lock.NewManager(client, fs, cfg.World, cfg.MarkerPath(), logger),
	}, nil
}

// close flushes buffered log entries.
func (a *app) close() {
	_ = a.logger.Sync()
}

// formatJSON formats a value as JSON.
func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatError formats an error for display.
func formatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

// FormatError is formatError for callers outside the package.
func FormatError(err error) string {
	return formatError(err)
}

// outputJSON writes a value as JSON to w.
func outputJSON(w io.Writer, v interface{}) error {
	s, err := formatJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}
