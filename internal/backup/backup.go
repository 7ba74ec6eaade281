// Package backup moves an existing live world out of the way before a newer
// copy from the repository is handed to the game.
//
// Backups are the only data-loss guard in worldsync: the live world is never
// overwritten in place, it is relocated into a timestamped folder next to it.
// Backup folders are never deleted by worldsync.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danieljhkim/worldsync/internal/clock"
	"github.com/danieljhkim/worldsync/internal/dataset"
	"github.com/danieljhkim/worldsync/internal/fsops"
)

// StampLayout is the timestamp format used in backup folder names (DDMMYYYY-HHMMSS).
const StampLayout = "02012006-150405"

// dirPrefix starts every backup folder name.
const dirPrefix = "backup_"

// Outcome describes what BackupIfPresent did.
type Outcome int

const (
	// NoneFound means there was no live world to protect.
	NoneFound Outcome = iota

	// Moved means the live world was moved into a new backup folder.
	Moved

	// CountMismatch means the live folder holds a partial or unexpected
	// world. Nothing was touched; the caller decides whether to abort.
	CountMismatch
)

// String returns a human-readable outcome.
func (o Outcome) String() string {
	switch o {
	case NoneFound:
		return "none-found"
	case Moved:
		return "moved"
	case CountMismatch:
		return "count-mismatch"
	default:
		return "unknown"
	}
}

// Result reports the outcome of a backup attempt.
type Result struct {
	Outcome Outcome

	// Dir is the backup folder. Only set when Outcome is Moved.
	Dir string

	// Count is the number of live files that matched the world name.
	Count int
}

// Manager creates and lists world backups.
type Manager struct {
	fs     fsops.FS
	clock  clock.Clock
	logger *zap.Logger
}

// NewManager creates a new Manager.
func NewManager(fs fsops.FS, clk clock.Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{fs: fs, clock: clk, logger: logger}
}

// BackupIfPresent moves the world called name out of liveDir into a fresh
// backup folder under liveDir, if a complete world is there.
func (m *Manager) BackupIfPresent(name, liveDir string) (*Result, error) {
	members, err := dataset.Members(m.fs, liveDir, name)
	if err != nil {
		return nil, fmt.Errorf("failed to scan live folder: %w", err)
	}

	switch len(members) {
	case 0:
		m.logger.Info("no live world to back up", zap.String("world", name), zap.String("dir", liveDir))
		return &Result{Outcome: NoneFound}, nil
	case dataset.MemberCount:
	default:
		m.logger.Warn("unexpected number of live world files",
			zap.String("world", name),
			zap.String("dir", liveDir),
			zap.Int("count", len(members)),
		)
		return &Result{Outcome: CountMismatch, Count: len(members)}, nil
	}

	dir, err := m.createDir(name, liveDir)
	if err != nil {
		return nil, err
	}

	if err := dataset.Move(m.fs, members, dir); err != nil {
		return nil, fmt.Errorf("failed to move live world into %s: %w", dir, err)
	}

	m.logger.Info("backed up live world", zap.String("world", name), zap.String("backup", dir))
	return &Result{Outcome: Moved, Dir: dir, Count: len(members)}, nil
}

// createDir creates a backup folder that did not exist before.
func (m *Manager) createDir(name, liveDir string) (string, error) {
	base := filepath.Join(liveDir, dirPrefix+name+"_"+m.clock.Now().Format(StampLayout))

	dir := base
	for i := 1; ; i++ {
		err := m.fs.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		exists, statErr := m.fs.Exists(dir)
		if statErr != nil || !exists {
			return "", fmt.Errorf("failed to create backup folder: %w", err)
		}
		dir = fmt.Sprintf("%s-%d", base, i)
	}
}

// List returns the backup folders for the world called name, newest first.
func (m *Manager) List(name, liveDir string) ([]string, error) {
	infos, err := m.fs.ReadDir(liveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read live folder: %w", err)
	}

	prefix := dirPrefix + name + "_"
	type entry struct {
		path  string
		taken time.Time
		seq   int
	}
	var entries []entry
	for _, info := range infos {
		if !info.IsDir() || !strings.HasPrefix(info.Name(), prefix) {
			continue
		}
		taken, seq, ok := parseStamp(strings.TrimPrefix(info.Name(), prefix))
		if !ok {
			continue
		}
		entries = append(entries, entry{path: filepath.Join(liveDir, info.Name()), taken: taken, seq: seq})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].taken.Equal(entries[j].taken) {
			return entries[i].taken.After(entries[j].taken)
		}
		return entries[i].seq > entries[j].seq
	})

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		dirs = append(dirs, e.path)
	}
	return dirs, nil
}

// parseStamp splits "DDMMYYYY-HHMMSS[-N]" into its time and sequence number.
func parseStamp(s string) (time.Time, int, bool) {
	if len(s) < len(StampLayout) {
		return time.Time{}, 0, false
	}
	taken, err := time.ParseInLocation(StampLayout, s[:len(StampLayout)], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}

	rest := s[len(StampLayout):]
	if rest == "" {
		return taken, 0, true
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(rest, "-"))
	if err != nil || !strings.HasPrefix(rest, "-") {
		return time.Time{}, 0, false
	}
	return taken, seq, true
}
