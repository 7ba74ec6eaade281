//go:build integration
// +build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danieljhkim/worldsync/internal/backup"
	"github.com/danieljhkim/worldsync/internal/clock"
	"github.com/danieljhkim/worldsync/internal/config"
	"github.com/danieljhkim/worldsync/internal/fsops"
	"github.com/danieljhkim/worldsync/internal/lock"
	"github.com/danieljhkim/worldsync/internal/repo"
	"github.com/danieljhkim/worldsync/internal/session"
)

var worldFiles = []string{"MyWorld.db", "MyWorld.db.old", "MyWorld.fwl", "MyWorld.fwl.old"}

// git runs the git executable in dir and fails the test on error.
func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(string(out))
}

// setupRemote creates a bare repository on main holding a world tagged v1.
func setupRemote(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_AUTHOR_NAME", "Test User")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test User")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")

	remote := filepath.Join(t.TempDir(), "remote.git")
	git(t, t.TempDir(), "init", "--bare", "-b", "main", remote)

	seed := cloneRemote(t, remote)
	writeWorld(t, filepath.Join(seed, "MyWorld"), "v1")
	git(t, seed, "add", "MyWorld")
	git(t, seed, "commit", "-m", "Initial commit")
	git(t, seed, "push", "origin", "main")
	return remote
}

func cloneRemote(t *testing.T, remote string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clone")
	git(t, filepath.Dir(dir), "clone", "-b", "main", remote, dir)
	return dir
}

func writeWorld(t *testing.T, dir, tag string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range worldFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(tag+":"+name), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// host is one machine taking part in the rotation.
type host struct {
	cfg    *config.Config
	locker *lock.Manager
	orch   *session.Orchestrator
}

func newHost(t *testing.T, remote string) *host {
	t.Helper()
	cfg := &config.Config{
		World:   "MyWorld",
		RepoDir: cloneRemote(t, remote),
		LiveDir: filepath.Join(t.TempDir(), "worlds"),
		Marker:  config.DefaultMarker,
		Remote:  repo.DefaultRemoteName,
		Branch:  repo.DefaultBranch,
		Backend: repo.BackendGit,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	client, err := repo.Open(cfg.RepoOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	fs := fsops.NewRealFS()
	backups := backup.NewManager(fs, &clock.RealClock{}, nil)
	locker := lock.NewManager(client, fs, cfg.World, cfg.MarkerPath(), nil)

	return &host{
		cfg:    cfg,
		locker: locker,
		orch:   session.New(cfg, client, fs, backups, locker, nil, session.NopReporter{}),
	}
}
