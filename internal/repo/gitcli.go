package repo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// GitCLI is the production Client that runs the git executable.
type GitCLI struct {
	root   string
	remote string
	branch string
	logger *zap.Logger
}

// NewGitCLI creates a GitCLI for the working copy at root.
func NewGitCLI(root, remote, branch string, logger *zap.Logger) *GitCLI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitCLI{root: root, remote: remote, branch: branch, logger: logger}
}

// runGit executes a git command in the working copy root.
func (g *GitCLI) runGit(ctx context.Context, args ...string) (string, error) {
	g.logger.Debug("running git", zap.Strings("args", args), zap.String("dir", g.root))

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\nstderr: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Pull fast-forwards the working copy to the remote branch.
func (g *GitCLI) Pull(ctx context.Context) error {
	if _, err := g.runGit(ctx, "pull", "--ff-only", g.remote, g.branch); err != nil {
		if isRejection(err) {
			return fmt.Errorf("failed to pull: %w: %v", ErrNotFastForward, err)
		}
		return fmt.Errorf("failed to pull: %w", err)
	}
	return nil
}

// Commit stages paths and creates a commit if anything changed.
func (g *GitCLI) Commit(ctx context.Context, message string, paths []string) error {
	for _, path := range paths {
		if _, err := os.Lstat(path); err == nil {
			// -f so a stray .gitignore cannot hide world files
			if _, err := g.runGit(ctx, "add", "-f", "--", path); err != nil {
				return fmt.Errorf("failed to stage %s: %w", path, err)
			}
			continue
		}
		if _, err := g.runGit(ctx, "rm", "--cached", "--ignore-unmatch", "-q", "--", path); err != nil {
			return fmt.Errorf("failed to stage removal of %s: %w", path, err)
		}
	}

	staged, err := g.runGit(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return fmt.Errorf("failed to check staged changes: %w", err)
	}
	if staged == "" {
		g.logger.Info("nothing to commit", zap.String("message", message))
		return nil
	}

	if _, err := g.runGit(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Push publishes the branch to the remote.
func (g *GitCLI) Push(ctx context.Context) error {
	if _, err := g.runGit(ctx, "push", "-u", g.remote, g.branch); err != nil {
		if isRejection(err) {
			return fmt.Errorf("failed to push: %w: %v", ErrNotFastForward, err)
		}
		return fmt.Errorf("failed to push: %w", err)
	}
	return nil
}

// Discard drops the last unpublished commit.
func (g *GitCLI) Discard(ctx context.Context) error {
	ahead, err := g.runGit(ctx, "rev-list", "--count", g.remote+"/"+g.branch+"..HEAD")
	if err != nil {
		return fmt.Errorf("failed to count unpublished commits: %w", err)
	}
	if ahead == "0" {
		return ErrNothingToDiscard
	}
	if _, err := g.runGit(ctx, "reset", "--hard", "HEAD~1"); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	return nil
}

// isRejection reports whether git refused an update because the histories diverged.
func isRejection(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"[rejected]", "non-fast-forward", "fetch first", "Not possible to fast-forward", "diverging"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// ValidateRef checks a remote or branch name before it reaches a git command line.
func ValidateRef(ref, kind string) error {
	if ref == "" {
		return fmt.Errorf("%s name is empty", kind)
	}
	if !refPattern.MatchString(ref) || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid %s name %q", kind, ref)
	}
	return nil
}
