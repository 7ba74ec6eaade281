package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// GoGit is a Client built on go-git. It needs no git executable, which
// makes it usable on hosts where only the repository folder was copied.
type GoGit struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string
	remote   string
	branch   string
	author   Author
	logger   *zap.Logger

	// pending holds paths committed locally but not yet pushed.
	pending map[string]struct{}
}

// OpenGoGit opens the working copy at root.
func OpenGoGit(root, remote, branch string, author Author, logger *zap.Logger) (*GoGit, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", root, err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	return &GoGit{
		repo:     r,
		worktree: wt,
		root:     root,
		remote:   remote,
		branch:   branch,
		author:   author,
		logger:   logger,
		pending:  make(map[string]struct{}),
	}, nil
}

// Pull fast-forwards the working copy to the remote branch.
func (g *GoGit) Pull(ctx context.Context) error {
	g.logger.Debug("pulling", zap.String("remote", g.remote), zap.String("branch", g.branch))

	err := g.worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    g.remote,
		ReferenceName: plumbing.NewBranchReferenceName(g.branch),
		SingleBranch:  true,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return fmt.Errorf("failed to pull: %w", ErrNotFastForward)
	default:
		return fmt.Errorf("failed to pull: %w", err)
	}
}

// Commit stages paths and creates a commit if anything changed.
func (g *GoGit) Commit(ctx context.Context, message string, paths []string) error {
	var staged []string
	for _, path := range paths {
		rel, err := g.relPath(path)
		if err != nil {
			return err
		}

		if exists(g.worktree.Filesystem, rel) {
			if _, err := g.worktree.Add(rel); err != nil {
				return fmt.Errorf("failed to stage %s: %w", rel, err)
			}
		} else if _, err := g.worktree.Remove(rel); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
			return fmt.Errorf("failed to stage removal of %s: %w", rel, err)
		}
		staged = append(staged, rel)
	}

	status, err := g.worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to check staged changes: %w", err)
	}
	if !hasStagedChanges(status) {
		g.logger.Info("nothing to commit", zap.String("message", message))
		return nil
	}

	_, err = g.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.author.Name,
			Email: g.author.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("failed to commit: %w", err)
	}

	for _, rel := range staged {
		g.pending[rel] = struct{}{}
	}
	return nil
}

// Push publishes the branch to the remote.
func (g *GoGit) Push(ctx context.Context) error {
	ref := plumbing.NewBranchReferenceName(g.branch)
	err := g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: g.remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		g.pending = make(map[string]struct{})
		return nil
	case isPushRejection(err):
		return fmt.Errorf("failed to push: %w: %v", ErrNotFastForward, err)
	default:
		return fmt.Errorf("failed to push: %w", err)
	}
}

// Discard drops the last unpublished commit.
func (g *GoGit) Discard(ctx context.Context) error {
	head, err := g.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	remoteRef, err := g.repo.Reference(plumbing.NewRemoteReferenceName(g.remote, g.branch), true)
	if err == nil && remoteRef.Hash() == head.Hash() {
		return ErrNothingToDiscard
	}

	commit, err := g.repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", head.Hash(), err)
	}
	if commit.NumParents() == 0 {
		return ErrNothingToDiscard
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return fmt.Errorf("failed to load parent of %s: %w", head.Hash(), err)
	}

	if err := g.worktree.Reset(&git.ResetOptions{Commit: parent.Hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}

	tree, err := parent.Tree()
	if err != nil {
		return fmt.Errorf("failed to load tree: %w", err)
	}

	// Files the dropped commit added must not linger as untracked files.
	for rel := range g.pending {
		if _, err := tree.File(rel); errors.Is(err, object.ErrFileNotFound) {
			if err := g.worktree.Filesystem.Remove(rel); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", rel, err)
			}
			delete(g.pending, rel)
		}
	}
	return nil
}

// relPath converts an absolute path into a slash-separated worktree path.
func (g *GoGit) relPath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path), nil
	}
	rel, err := filepath.Rel(g.root, path)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is outside repository", path)
	}
	return filepath.ToSlash(rel), nil
}

func exists(fs billy.Basic, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

func hasStagedChanges(status git.Status) bool {
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true
		}
	}
	return false
}

// isPushRejection reports whether go-git refused a push because the remote
// moved on. go-git reports this in several shapes depending on whether the
// remote head is known locally.
func isPushRejection(err error) bool {
	if errors.Is(err, git.ErrNonFastForwardUpdate) ||
		errors.Is(err, git.ErrForceNeeded) ||
		errors.Is(err, plumbing.ErrObjectNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "non-fast-forward")
}
