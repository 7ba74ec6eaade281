// Package repo wraps the shared git repository that carries the world and
// the lock marker between hosts.
//
// Every Client method maps to one version-control step and reports whether
// it succeeded. Nothing is retried. Three implementations exist:
//   - GitCLI runs the git executable
//   - GoGit uses go-git and needs no git installation
//   - MemClient simulates a fast-forward-only remote in memory for tests
package repo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// DefaultRemoteName is the default remote to pull from and push to.
	DefaultRemoteName = "origin"

	// DefaultBranch is the default integration branch.
	DefaultBranch = "main"

	// BackendGit selects GitCLI.
	BackendGit = "git"

	// BackendGoGit selects GoGit.
	BackendGoGit = "go-git"
)

var (
	// ErrNotFastForward is returned when a push or pull cannot be applied as
	// a fast-forward because another host published first.
	ErrNotFastForward = errors.New("not a fast-forward")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown repository backend")

	// ErrNothingToDiscard is returned by Discard when HEAD is already on the
	// remote branch.
	ErrNothingToDiscard = errors.New("no unpublished commit to discard")
)

// Client is the narrow view of the shared repository used by worldsync.
type Client interface {
	// Pull brings the working copy up to date with the remote branch.
	// It only fast-forwards. Already up to date is not an error.
	Pull(ctx context.Context) error

	// Commit stages paths and records them with message. Paths that no
	// longer exist are staged as removals. Nothing to commit is not an error.
	Commit(ctx context.Context, message string, paths []string) error

	// Push publishes local commits. A rejected push wraps ErrNotFastForward.
	Push(ctx context.Context) error

	// Discard drops the most recent commit, which must not have been
	// published, and restores the working copy to its parent. Earlier
	// unpublished commits are kept. It never contacts the remote.
	Discard(ctx context.Context) error
}

// Options configures Open.
type Options struct {
	// Backend is BackendGit or BackendGoGit.
	Backend string

	// Root is the working copy root.
	Root string

	// Remote is the remote name (e.g., "origin").
	Remote string

	// Branch is the integration branch (e.g., "main").
	Branch string

	// Author signs commits made by the go-git backend.
	Author Author
}

// Author identifies the committer for backends that do not read git config.
type Author struct {
	Name  string
	Email string
}

// Open returns the Client for opts.Backend.
func Open(opts Options, logger *zap.Logger) (Client, error) {
	if opts.Remote == "" {
		opts.Remote = DefaultRemoteName
	}
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}

	switch opts.Backend {
	case "", BackendGit:
		return NewGitCLI(opts.Root, opts.Remote, opts.Branch, logger), nil
	case BackendGoGit:
		return OpenGoGit(opts.Root, opts.Remote, opts.Branch, opts.Author, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
