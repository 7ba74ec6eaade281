package gitx

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

// Fallback commit identity when git config has none.
const (
	DefaultAuthorName  = "worldsync"
	DefaultAuthorEmail = "worldsync@localhost"
)

// ErrNotRepository is returned when no enclosing git repository exists.
var ErrNotRepository = errors.New("not in a git repository")

// GitRepo provides an abstraction for locating the shared repository.
type GitRepo interface {
	// Discover finds the git repository root starting from cwd.
	Discover(cwd string) (root string, err error)

	// Identity returns the commit author configured for the repository.
	Identity(root string) (name, email string)
}

// RealGitRepo implements GitRepo with go-git.
type RealGitRepo struct{}

// NewRealGitRepo creates a new RealGitRepo.
func NewRealGitRepo() *RealGitRepo {
	return &RealGitRepo{}
}

// Discover walks up from cwd to the directory holding .git.
func (g *RealGitRepo) Discover(cwd string) (string, error) {
	absPath, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	r, err := git.PlainOpenWithOptions(absPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, absPath)
		}
		return "", fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := r.Worktree()
	if err != nil {
		// bare repositories have no place for a world
		return "", fmt.Errorf("%w: %s has no working tree", ErrNotRepository, absPath)
	}
	return wt.Filesystem.Root(), nil
}

// Identity reads user.name and user.email from local and global git config.
func (g *RealGitRepo) Identity(root string) (string, string) {
	name, email := DefaultAuthorName, DefaultAuthorEmail

	r, err := git.PlainOpen(root)
	if err != nil {
		return name, email
	}
	cfg, err := r.ConfigScoped(config.GlobalScope)
	if err != nil {
		return name, email
	}

	if cfg.User.Name != "" {
		name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		email = cfg.User.Email
	}
	return name, email
}

// FakeGitRepo implements GitRepo with predetermined values for testing.
type FakeGitRepo struct {
	root  string
	name  string
	email string
	err   error
}

// NewFakeGitRepo creates a new FakeGitRepo rooted at root.
func NewFakeGitRepo(root string) *FakeGitRepo {
	return &FakeGitRepo{root: root, name: DefaultAuthorName, email: DefaultAuthorEmail}
}

// SetError sets an error to be returned by Discover.
func (g *FakeGitRepo) SetError(err error) {
	g.err = err
}

// SetIdentity sets the author returned by Identity.
func (g *FakeGitRepo) SetIdentity(name, email string) {
	g.name, g.email = name, email
}

// Discover returns the predetermined root.
func (g *FakeGitRepo) Discover(cwd string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.root, nil
}

// Identity returns the predetermined author.
func (g *FakeGitRepo) Identity(root string) (string, string) {
	return g.name, g.email
}
