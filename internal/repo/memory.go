package repo

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/danieljhkim/worldsync/internal/fsops"
)

// MemRemote is an in-memory remote with a single linear history. It accepts
// a push only when the pusher's base is the current head, the same
// fast-forward-only rule a git remote enforces.
type MemRemote struct {
	mu      sync.Mutex
	history []snapshot
}

// snapshot maps slash-separated paths to file contents.
type snapshot map[string][]byte

// NewMemRemote creates a remote whose first commit holds files.
func NewMemRemote(files map[string][]byte) *MemRemote {
	return &MemRemote{history: []snapshot{copySnapshot(files)}}
}

// Head returns the number of commits and a copy of the latest tree.
func (r *MemRemote) Head() (int, map[string][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history), copySnapshot(r.history[len(r.history)-1])
}

// Clone checks the remote head out under root and returns a client for it.
func (r *MemRemote) Clone(fs fsops.FS, root string) (*MemClient, error) {
	c := &MemClient{remote: r, fs: fs, root: root, tree: snapshot{}}
	if err := c.checkout(c.remoteHead()); err != nil {
		return nil, err
	}
	return c, nil
}

// MemClient is a Client working against a MemRemote. It records every call
// so tests can assert the protocol order, and each step can be made to fail.
type MemClient struct {
	remote *MemRemote
	fs     fsops.FS
	root   string

	// base is the remote history length this clone last synced with.
	base int
	tree snapshot

	// ahead counts local commits not yet pushed; parents holds the tree each
	// of them was made on.
	ahead   int
	parents []snapshot

	Calls    []string
	Messages []string

	// Configurable failures
	PullErr    error
	CommitErr  error
	PushErr    error
	DiscardErr error
}

// Pull fast-forwards to the remote head.
func (c *MemClient) Pull(ctx context.Context) error {
	c.Calls = append(c.Calls, "pull")
	if c.PullErr != nil {
		return c.PullErr
	}

	n, head := c.remoteHead()
	if n == c.base {
		return nil
	}
	if c.ahead > 0 {
		return fmt.Errorf("failed to pull: %w", ErrNotFastForward)
	}
	return c.checkout(n, head)
}

// Commit records the current content of paths.
func (c *MemClient) Commit(ctx context.Context, message string, paths []string) error {
	c.Calls = append(c.Calls, "commit")
	if c.CommitErr != nil {
		return c.CommitErr
	}

	next := copySnapshot(c.tree)
	for _, path := range paths {
		rel, err := c.rel(path)
		if err != nil {
			return err
		}
		exists, err := c.fs.Exists(path)
		if err != nil {
			return err
		}
		if !exists {
			delete(next, rel)
			continue
		}
		data, err := c.fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
		next[rel] = data
	}

	if equalSnapshots(next, c.tree) {
		return nil
	}

	c.parents = append(c.parents, c.tree)
	c.tree = next
	c.ahead++
	c.Messages = append(c.Messages, message)
	return nil
}

// Push appends the local tree to the remote if nobody pushed in between.
func (c *MemClient) Push(ctx context.Context) error {
	c.Calls = append(c.Calls, "push")
	if c.PushErr != nil {
		return c.PushErr
	}
	if c.ahead == 0 {
		return nil
	}

	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()

	if len(c.remote.history) != c.base {
		return fmt.Errorf("failed to push: %w", ErrNotFastForward)
	}
	c.remote.history = append(c.remote.history, copySnapshot(c.tree))
	c.base = len(c.remote.history)
	c.ahead = 0
	c.parents = nil
	return nil
}

// Discard drops the last unpublished commit and checks its parent out.
func (c *MemClient) Discard(ctx context.Context) error {
	c.Calls = append(c.Calls, "discard")
	if c.DiscardErr != nil {
		return c.DiscardErr
	}
	if c.ahead == 0 {
		return ErrNothingToDiscard
	}

	parent := c.parents[len(c.parents)-1]
	if err := c.checkout(c.base, parent); err != nil {
		return err
	}
	c.parents = c.parents[:len(c.parents)-1]
	c.ahead--
	return nil
}

// Ahead returns the number of commits not yet pushed.
func (c *MemClient) Ahead() int {
	return c.ahead
}

// Tracked returns the sorted paths in the local tree.
func (c *MemClient) Tracked() []string {
	paths := make([]string, 0, len(c.tree))
	for p := range c.tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (c *MemClient) remoteHead() (int, snapshot) {
	return c.remote.Head()
}

// checkout makes the files under root match tree.
func (c *MemClient) checkout(n int, tree snapshot) error {
	for rel := range c.tree {
		if _, ok := tree[rel]; ok {
			continue
		}
		if err := c.fs.Remove(c.abs(rel)); err != nil {
			exists, _ := c.fs.Exists(c.abs(rel))
			if exists {
				return fmt.Errorf("failed to remove %s: %w", rel, err)
			}
		}
	}
	for rel, data := range tree {
		path := c.abs(rel)
		if err := c.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := c.fs.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
	}
	c.tree = tree
	c.base = n
	return nil
}

func (c *MemClient) abs(rel string) string {
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

func (c *MemClient) rel(path string) (string, error) {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is outside repository", path)
	}
	return filepath.ToSlash(rel), nil
}

func copySnapshot(s map[string][]byte) snapshot {
	out := make(snapshot, len(s))
	for k, v := range s {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func equalSnapshots(a, b snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}
