// Package lock implements the turn lock that lets one host at a time own the
// shared world.
//
// The lock is a marker file tracked in a linear, append-only log. Taking the
// lock appends a record creating the marker; releasing it appends a record
// removing it. A claim only counts once it has been published on top of a
// history in which the marker was absent, so of two hosts racing for a free
// lock exactly one publish succeeds and the other backs its claim out.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/danieljhkim/worldsync/internal/fsops"
	"github.com/danieljhkim/worldsync/internal/repo"
)

// Log is the append-only history the marker lives in.
type Log interface {
	// Pull refreshes the local view with everything published so far.
	Pull(ctx context.Context) error

	// Commit appends a record of the current state of paths.
	Commit(ctx context.Context, message string, paths []string) error

	// Push publishes appended records. It fails with an error wrapping
	// repo.ErrNotFastForward when someone else published first.
	Push(ctx context.Context) error

	// Discard drops the last unpublished record without contacting the
	// remote.
	Discard(ctx context.Context) error
}

// State is the lock state as seen from this host.
type State int

const (
	// Free means no marker exists.
	Free State = iota

	// HeldByMe means this Manager created the marker.
	HeldByMe

	// HeldByOther means a marker exists that this Manager did not create.
	HeldByOther
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case HeldByMe:
		return "held by me"
	case HeldByOther:
		return "held by another host"
	default:
		return "unknown"
	}
}

// Manager acquires and releases the lock for one world.
type Manager struct {
	log    Log
	fs     fsops.FS
	world  string
	marker string
	logger *zap.Logger

	held bool
}

// NewManager creates a Manager for the marker at markerPath.
func NewManager(log Log, fsys fsops.FS, world, markerPath string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		log:    log,
		fs:     fsys,
		world:  world,
		marker: markerPath,
		logger: logger.With(zap.String("world", world), zap.String("marker", markerPath)),
	}
}

// AcquireMessage is the commit message recording a claim.
func AcquireMessage(world string) string {
	return "Acquired lock for " + world
}

// ReleaseMessage is the commit message recording a release.
func ReleaseMessage(world string) string {
	return "Released lock for " + world
}

// TryAcquire claims the lock. It returns false with a nil error when another
// host holds the lock or won a race for it.
//
// The caller must have pulled just before: the local marker is taken to be
// the remote's latest state.
func (m *Manager) TryAcquire(ctx context.Context) (bool, error) {
	if m.held {
		return true, nil
	}

	if err := m.fs.CreateExclusive(m.marker); err != nil {
		if errors.Is(err, fs.ErrExist) {
			m.logger.Info("lock is held by another host")
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock marker: %w", err)
	}

	if err := m.log.Commit(ctx, AcquireMessage(m.world), []string{m.marker}); err != nil {
		if rmErr := m.fs.Remove(m.marker); rmErr != nil {
			m.logger.Warn("failed to remove uncommitted marker", zap.Error(rmErr))
		}
		return false, fmt.Errorf("failed to commit lock marker: %w", err)
	}

	if err := m.log.Push(ctx); err != nil {
		if errors.Is(err, repo.ErrNotFastForward) {
			m.logger.Info("lost the race for the lock, discarding claim")
			if dErr := m.log.Discard(ctx); dErr != nil {
				return false, fmt.Errorf("failed to discard lost claim: %w", dErr)
			}
			return false, nil
		}

		// The claim never left this host. A marker left in the working copy
		// would read as another host's lock on every later run.
		if wErr := m.withdraw(ctx); wErr != nil {
			return false, fmt.Errorf("failed to publish lock marker: %w; the local claim could not be withdrawn (%v), run worldsync unlock --yes once the remote is reachable", err, wErr)
		}
		return false, fmt.Errorf("failed to publish lock marker: %w", err)
	}

	m.held = true
	m.logger.Info("lock acquired")
	return true, nil
}

// withdraw backs out an unpublished claim. Dropping the claim commit is
// preferred; when that fails the marker removal is committed on top, which
// nets out once published.
func (m *Manager) withdraw(ctx context.Context) error {
	dErr := m.log.Discard(ctx)
	if dErr == nil {
		return nil
	}
	m.logger.Warn("failed to discard unpublished claim, recording its removal instead", zap.Error(dErr))
	if err := m.Release(ctx); err != nil {
		return errors.Join(dErr, err)
	}
	return nil
}

// Release removes the marker and records the removal. A missing marker is
// not an error, so calling Release twice is safe. Publishing is left to the
// caller.
func (m *Manager) Release(ctx context.Context) error {
	if err := m.fs.Remove(m.marker); err != nil {
		exists, exErr := m.fs.Exists(m.marker)
		if exErr != nil || exists {
			return fmt.Errorf("failed to remove lock marker: %w", err)
		}
	}

	if err := m.log.Commit(ctx, ReleaseMessage(m.world), []string{m.marker}); err != nil {
		return fmt.Errorf("failed to commit lock release: %w", err)
	}

	m.held = false
	m.logger.Info("lock released")
	return nil
}

// Observe reports the lock state from the local working copy.
func (m *Manager) Observe() (State, error) {
	exists, err := m.fs.Exists(m.marker)
	if err != nil {
		return Free, fmt.Errorf("failed to check lock marker: %w", err)
	}
	switch {
	case !exists:
		return Free, nil
	case m.held:
		return HeldByMe, nil
	default:
		return HeldByOther, nil
	}
}

// Held reports whether this Manager holds the lock.
func (m *Manager) Held() bool {
	return m.held
}

// ForceRelease clears a marker left behind by a session that never finished,
// and publishes the removal. It reports whether a marker was present.
func (m *Manager) ForceRelease(ctx context.Context) (bool, error) {
	if err := m.log.Pull(ctx); err != nil {
		return false, fmt.Errorf("failed to sync before unlocking: %w", err)
	}

	state, err := m.Observe()
	if err != nil {
		return false, err
	}
	if state == Free {
		return false, nil
	}

	m.logger.Warn("force-releasing lock")
	if err := m.Release(ctx); err != nil {
		return true, err
	}
	if err := m.log.Push(ctx); err != nil {
		return true, fmt.Errorf("failed to publish lock release: %w", err)
	}
	return true, nil
}
