// Package session drives one hosting turn from sync to publish.
//
// A turn runs these phases in order:
//
//	Syncing     pull the shared repository
//	Acquiring   claim the lock, or stop cleanly if someone else holds it
//	HandingOff  back up the live world and copy the tracked world over it
//	Active      wait until the context is canceled
//	Committing  copy the live world back and commit it
//	Releasing   remove the lock marker
//	Publishing  push everything
//
// Repository and file work always runs to completion: only the wait in the
// Active phase observes cancellation. A cancellation that arrives earlier is
// latched and ends the Active phase as soon as it starts.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/danieljhkim/worldsync/internal/backup"
	"github.com/danieljhkim/worldsync/internal/config"
	"github.com/danieljhkim/worldsync/internal/dataset"
	"github.com/danieljhkim/worldsync/internal/fsops"
)

// Phase is the step a session is in.
type Phase int

const (
	Idle Phase = iota
	Syncing
	Acquiring
	HandingOff
	Active
	Committing
	Releasing
	Publishing
	Done
)

var phaseNames = [...]string{
	Idle:       "idle",
	Syncing:    "syncing",
	Acquiring:  "acquiring",
	HandingOff: "handing-off",
	Active:     "active",
	Committing: "committing",
	Releasing:  "releasing",
	Publishing: "publishing",
	Done:       "done",
}

// String returns the phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Outcome is how a session that did not fail ended.
type Outcome int

const (
	// Completed means the world was played, committed and published.
	Completed Outcome = iota

	// Contended means another host holds the lock. Nothing was changed.
	Contended
)

// String returns a human-readable outcome.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Contended:
		return "contended"
	default:
		return "unknown"
	}
}

var (
	// ErrHandOff is returned when the tracked world could not be placed in
	// the live folder. The lock stays held.
	ErrHandOff = errors.New("hand-off failed")

	// ErrPublish is returned when the final push fails. The world and the
	// lock release are committed locally and must be pushed by hand.
	ErrPublish = errors.New("publish failed")
)

// Result describes a finished session.
type Result struct {
	Outcome Outcome

	// BackupDir is the folder the previous live world was moved to, if any.
	BackupDir string

	// Phase is the last phase entered. On error it is the phase that failed.
	Phase Phase
}

// Repository is the part of the shared repository a session drives directly.
type Repository interface {
	Pull(ctx context.Context) error
	Commit(ctx context.Context, message string, paths []string) error
	Push(ctx context.Context) error
}

// Locker takes and gives back the turn.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Backups protects the live world before it is replaced.
type Backups interface {
	BackupIfPresent(name, liveDir string) (*backup.Result, error)
}

// Reporter receives operator-facing progress.
type Reporter interface {
	PhaseChanged(p Phase)
	Info(msg string)
	Warn(msg string)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) PhaseChanged(Phase) {}
func (NopReporter) Info(string)        {}
func (NopReporter) Warn(string)        {}

// Orchestrator runs one session.
type Orchestrator struct {
	cfg      *config.Config
	repo     Repository
	fs       fsops.FS
	backups  Backups
	locker   Locker
	logger   *zap.Logger
	reporter Reporter

	mu    sync.Mutex
	phase Phase
}

// New creates an Orchestrator. A nil logger or reporter discards output.
func New(cfg *config.Config, repo Repository, fsys fsops.FS, backups Backups, locker Locker, logger *zap.Logger, reporter Reporter) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Orchestrator{
		cfg:      cfg,
		repo:     repo,
		fs:       fsys,
		backups:  backups,
		locker:   locker,
		logger:   logger.With(zap.String("world", cfg.World)),
		reporter: reporter,
	}
}

// Phase returns the current phase. It is safe to call from any goroutine.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) enter(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()

	o.logger.Info("entering phase", zap.Stringer("phase", p))
	o.reporter.PhaseChanged(p)
}

// Run executes the session. Canceling ctx ends the Active phase; nothing else
// is interrupted by it.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	work := context.WithoutCancel(ctx)
	res := &Result{}

	o.enter(Syncing)
	if err := o.repo.Pull(work); err != nil {
		return o.fail(res, fmt.Errorf("failed to sync: %w", err))
	}

	o.enter(Acquiring)
	ok, err := o.locker.TryAcquire(work)
	if err != nil {
		return o.fail(res, fmt.Errorf("failed to acquire lock: %w", err))
	}
	if !ok {
		o.reporter.Warn(fmt.Sprintf("Someone else is already hosting %s", o.cfg.World))
		o.enter(Done)
		res.Outcome = Contended
		res.Phase = Done
		return res, nil
	}

	o.enter(HandingOff)
	if err := o.handOff(res); err != nil {
		return o.fail(res, err)
	}

	o.enter(Active)
	o.reporter.Info("World is ready. Start the game, and press Ctrl+C here once you have shut it down.")
	<-ctx.Done()
	o.logger.Info("active window ended", zap.Error(context.Cause(ctx)))

	o.enter(Committing)
	if err := o.commitWorld(work); err != nil {
		return o.fail(res, err)
	}

	o.enter(Releasing)
	if err := o.locker.Release(work); err != nil {
		return o.fail(res, fmt.Errorf("failed to release lock: %w", err))
	}

	o.enter(Publishing)
	if err := o.repo.Push(work); err != nil {
		return o.fail(res, fmt.Errorf("%w: %v (run git push in %s)", ErrPublish, err, o.cfg.RepoDir))
	}

	o.enter(Done)
	res.Outcome = Completed
	res.Phase = Done
	return res, nil
}

// handOff replaces the live world with the tracked one. The tracked world is
// checked before anything in the live folder is touched.
func (o *Orchestrator) handOff(res *Result) error {
	tracked, err := dataset.Members(o.fs, o.cfg.TrackedDir(), o.cfg.World)
	if err != nil {
		return fmt.Errorf("%w: failed to list tracked world: %v", ErrHandOff, err)
	}
	if len(tracked) != dataset.MemberCount {
		return fmt.Errorf("%w: %s holds %d of %d world files; copy your world files there and commit them",
			ErrHandOff, o.cfg.TrackedDir(), len(tracked), dataset.MemberCount)
	}

	if err := o.fs.MkdirAll(o.cfg.LiveDir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create live folder: %v", ErrHandOff, err)
	}

	b, err := o.backups.BackupIfPresent(o.cfg.World, o.cfg.LiveDir)
	if err != nil {
		return fmt.Errorf("%w: backup failed: %v", ErrHandOff, err)
	}
	switch b.Outcome {
	case backup.Moved:
		res.BackupDir = b.Dir
		o.reporter.Info(fmt.Sprintf("Previous world moved to %s", b.Dir))
	case backup.NoneFound:
		o.reporter.Info(fmt.Sprintf("No previous world in %s", o.cfg.LiveDir))
	case backup.CountMismatch:
		return fmt.Errorf("%w: %s holds %d files named %s, expected %d; move them aside and retry",
			ErrHandOff, o.cfg.LiveDir, b.Count, o.cfg.World, dataset.MemberCount)
	}

	if err := dataset.Copy(o.fs, tracked, o.cfg.LiveDir); err != nil {
		if res.BackupDir != "" {
			return fmt.Errorf("%w: %v; your previous world is in %s and must be restored by hand",
				ErrHandOff, err, res.BackupDir)
		}
		return fmt.Errorf("%w: %v", ErrHandOff, err)
	}
	return nil
}

// commitWorld copies the live world into the repository and commits it.
func (o *Orchestrator) commitWorld(ctx context.Context) error {
	live, err := dataset.Members(o.fs, o.cfg.LiveDir, o.cfg.World)
	if err != nil {
		return fmt.Errorf("failed to list live world: %w", err)
	}
	if err := dataset.Copy(o.fs, live, o.cfg.TrackedDir()); err != nil {
		return fmt.Errorf("failed to copy world into repository: %w", err)
	}

	paths := make([]string, len(live))
	for i, src := range live {
		paths[i] = filepath.Join(o.cfg.TrackedDir(), filepath.Base(src))
	}
	if err := o.repo.Commit(ctx, CommitMessage(o.cfg.World), paths); err != nil {
		return fmt.Errorf("failed to commit world: %w", err)
	}
	return nil
}

func (o *Orchestrator) fail(res *Result, err error) (*Result, error) {
	res.Phase = o.Phase()
	o.logger.Error("session failed", zap.Stringer("phase", res.Phase), zap.Error(err))
	return res, err
}

// CommitMessage is the commit message recording a played world.
func CommitMessage(world string) string {
	return "Update world " + world
}
