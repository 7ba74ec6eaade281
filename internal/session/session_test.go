package session

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danieljhkim/worldsync/internal/backup"
	"github.com/danieljhkim/worldsync/internal/clock"
	"github.com/danieljhkim/worldsync/internal/config"
	"github.com/danieljhkim/worldsync/internal/dataset"
	"github.com/danieljhkim/worldsync/internal/fsops"
	"github.com/danieljhkim/worldsync/internal/lock"
	"github.com/danieljhkim/worldsync/internal/repo"
)

var worldFiles = []string{"MyWorld.db", "MyWorld.db.old", "MyWorld.fwl", "MyWorld.fwl.old"}

// trackedWorld returns a remote tree holding a complete world tagged with tag.
func trackedWorld(tag string) map[string][]byte {
	files := make(map[string][]byte)
	for _, name := range worldFiles {
		files["MyWorld/"+name] = []byte(tag + ":" + name)
	}
	return files
}

func writeWorld(t *testing.T, fs fsops.FS, dir, tag string, names []string) {
	t.Helper()
	for _, name := range names {
		if err := fs.WriteFile(filepath.Join(dir, name), []byte(tag+":"+name), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readWorld(t *testing.T, fs fsops.FS, dir string) map[string]string {
	t.Helper()
	members, err := dataset.Members(fs, dir, "MyWorld")
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]string)
	for _, m := range members {
		data, err := fs.ReadFile(m)
		if err != nil {
			t.Fatal(err)
		}
		out[filepath.Base(m)] = string(data)
	}
	return out
}

// recorder is a Reporter that records phases and runs hooks on entry.
type recorder struct {
	mu      sync.Mutex
	phases  []Phase
	onEnter map[Phase]func()
}

func newRecorder() *recorder {
	return &recorder{onEnter: make(map[Phase]func())}
}

func (r *recorder) PhaseChanged(p Phase) {
	r.mu.Lock()
	r.phases = append(r.phases, p)
	hook := r.onEnter[p]
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *recorder) Info(string) {}
func (r *recorder) Warn(string) {}

func (r *recorder) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

type host struct {
	cfg     *config.Config
	client  *repo.MemClient
	backups *backup.Manager
	locker  *lock.Manager
	rec     *recorder
	orch    *Orchestrator
}

func newHost(t *testing.T, remote *repo.MemRemote, fs fsops.FS, name string) *host {
	t.Helper()
	cfg := &config.Config{
		World:   "MyWorld",
		RepoDir: "/" + name + "/repo",
		LiveDir: "/" + name + "/live",
		Marker:  "lock",
		Remote:  "origin",
		Branch:  "main",
		Backend: "git",
	}
	client, err := remote.Clone(fs, cfg.RepoDir)
	if err != nil {
		t.Fatal(err)
	}

	clk := clock.NewFakeClock(time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local))
	h := &host{
		cfg:     cfg,
		client:  client,
		backups: backup.NewManager(fs, clk, nil),
		locker:  lock.NewManager(client, fs, cfg.World, cfg.MarkerPath(), nil),
		rec:     newRecorder(),
	}
	h.orch = New(cfg, client, fs, h.backups, h.locker, nil, h.rec)
	return h
}

// canceled returns a context that is already done, as if the operator had
// pressed Ctrl+C before the active window opened.
func canceled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestRun_EndToEnd(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(trackedWorld("v1"))

	a := newHost(t, remote, fs, "a")
	b := newHost(t, remote, fs, "b")

	writeWorld(t, fs, a.cfg.LiveDir, "old", worldFiles)
	writeWorld(t, fs, b.cfg.LiveDir, "b-local", worldFiles)

	active := make(chan struct{})
	a.rec.onEnter[Active] = func() { close(active) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.orch.Run(ctx)
		done <- outcome{res, err}
	}()

	select {
	case <-active:
	case <-time.After(5 * time.Second):
		t.Fatal("host A never reached the active window")
	}

	if got := a.orch.Phase(); got != Active {
		t.Fatalf("host A Phase() = %v, want %v", got, Active)
	}

	// Host B shows up while A is playing.
	resB, err := b.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("host B Run() error = %v, contention must exit cleanly", err)
	}
	if resB.Outcome != Contended {
		t.Errorf("host B Outcome = %v, want %v", resB.Outcome, Contended)
	}
	if got := readWorld(t, fs, b.cfg.LiveDir); got["MyWorld.db"] != "b-local:MyWorld.db" || len(got) != 4 {
		t.Errorf("host B live world was touched: %v", got)
	}
	if dirs, _ := b.backups.List("MyWorld", b.cfg.LiveDir); len(dirs) != 0 {
		t.Errorf("host B created backups %v", dirs)
	}

	// A plays, then quits.
	writeWorld(t, fs, a.cfg.LiveDir, "v2", worldFiles)
	cancel()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("host A did not finish after cancel")
	}
	if out.err != nil {
		t.Fatalf("host A Run() error = %v", out.err)
	}
	if out.res.Outcome != Completed || out.res.Phase != Done {
		t.Errorf("host A result = %+v", out.res)
	}

	_, tree := remote.Head()
	if _, ok := tree["MyWorld/lock"]; ok {
		t.Error("marker still on the remote after the session")
	}
	for _, name := range worldFiles {
		if got, want := string(tree["MyWorld/"+name]), "v2:"+name; got != want {
			t.Errorf("remote %s = %q, want %q", name, got, want)
		}
	}

	// A's previous live world survives byte-identical.
	if out.res.BackupDir == "" {
		t.Fatal("host A made no backup of its previous live world")
	}
	for name, content := range readWorld(t, fs, out.res.BackupDir) {
		if want := "old:" + name; content != want {
			t.Errorf("backup %s = %q, want %q", name, content, want)
		}
	}

	want := []Phase{Syncing, Acquiring, HandingOff, Active, Committing, Releasing, Publishing, Done}
	if got := a.rec.Phases(); !reflect.DeepEqual(got, want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
	if want := []string{
		lock.AcquireMessage("MyWorld"),
		CommitMessage("MyWorld"),
		lock.ReleaseMessage("MyWorld"),
	}; !reflect.DeepEqual(a.client.Messages, want) {
		t.Errorf("commits = %v, want %v", a.client.Messages, want)
	}
}

func TestRun_EarlyCancelIsLatched(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(trackedWorld("v1"))
	a := newHost(t, remote, fs, "a")

	res, err := a.orch.Run(canceled())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != Completed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, Completed)
	}
	if got := readWorld(t, fs, a.cfg.LiveDir); len(got) != 4 {
		t.Errorf("live world has %d files, want 4", len(got))
	}

	// Nothing changed, so the world commit is a tolerated no-op.
	if want := []string{lock.AcquireMessage("MyWorld"), lock.ReleaseMessage("MyWorld")}; !reflect.DeepEqual(a.client.Messages, want) {
		t.Errorf("commits = %v, want %v", a.client.Messages, want)
	}
	if res.BackupDir != "" {
		t.Errorf("BackupDir = %q with an empty live folder", res.BackupDir)
	}
}

func TestRun_EmptyTrackedWorld(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(map[string][]byte{"MyWorld/README": []byte("put the world here")})
	a := newHost(t, remote, fs, "a")
	writeWorld(t, fs, a.cfg.LiveDir, "precious", worldFiles)

	res, err := a.orch.Run(canceled())
	if !errors.Is(err, ErrHandOff) {
		t.Fatalf("Run() error = %v, want ErrHandOff", err)
	}
	if res.Phase != HandingOff {
		t.Errorf("Phase = %v, want %v", res.Phase, HandingOff)
	}

	got := readWorld(t, fs, a.cfg.LiveDir)
	for _, name := range worldFiles {
		if want := "precious:" + name; got[name] != want {
			t.Errorf("live %s = %q, want untouched %q", name, got[name], want)
		}
	}
	dirs, err := a.backups.List("MyWorld", a.cfg.LiveDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Errorf("backup created with nothing to hand off: %v", dirs)
	}

	// The claim stays published for the operator to inspect.
	if !a.locker.Held() {
		t.Error("lock should still be held after a failed hand-off")
	}
}

func TestRun_LiveCountMismatch(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(trackedWorld("v1"))
	a := newHost(t, remote, fs, "a")
	writeWorld(t, fs, a.cfg.LiveDir, "partial", worldFiles[:3])

	_, err := a.orch.Run(canceled())
	if !errors.Is(err, ErrHandOff) {
		t.Fatalf("Run() error = %v, want ErrHandOff", err)
	}

	got := readWorld(t, fs, a.cfg.LiveDir)
	if len(got) != 3 || got["MyWorld.db"] != "partial:MyWorld.db" {
		t.Errorf("partial live world was touched: %v", got)
	}
}

func TestRun_PullFailure(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(trackedWorld("v1"))
	a := newHost(t, remote, fs, "a")
	boom := errors.New("could not resolve host")
	a.client.PullErr = boom

	res, err := a.orch.Run(canceled())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if res.Phase != Syncing {
		t.Errorf("Phase = %v, want %v", res.Phase, Syncing)
	}
	if want := []string{"pull"}; !reflect.DeepEqual(a.client.Calls, want) {
		t.Errorf("Calls = %v, want %v", a.client.Calls, want)
	}
}

func TestRun_PublishFailure(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(trackedWorld("v1"))
	a := newHost(t, remote, fs, "a")

	boom := errors.New("connection reset")
	a.rec.onEnter[Active] = func() {
		writeWorld(t, fs, a.cfg.LiveDir, "v2", worldFiles)
		a.client.PushErr = boom
	}

	res, err := a.orch.Run(canceled())
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("Run() error = %v, want ErrPublish", err)
	}
	if res.Phase != Publishing {
		t.Errorf("Phase = %v, want %v", res.Phase, Publishing)
	}

	// World and release are committed locally, waiting for a manual push.
	if a.client.Ahead() != 2 {
		t.Errorf("Ahead() = %d, want 2", a.client.Ahead())
	}
	got := readWorld(t, fs, a.cfg.TrackedDir())
	if got["MyWorld.db"] != "v2:MyWorld.db" {
		t.Errorf("tracked world not updated: %v", got)
	}
}

func TestRun_LiveWorldVanishes(t *testing.T) {
	fs := fsops.NewMemFS()
	remote := repo.NewMemRemote(trackedWorld("v1"))
	a := newHost(t, remote, fs, "a")

	a.rec.onEnter[Active] = func() {
		if err := fs.Remove(filepath.Join(a.cfg.LiveDir, "MyWorld.db.old")); err != nil {
			t.Fatal(err)
		}
	}

	res, err := a.orch.Run(canceled())
	if !errors.Is(err, dataset.ErrMemberCount) {
		t.Fatalf("Run() error = %v, want ErrMemberCount", err)
	}
	if res.Phase != Committing {
		t.Errorf("Phase = %v, want %v", res.Phase, Committing)
	}
	if !a.locker.Held() {
		t.Error("lock released although the world was never committed")
	}
}

func TestPhase_String(t *testing.T) {
	if got := HandingOff.String(); got != "handing-off" {
		t.Errorf("HandingOff.String() = %q", got)
	}
	if got := Phase(42).String(); got != "unknown" {
		t.Errorf("Phase(42).String() = %q", got)
	}
	if got := Contended.String(); got != "contended" {
		t.Errorf("Contended.String() = %q", got)
	}
}
