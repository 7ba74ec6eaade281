package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danieljhkim/worldsync/internal/clock"
	"github.com/danieljhkim/worldsync/internal/dataset"
	"github.com/danieljhkim/worldsync/internal/fsops"
)

var worldFiles = []string{"MyWorld.db", "MyWorld.db.old", "MyWorld.fwl", "MyWorld.fwl.old"}

func writeFiles(t *testing.T, fs fsops.FS, dir string, names []string, tag string) {
	t.Helper()
	for _, name := range names {
		if err := fs.WriteFile(filepath.Join(dir, name), []byte(tag+":"+name), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestManager(fs fsops.FS) (*Manager, *clock.FakeClock) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local))
	return NewManager(fs, clk, nil), clk
}

func TestBackupIfPresent_Moved(t *testing.T) {
	fs := fsops.NewMemFS()
	writeFiles(t, fs, "/live", worldFiles, "previous")
	mgr, _ := newTestManager(fs)

	result, err := mgr.BackupIfPresent("MyWorld", "/live")
	if err != nil {
		t.Fatalf("BackupIfPresent() error = %v", err)
	}

	if result.Outcome != Moved {
		t.Fatalf("Outcome = %v, want %v", result.Outcome, Moved)
	}
	wantDir := "/live/backup_MyWorld_05032024-140709"
	if result.Dir != wantDir {
		t.Errorf("Dir = %q, want %q", result.Dir, wantDir)
	}

	left, err := dataset.Members(fs, "/live", "MyWorld")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("live folder still holds %v", left)
	}

	for _, name := range worldFiles {
		got, err := fs.ReadFile(filepath.Join(wantDir, name))
		if err != nil {
			t.Fatalf("backup is missing %s: %v", name, err)
		}
		if want := "previous:" + name; string(got) != want {
			t.Errorf("backup %s = %q, want byte-identical %q", name, got, want)
		}
	}
}

func TestBackupIfPresent_NoneFound(t *testing.T) {
	fs := fsops.NewMemFS()
	if err := fs.MkdirAll("/live", 0755); err != nil {
		t.Fatal(err)
	}
	mgr, _ := newTestManager(fs)

	result, err := mgr.BackupIfPresent("MyWorld", "/live")
	if err != nil {
		t.Fatalf("BackupIfPresent() error = %v", err)
	}
	if result.Outcome != NoneFound {
		t.Errorf("Outcome = %v, want %v", result.Outcome, NoneFound)
	}

	dirs, err := mgr.List("MyWorld", "/live")
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 0 {
		t.Errorf("no backup folder expected, got %v", dirs)
	}
}

func TestBackupIfPresent_CountMismatch(t *testing.T) {
	fs := fsops.NewMemFS()
	writeFiles(t, fs, "/live", worldFiles[:3], "partial")
	mgr, _ := newTestManager(fs)

	result, err := mgr.BackupIfPresent("MyWorld", "/live")
	if err != nil {
		t.Fatalf("BackupIfPresent() error = %v", err)
	}
	if result.Outcome != CountMismatch {
		t.Fatalf("Outcome = %v, want %v", result.Outcome, CountMismatch)
	}
	if result.Count != 3 {
		t.Errorf("Count = %d, want 3", result.Count)
	}

	left, err := dataset.Members(fs, "/live", "MyWorld")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 3 {
		t.Errorf("partial world should be left alone, found %d files", len(left))
	}
}

func TestBackupIfPresent_SameSecond(t *testing.T) {
	fs := fsops.NewMemFS()
	mgr, _ := newTestManager(fs)

	writeFiles(t, fs, "/live", worldFiles, "first")
	first, err := mgr.BackupIfPresent("MyWorld", "/live")
	if err != nil {
		t.Fatal(err)
	}

	writeFiles(t, fs, "/live", worldFiles, "second")
	second, err := mgr.BackupIfPresent("MyWorld", "/live")
	if err != nil {
		t.Fatal(err)
	}

	if first.Dir == second.Dir {
		t.Fatalf("backups share folder %q", first.Dir)
	}
	if want := first.Dir + "-1"; second.Dir != want {
		t.Errorf("second Dir = %q, want %q", second.Dir, want)
	}

	got, err := fs.ReadFile(filepath.Join(first.Dir, "MyWorld.db"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first:MyWorld.db" {
		t.Errorf("first backup was modified: %q", got)
	}
}

func TestList(t *testing.T) {
	fs := fsops.NewMemFS()
	mgr, clk := newTestManager(fs)

	var made []string
	for i := 0; i < 3; i++ {
		writeFiles(t, fs, "/live", worldFiles, "gen")
		result, err := mgr.BackupIfPresent("MyWorld", "/live")
		if err != nil {
			t.Fatal(err)
		}
		made = append(made, result.Dir)
		clk.Advance(time.Hour)
	}

	// Unrelated folders are ignored.
	if err := fs.MkdirAll("/live/backup_OtherWorld_05032024-140709", 0755); err != nil {
		t.Fatal(err)
	}
	if err := fs.MkdirAll("/live/backup_MyWorld_notastamp", 0755); err != nil {
		t.Fatal(err)
	}

	dirs, err := mgr.List("MyWorld", "/live")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{made[2], made[1], made[0]}
	if len(dirs) != len(want) {
		t.Fatalf("List() = %v, want %v", dirs, want)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, dirs[i], want[i])
		}
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{NoneFound, "none-found"},
		{Moved, "moved"},
		{CountMismatch, "count-mismatch"},
		{Outcome(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}
