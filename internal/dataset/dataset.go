// Package dataset moves a world save between the live directory the game
// reads and the tracked directory inside the repository.
//
// A world is exactly MemberCount files sharing the world name as prefix
// (MyWorld.db, MyWorld.db.old, MyWorld.fwl, MyWorld.fwl.old). Any other
// count means the files on disk are inconsistent, so transfers refuse to
// start rather than move part of a world.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/worldsync/internal/fsops"
)

// MemberCount is the number of files that make up one world.
const MemberCount = 4

// ErrMemberCount is returned when a transfer is asked to move anything
// other than exactly MemberCount files.
var ErrMemberCount = errors.New("world must have exactly 4 files")

// Members returns the files in dir that belong to the world called name,
// sorted by file name. A missing dir has no members.
func Members(fs fsops.FS, dir, name string) ([]string, error) {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var members []string
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		if IsMember(info.Name(), name) {
			members = append(members, filepath.Join(dir, info.Name()))
		}
	}
	return members, nil
}

// IsMember reports whether fileName belongs to the world called name.
func IsMember(fileName, name string) bool {
	return fileName == name || strings.HasPrefix(fileName, name+".")
}

// Copy duplicates each member into dstDir under the same file name.
// Sources are kept.
func Copy(fs fsops.FS, members []string, dstDir string) error {
	if err := checkCount(members); err != nil {
		return err
	}

	for _, src := range members {
		dst := filepath.Join(dstDir, filepath.Base(src))
		if err := fs.CopyFile(src, dst); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", src, dstDir, err)
		}
	}
	return nil
}

// Move relocates each member into dstDir under the same file name.
func Move(fs fsops.FS, members []string, dstDir string) error {
	if err := checkCount(members); err != nil {
		return err
	}

	for _, src := range members {
		dst := filepath.Join(dstDir, filepath.Base(src))
		if err := fs.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move %s to %s: %w", src, dstDir, err)
		}
	}
	return nil
}

func checkCount(members []string) error {
	if len(members) != MemberCount {
		return fmt.Errorf("%w: got %d", ErrMemberCount, len(members))
	}
	return nil
}
