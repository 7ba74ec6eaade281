// Package fsops provides filesystem operations with safety guarantees.
//
// All filesystem mutations in worldsync go through the FS interface. The
// production implementation sits on the host disk and the tests run the same
// code against an in-memory filesystem, both provided by afero.
//
// Key features:
//   - Create-only file creation for the lock marker
//   - Durable file copies (fsync before returning)
//   - Identifier validation for world names
//   - Testable via the FS interface
package fsops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FS provides an abstraction for filesystem operations.
// All filesystem mutations in worldsync must go through this interface.
type FS interface {
	// Stat returns file info, following symlinks.
	Stat(path string) (os.FileInfo, error)

	// ReadDir lists a directory sorted by name.
	ReadDir(path string) ([]os.FileInfo, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Mkdir creates a single directory. It fails if path already exists.
	Mkdir(path string, perm os.FileMode) error

	// Remove removes a file or empty directory.
	Remove(path string) error

	// Rename moves oldpath to newpath.
	Rename(oldpath, newpath string) error

	// CopyFile copies a regular file from src to dst, replacing dst.
	CopyFile(src, dst string) error

	// CreateExclusive creates an empty file and fails if it already exists.
	// The error satisfies errors.Is(err, fs.ErrExist) in that case.
	CreateExclusive(path string) error

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to path, creating or truncating it.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// Exists checks if a path exists.
	Exists(path string) (bool, error)

	// ValidateIdentifier validates an identifier for safety.
	ValidateIdentifier(id string) error
}

// AferoFS implements FS on top of an afero filesystem.
type AferoFS struct {
	fs afero.Fs
}

// NewAferoFS wraps an afero filesystem.
func NewAferoFS(fs afero.Fs) *AferoFS {
	return &AferoFS{fs: fs}
}

// NewRealFS returns an FS backed by the host operating system.
func NewRealFS() *AferoFS {
	return NewAferoFS(afero.NewOsFs())
}

// NewMemFS returns an FS backed by memory. Used by tests.
func NewMemFS() *AferoFS {
	return NewAferoFS(afero.NewMemMapFs())
}

// Afero exposes the underlying afero filesystem.
func (a *AferoFS) Afero() afero.Fs {
	return a.fs
}

// Stat returns file info, following symlinks.
func (a *AferoFS) Stat(path string) (os.FileInfo, error) {
	return a.fs.Stat(path)
}

// ReadDir lists a directory sorted by name.
func (a *AferoFS) ReadDir(path string) ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(a.fs, path)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

// MkdirAll creates a directory and all parent directories.
func (a *AferoFS) MkdirAll(path string, perm os.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

// Mkdir creates a single directory.
func (a *AferoFS) Mkdir(path string, perm os.FileMode) error {
	return a.fs.Mkdir(path, perm)
}

// Remove removes a file or empty directory.
func (a *AferoFS) Remove(path string) error {
	return a.fs.Remove(path)
}

// Rename moves oldpath to newpath.
func (a *AferoFS) Rename(oldpath, newpath string) error {
	return a.fs.Rename(oldpath, newpath)
}

// CopyFile copies a single regular file from src to dst.
// The destination keeps the source mode and is synced before returning.
func (a *AferoFS) CopyFile(src, dst string) error {
	srcInfo, err := a.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("copy source %q is a directory", src)
	}

	srcFile, err := a.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		_ = srcFile.Close()
	}()

	dstFile, err := a.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	return dstFile.Sync()
}

// CreateExclusive creates an empty file, failing if it already exists.
func (a *AferoFS) CreateExclusive(path string) error {
	f, err := a.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) || os.IsExist(err) {
			return fmt.Errorf("create %s: %w", path, fs.ErrExist)
		}
		return err
	}
	return f.Close()
}

// Open opens a file for reading.
func (a *AferoFS) Open(path string) (io.ReadCloser, error) {
	return a.fs.Open(path)
}

// ReadFile reads the entire contents of a file.
func (a *AferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

// WriteFile writes data to path.
func (a *AferoFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(a.fs, path, data, perm)
}

// Exists checks if a path exists.
func (a *AferoFS) Exists(path string) (bool, error) {
	return afero.Exists(a.fs, path)
}

// ValidateIdentifier validates an identifier (e.g., a world name) for safety.
// Returns an error if the identifier contains invalid characters or path traversal attempts.
func (a *AferoFS) ValidateIdentifier(id string) error {
	return ValidateIdentifier(id)
}

// ValidateIdentifier is the package-level form of FS.ValidateIdentifier.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("invalid identifier: empty")
	}

	if strings.Contains(id, string(filepath.Separator)) || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("invalid identifier: must not contain path separators")
	}

	if id == "." || id == ".." || (strings.HasPrefix(id, ".") && len(id) > 1 && id[1] == '.') {
		return fmt.Errorf("invalid identifier: path traversal not allowed")
	}

	if strings.ContainsAny(id, "*?[") {
		return fmt.Errorf("invalid identifier: glob characters not allowed")
	}

	return nil
}
