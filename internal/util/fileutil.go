package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MaxPathLen mirrors PATH_MAX on Linux. Paths at or above it are rejected
// up front instead of failing deep inside a syscall.
const MaxPathLen = 4096

var ErrPathTooLong = errors.New("path too long")

// Entry is a single node yielded by Visit.
type Entry struct {
	Path  string
	IsDir bool
}

// JoinPath joins elem with the platform separator and rejects results that
// would not fit in MaxPathLen.
func JoinPath(elem ...string) (string, error) {
	p := filepath.Join(elem...)
	if len(p) >= MaxPathLen {
		return "", fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(p))
	}

	return p, nil
}

// ReadDir lists dir in the order the filesystem returns entries. Unlike
// os.ReadDir the result is not sorted.
func ReadDir(dir string) ([]fs.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return f.ReadDir(-1)
}

// Visit walks the tree below root in pre-order, calling fn for every entry
// (root itself excluded). Directories are descended into based on the entry
// type, so symlinks to directories are reported but never followed.
// Directories that cannot be read are skipped.
func Visit(root string, fn func(Entry) error) error {
	entries, err := ReadDir(root)
	if err != nil {
		return nil
	}

	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		isDir := e.Type().IsDir()

		if err := fn(Entry{Path: path, IsDir: isDir}); err != nil {
			return err
		}

		if isDir {
			if err := Visit(path, fn); err != nil {
				return err
			}
		}
	}

	return nil
}

// visitPost walks the tree below root in post-order. Unlike Visit, read
// failures are returned so that RemoveTree can report them.
func visitPost(root string, fn func(Entry) error) error {
	entries, err := ReadDir(root)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		isDir := e.Type().IsDir()

		if isDir {
			if err := visitPost(path, fn); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		if err := fn(Entry{Path: path, IsDir: isDir}); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CreateDirs creates path and any missing parents. Existing directories are
// accepted; any other failure is returned.
func CreateDirs(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", path, err)
	}

	return nil
}

// RemoveTree deletes path and everything below it without following
// symlinks. A missing path is not an error. Removal continues past failing
// entries and the collected errors are returned together.
func RemoveTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return RemoveIfExists(path)
	}

	err = visitPost(path, func(e Entry) error {
		return RemoveIfExists(e.Path)
	})
	if err != nil {
		return err
	}

	return RemoveIfExists(path)
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// Exists reports whether path is present, without following a final symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
