package syncer

import (
	"errors"
	"io/fs"
	"mirrorsync/internal/util"
	"os"
	"path/filepath"
	"strings"
)

// Registry answers whether a source/destination pair is already being
// mirrored.
type Registry interface {
	IsActive(src, dst string) bool
}

// AbsPaths makes src and every destination absolute and clean.
func AbsPaths(src string, dsts []string) (string, []string, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", nil, &ValidationError{Path: src, Err: err}
	}

	absDsts := make([]string, 0, len(dsts))
	for _, d := range dsts {
		a, err := filepath.Abs(d)
		if err != nil {
			return "", nil, &ValidationError{Path: d, Err: err}
		}
		absDsts = append(absDsts, a)
	}

	return absSrc, absDsts, nil
}

// canonical returns path as an absolute path with symlinks resolved on the
// longest prefix that exists.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}

	parent := filepath.Dir(abs)
	if parent == abs {
		return abs
	}

	return filepath.Join(canonical(parent), filepath.Base(abs))
}

// IsDescendant reports whether candidate is ancestor or lies below it. The
// comparison is on whole path components, so /a/bc is not below /a/b.
func IsDescendant(candidate, ancestor string) bool {
	c, a := canonical(candidate), canonical(ancestor)

	if c == a {
		return true
	}

	if a == string(filepath.Separator) {
		return true
	}

	return strings.HasPrefix(c, a+string(filepath.Separator))
}

// PrepareDestination leaves path as an empty directory. An existing
// non-directory at path is rejected without being touched.
func PrepareDestination(path string) error {
	info, err := os.Lstat(path)

	switch {
	case err == nil && !info.IsDir():
		return &ValidationError{Path: path, Err: ErrNotDirectory}
	case err == nil:
		if err := util.RemoveTree(path); err != nil {
			return &DirError{Op: "clear", Path: path, Err: err}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return &DirError{Op: "stat", Path: path, Err: err}
	}

	if err := util.CreateDirs(path); err != nil {
		return &DirError{Op: "create", Path: path, Err: err}
	}

	return nil
}

// Validate checks a job submission. It runs before anything is modified, so
// a rejected job leaves every path as it was. reg may be nil.
func Validate(src string, dsts []string, reg Registry) error {
	if len(src) >= util.MaxPathLen {
		return &ValidationError{Path: src, Err: ErrPathTooLong}
	}

	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return &ValidationError{Path: src, Err: ErrInvalidSource}
	}

	if len(dsts) == 0 {
		return &ValidationError{Path: src, Err: errors.New("no destinations")}
	}

	seen := make(map[string]struct{}, len(dsts))
	for _, dst := range dsts {
		if len(dst) >= util.MaxPathLen {
			return &ValidationError{Path: dst, Err: ErrPathTooLong}
		}

		key := canonical(dst)
		if _, ok := seen[key]; ok {
			return &ValidationError{Path: dst, Err: ErrDuplicateDestination}
		}
		seen[key] = struct{}{}

		if reg != nil && reg.IsActive(src, dst) {
			return &ValidationError{Path: dst, Err: ErrJobActive}
		}

		if IsDescendant(dst, src) {
			return &ValidationError{Path: dst, Err: ErrNestedDestination}
		}

		if IsDescendant(src, dst) {
			return &ValidationError{Path: dst, Err: ErrSourceInDestination}
		}

		if info, err := os.Lstat(dst); err == nil && !info.IsDir() {
			return &ValidationError{Path: dst, Err: ErrNotDirectory}
		}
	}

	return nil
}
