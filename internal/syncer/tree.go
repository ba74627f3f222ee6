package syncer

import (
	"errors"
	"mirrorsync/internal/model"
	"mirrorsync/internal/util"
	"os"
	"path/filepath"
	"strings"
)

// relPath strips root and the following separator from path. It returns ""
// for root itself.
func relPath(root, path string) string {
	rest := strings.TrimPrefix(path, root)
	return strings.TrimPrefix(rest, string(filepath.Separator))
}

// destPath maps a path under srcRoot to the same relative location under
// dstRoot.
func destPath(srcRoot, dstRoot, path string) (string, error) {
	p, err := util.JoinPath(dstRoot, relPath(srcRoot, path))
	if err != nil {
		return "", &ValidationError{Path: path, Err: err}
	}

	return p, nil
}

// SyncTree copies every entry below srcRoot into each of dstRoots. Entries
// are processed in walk order so directories exist before their contents.
// Failures are reported and collected; the remaining entries are still
// copied.
func SyncTree(srcRoot string, dstRoots []string, report Reporter) error {
	srcRoot = filepath.Clean(srcRoot)
	return syncPaths(srcRoot, Walk(srcRoot), dstRoots, report)
}

func syncPaths(srcRoot string, paths *PathSet, dstRoots []string, report Reporter) error {
	var errs []error

	for path := range paths.All() {
		info, err := os.Lstat(path)
		if err != nil {
			// Vanished since the walk; the monitor will see the removal.
			continue
		}

		op := model.OpCopy
		if info.IsDir() {
			op = model.OpMkdir
		}

		for _, dstRoot := range dstRoots {
			dst, err := destPath(srcRoot, dstRoot, path)
			if err == nil {
				err = syncEntry(path, dst, srcRoot, dstRoot, info.IsDir())
			} else {
				dst = dstRoot
			}

			report.report(op, path, dst, err)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func syncEntry(src, dst, srcRoot, dstRoot string, isDir bool) error {
	if isDir {
		if err := util.CreateDirs(dst); err != nil {
			return &DirError{Op: "create dir", Path: dst, Err: err}
		}
		return nil
	}

	if err := util.CreateDirs(filepath.Dir(dst)); err != nil {
		return &DirError{Op: "create parent", Path: dst, Err: err}
	}

	return CopyEntry(src, dst, srcRoot, dstRoot)
}
