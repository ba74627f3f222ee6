package syncer

import (
	"errors"
	"io"
	"io/fs"
	"mirrorsync/internal/util"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const copyBufferSize = 32 * 1024

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// CopyEntry copies the entry at srcPath to dstPath. The entry type is taken
// from Lstat, so a symlink is copied as a link:
//   - absolute targets under srcRoot are rewritten to point under dstRoot,
//     anything else is copied verbatim even if it dangles at the destination
//   - directories are a no-op, callers create them ahead of their contents
//   - regular files are streamed into a truncated destination
//
// The source mode bits are kept, plus owner read and write. Ownership and
// times are not preserved.
func CopyEntry(srcPath, dstPath, srcRoot, dstRoot string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return &IoError{Op: "stat", Path: srcPath, Err: err}
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return copySymlink(srcPath, dstPath, srcRoot, dstRoot)
	case info.IsDir():
		return nil
	default:
		return copyFile(srcPath, dstPath, info.Mode().Perm())
	}
}

func copySymlink(srcPath, dstPath, srcRoot, dstRoot string) error {
	target, err := os.Readlink(srcPath)
	if err != nil {
		return &LinkError{Op: "read link", Path: srcPath, Err: err}
	}

	target = rewriteTarget(target, srcRoot, dstRoot)

	if err := os.Symlink(target, dstPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			if existing, rerr := os.Readlink(dstPath); rerr == nil && existing == target {
				return nil
			}
		}
		return &LinkError{Op: "create link", Path: dstPath, Err: err}
	}

	return nil
}

// rewriteTarget maps an absolute link target inside srcRoot onto dstRoot.
// The prefix must end on a path component: with srcRoot /src a target of
// /src_backup/f is external and left alone.
func rewriteTarget(target, srcRoot, dstRoot string) string {
	if !filepath.IsAbs(target) {
		return target
	}

	srcRoot = filepath.Clean(srcRoot)
	rest, ok := strings.CutPrefix(target, srcRoot)
	if !ok {
		return target
	}

	if rest != "" && rest[0] != filepath.Separator && srcRoot != string(filepath.Separator) {
		return target
	}

	return filepath.Join(dstRoot, rest)
}

func copyFile(srcPath, dstPath string, perm fs.FileMode) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return &IoError{Op: "open src", Path: srcPath, Err: err}
	}

	defer func(src *os.File) {
		_ = src.Close()
	}(src)

	// Never write through a link left at the destination.
	if info, err := os.Lstat(dstPath); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := util.RemoveIfExists(dstPath); err != nil {
			return &IoError{Op: "replace link", Path: dstPath, Err: err}
		}
	}

	dst, err := openTruncated(dstPath, perm)
	if err != nil {
		return &IoError{Op: "open dst", Path: dstPath, Err: err}
	}

	if err := streamCopy(dst, src); err != nil {
		_ = dst.Close()
		return &IoError{Op: "copy", Path: dstPath, Err: err}
	}

	if err := dst.Close(); err != nil {
		return &IoError{Op: "close dst", Path: dstPath, Err: err}
	}

	return nil
}

// openTruncated opens dstPath for writing, discarding any content. The
// owner always keeps read and write access so a later copy can overwrite a
// file mirrored from a read-only source.
func openTruncated(dstPath string, perm fs.FileMode) (*os.File, error) {
	perm |= 0o600

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err == nil || !errors.Is(err, fs.ErrPermission) {
		return f, err
	}

	info, serr := os.Lstat(dstPath)
	if serr != nil || !info.Mode().IsRegular() {
		return nil, err
	}
	if cerr := os.Chmod(dstPath, info.Mode().Perm()|0o600); cerr != nil {
		return nil, err
	}

	return os.OpenFile(dstPath, os.O_WRONLY|os.O_TRUNC, perm)
}

// streamCopy moves data through a fixed-size buffer until EOF.
func streamCopy(dst io.Writer, src io.Reader) error {
	bufPtr := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(bufPtr)
	buf := *bufPtr

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			if werr != nil {
				return werr
			}
			if w != n {
				return io.ErrShortWrite
			}
		}

		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
