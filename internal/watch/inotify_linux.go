//go:build linux

package watch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	watchMask = unix.IN_CREATE | unix.IN_MOVED_TO | unix.IN_CLOSE_WRITE |
		unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF |
		unix.IN_ONLYDIR

	nameMax = 255
)

// Inotify reads raw inotify records. The descriptor is opened non-blocking
// and wrapped in an *os.File so reads park on the runtime poller and Close
// interrupts them.
type Inotify struct {
	file      *os.File
	rc        syscall.RawConn
	buf       []byte
	closeOnce sync.Once
	closeErr  error
}

func NewInotify(bufferSize int) (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to init inotify: %w", err)
	}

	file := os.NewFile(uintptr(fd), "inotify")
	rc, err := file.SyscallConn()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to get inotify conn: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1
	}

	return &Inotify{
		file: file,
		rc:   rc,
		buf:  make([]byte, bufferSize*(unix.SizeofInotifyEvent+nameMax+1)),
	}, nil
}

func (n *Inotify) AddWatch(path string) (int, error) {
	var (
		wd    int
		opErr error
	)

	err := n.rc.Control(func(fd uintptr) {
		wd, opErr = unix.InotifyAddWatch(int(fd), path, watchMask)
	})
	if err != nil {
		return -1, ErrClosed
	}
	if opErr != nil {
		return -1, fmt.Errorf("failed to watch %s: %w", path, opErr)
	}

	return wd, nil
}

func (n *Inotify) RemoveWatch(id int) error {
	var opErr error

	err := n.rc.Control(func(fd uintptr) {
		_, opErr = unix.InotifyRmWatch(int(fd), uint32(id))
	})
	if err != nil {
		return ErrClosed
	}
	if opErr != nil {
		return fmt.Errorf("failed to remove watch %d: %w", id, opErr)
	}

	return nil
}

func (n *Inotify) ReadBatch() ([]Event, error) {
	count, err := n.file.Read(n.buf)
	if err != nil {
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to read inotify events: %w", err)
	}

	if count < unix.SizeofInotifyEvent {
		return nil, fmt.Errorf("short inotify read: %d bytes", count)
	}

	return decode(n.buf[:count]), nil
}

func (n *Inotify) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.file.Close()
	})

	return n.closeErr
}

// decode walks a read buffer record by record. Each record is a fixed
// header followed by a NUL padded name of header.len bytes, so the cursor
// advances by a different amount for every record.
func decode(buf []byte) []Event {
	var events []Event

	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		wd := int32(binary.NativeEndian.Uint32(buf[off:]))
		mask := binary.NativeEndian.Uint32(buf[off+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[off+12:]))

		start := off + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			break
		}
		off = end

		kind := kindOf(mask)
		if kind == 0 {
			continue
		}

		raw := buf[start:end]
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}

		events = append(events, Event{
			WatchID: int(wd),
			Kind:    kind,
			IsDir:   mask&unix.IN_ISDIR != 0,
			Name:    string(raw),
		})
	}

	return events
}

func kindOf(mask uint32) Kind {
	switch {
	case mask&unix.IN_Q_OVERFLOW != 0:
		return Overflow
	case mask&unix.IN_IGNORED != 0:
		return Ignored
	case mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0:
		return SelfDeleted
	case mask&unix.IN_CREATE != 0:
		return Created
	case mask&unix.IN_MOVED_TO != 0:
		return MovedIn
	case mask&unix.IN_CLOSE_WRITE != 0:
		return Written
	case mask&unix.IN_DELETE != 0:
		return Deleted
	case mask&unix.IN_MOVED_FROM != 0:
		return MovedOut
	default:
		return 0
	}
}
