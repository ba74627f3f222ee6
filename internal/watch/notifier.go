package watch

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("notifier closed")

// Notifier is a kernel change-notification channel.
//
// ReadBatch blocks until at least one event is available and returns all
// events decoded from one read. Close unblocks a pending ReadBatch, which
// then returns ErrClosed. AddWatch and RemoveWatch must not be called
// concurrently with each other.
type Notifier interface {
	AddWatch(path string) (int, error)
	RemoveWatch(id int) error
	ReadBatch() ([]Event, error)
	Close() error
}

const (
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// New creates a notifier for the named backend. bufferSize is the number of
// events a single read can hold.
func New(backend string, bufferSize int) (Notifier, error) {
	switch backend {
	case BackendInotify, "":
		return NewInotify(bufferSize)
	case BackendFsnotify:
		return NewFsnotify(bufferSize)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}
