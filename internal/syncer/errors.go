package syncer

import (
	"errors"
	"fmt"
	"mirrorsync/internal/util"
)

// ErrSourceGone is returned by Monitor.Run when the source root has been
// removed. It is the expected end of a monitoring session, not a failure.
var ErrSourceGone = errors.New("source root removed")

var (
	ErrInvalidSource        = errors.New("source is not an existing directory")
	ErrJobActive            = errors.New("job already active")
	ErrNestedDestination    = errors.New("destination is inside source")
	ErrSourceInDestination  = errors.New("source is inside destination")
	ErrNotDirectory         = errors.New("destination exists and is not a directory")
	ErrDuplicateDestination = errors.New("destination listed more than once")
	ErrPathTooLong          = util.ErrPathTooLong
)

// IoError is a failure to open, read, write or close a regular file.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// LinkError is a failure to read or create a symbolic link.
type LinkError struct {
	Op   string
	Path string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// DirError is a failure to create, read or remove a directory.
type DirError struct {
	Op   string
	Path string
	Err  error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DirError) Unwrap() error { return e.Err }

// ValidationError rejects a job or path before anything is modified.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ChannelError is a failure to read the next batch of notifications. It
// ends the monitoring session.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("failed to read notifications: %v", e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
