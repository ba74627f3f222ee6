//go:build !linux

package watch

import "errors"

func NewInotify(_ int) (Notifier, error) {
	return nil, errors.New("inotify backend requires linux, use the fsnotify backend")
}
