package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Fsnotify adapts fsnotify to the Notifier model. fsnotify reports full
// paths and hides kernel watch ids, so ids are assigned here per watched
// directory and every event is split back into (parent id, name).
//
// fsnotify has no close-after-write event. New regular files are therefore
// reported as MovedIn so they are copied right away, and every write is
// reported as Written.
type Fsnotify struct {
	w     *fsnotify.Watcher
	ids   map[string]int
	paths map[int]string
	// removed directories whose second Remove or Rename is still due
	gone   map[string]struct{}
	nextID int
	max    int
}

func NewFsnotify(bufferSize int) (*Fsnotify, error) {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	w, err := fsnotify.NewBufferedWatcher(uint(bufferSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Fsnotify{
		w:     w,
		ids:   make(map[string]int),
		paths: make(map[int]string),
		gone:  make(map[string]struct{}),
		max:   bufferSize,
	}, nil
}

func (f *Fsnotify) AddWatch(path string) (int, error) {
	path = filepath.Clean(path)
	if id, ok := f.ids[path]; ok {
		return id, nil
	}

	if err := f.w.Add(path); err != nil {
		if errors.Is(err, fsnotify.ErrClosed) {
			return -1, ErrClosed
		}
		return -1, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	delete(f.gone, path)
	f.nextID++
	f.ids[path] = f.nextID
	f.paths[f.nextID] = path

	return f.nextID, nil
}

func (f *Fsnotify) RemoveWatch(id int) error {
	path, ok := f.paths[id]
	if !ok {
		return fmt.Errorf("unknown watch %d", id)
	}

	f.forget(path)

	if err := f.w.Remove(path); err != nil {
		return fmt.Errorf("failed to remove watch %s: %w", path, err)
	}

	return nil
}

func (f *Fsnotify) ReadBatch() ([]Event, error) {
	var batch []Event

	select {
	case ev, ok := <-f.w.Events:
		if !ok {
			return nil, ErrClosed
		}
		batch = f.translate(ev)

	case err, ok := <-f.w.Errors:
		if !ok {
			return nil, ErrClosed
		}
		if errors.Is(err, fsnotify.ErrEventOverflow) {
			return []Event{{WatchID: -1, Kind: Overflow}}, nil
		}
		return nil, fmt.Errorf("watcher error: %w", err)
	}

	for range f.max {
		select {
		case ev, ok := <-f.w.Events:
			if !ok {
				return batch, nil
			}
			batch = append(batch, f.translate(ev)...)
		default:
			return batch, nil
		}
	}

	return batch, nil
}

func (f *Fsnotify) Close() error {
	return f.w.Close()
}

func (f *Fsnotify) forget(path string) {
	if id, ok := f.ids[path]; ok {
		delete(f.ids, path)
		delete(f.paths, id)
	}
}

func (f *Fsnotify) translate(ev fsnotify.Event) []Event {
	name := filepath.Clean(ev.Name)
	parentID, parentOK := f.ids[filepath.Dir(name)]
	selfID, watched := f.ids[name]
	base := filepath.Base(name)

	var out []Event

	switch {
	case ev.Op.Has(fsnotify.Create):
		delete(f.gone, name)
		if !parentOK {
			break
		}

		info, err := os.Lstat(name)
		if err != nil {
			break
		}

		kind := MovedIn
		if info.IsDir() {
			kind = Created
		}
		out = append(out, Event{WatchID: parentID, Kind: kind, IsDir: info.IsDir(), Name: base})

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		kind := Deleted
		if ev.Op.Has(fsnotify.Rename) {
			kind = MovedOut
		}

		// A watched directory is reported twice, once by its own watch and
		// once by its parent's. The first report already covered both.
		if _, ok := f.gone[name]; ok && !watched {
			delete(f.gone, name)
			break
		}

		if parentOK {
			out = append(out, Event{WatchID: parentID, Kind: kind, IsDir: watched, Name: base})
		}

		if watched {
			out = append(out, Event{WatchID: selfID, Kind: SelfDeleted, IsDir: true})
			f.forget(name)
			f.gone[name] = struct{}{}
			if kind == MovedOut {
				_ = f.w.Remove(name)
			}
		}

	case ev.Op.Has(fsnotify.Write):
		if parentOK && !watched {
			out = append(out, Event{WatchID: parentID, Kind: Written, Name: base})
		}
	}

	return out
}
