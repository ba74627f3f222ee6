package watch

import (
	"path/filepath"
	"strings"
)

// Table maps watch ids to the directory they observe. It belongs to a single
// monitoring session and is not safe for concurrent use.
type Table struct {
	paths map[int]string
}

func NewTable() *Table {
	return &Table{paths: make(map[int]string)}
}

// Insert records id -> path. The kernel hands back the same id when an
// already watched directory is watched again (for example after a move), so
// an existing entry is overwritten.
func (t *Table) Insert(id int, path string) {
	t.paths[id] = path
}

func (t *Table) Lookup(id int) (string, bool) {
	p, ok := t.paths[id]
	return p, ok
}

func (t *Table) Remove(id int) {
	delete(t.paths, id)
}

// PruneTree drops every entry for path or a directory below it and returns
// the dropped ids.
func (t *Table) PruneTree(path string) []int {
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)

	var ids []int
	for id, p := range t.paths {
		if p == path || strings.HasPrefix(p, prefix) {
			ids = append(ids, id)
			delete(t.paths, id)
		}
	}

	return ids
}

func (t *Table) Len() int {
	return len(t.paths)
}
