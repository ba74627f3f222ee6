package syncer

import (
	"iter"
	"mirrorsync/internal/util"
	"slices"
)

// PathSet is an ordered collection of paths. Order is significant: Walk
// produces parents before their children and copies follow that order.
type PathSet struct {
	paths []string
}

func (s *PathSet) Add(path string) {
	s.paths = append(s.paths, path)
}

func (s *PathSet) Len() int {
	return len(s.paths)
}

func (s *PathSet) All() iter.Seq[string] {
	return slices.Values(s.paths)
}

// Paths returns a copy of the collected paths.
func (s *PathSet) Paths() []string {
	return slices.Clone(s.paths)
}

// Walk enumerates every entry below root, depth first, each directory before
// its children and siblings in filesystem read order. Symlinked directories
// are listed but not entered. Unreadable directories are skipped.
func Walk(root string) *PathSet {
	set := &PathSet{}

	_ = util.Visit(root, func(e util.Entry) error {
		set.Add(e.Path)
		return nil
	})

	return set
}
