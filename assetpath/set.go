package assetpath

import "sort"

// Set accumulates asset paths for one discovery run.
// It is not safe for concurrent use.
type Set struct {
	paths map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{paths: make(map[string]struct{})}
}

// Add classifies raw and keeps it when it is a static or media asset.
// It reports whether raw was an asset (new or already present).
func (s *Set) Add(raw string) bool {
	c := Classify(raw)
	if !c.IsAsset() {
		return false
	}
	s.paths[c.Path] = struct{}{}
	return true
}

// AddAll adds each entry of paths and returns how many were assets.
func (s *Set) AddAll(paths []string) int {
	n := 0
	for _, p := range paths {
		if s.Add(p) {
			n++
		}
	}
	return n
}

// Len returns the number of distinct paths.
func (s *Set) Len() int { return len(s.paths) }

// Contains reports whether p (already normalized) is in the set.
func (s *Set) Contains(p string) bool {
	_, ok := s.paths[p]
	return ok
}

// Sorted returns the paths in lexicographic order.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
