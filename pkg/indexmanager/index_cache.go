package indexmanager

import (
	"classdb/pkg/primitives"
)

type loadKey struct {
	tree  primitives.BTreeID
	class string
}

// loadCache records which class rows are already in which tree.
type loadCache struct {
	loaded map[loadKey]bool
}

func newLoadCache() *loadCache {
	return &loadCache{loaded: make(map[loadKey]bool)}
}

// Has reports whether the rows of class were loaded into id.
func (lc *loadCache) Has(id primitives.BTreeID, class string) bool {
	return lc.loaded[loadKey{id, class}]
}

// Mark records that the rows of class are in id.
func (lc *loadCache) Mark(id primitives.BTreeID, class string) {
	lc.loaded[loadKey{id, class}] = true
}
