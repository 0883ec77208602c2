// Package trigger keeps the per-class trigger schema caches. The schema engine
// merges and drops these caches when class definitions change but never
// interprets their entries.
package trigger

import (
	"slices"
	"sync/atomic"
)

// Entry binds one trigger to an event of a class.
type Entry struct {
	Event   string
	Trigger string
	// Origin is the class on which the trigger was defined.
	Origin string
}

// SchemaCache is the set of triggers that fire for a class.
type SchemaCache struct {
	Entries []Entry
}

// Clone returns a copy of the cache; nil stays nil.
func (c *SchemaCache) Clone() *SchemaCache {
	if c == nil {
		return nil
	}
	return &SchemaCache{Entries: slices.Clone(c.Entries)}
}

// Local returns the entries defined on the named class, or nil if there are none.
func (c *SchemaCache) Local(class string) *SchemaCache {
	if c == nil {
		return nil
	}
	var local []Entry
	for _, e := range c.Entries {
		if e.Origin == class {
			local = append(local, e)
		}
	}
	if len(local) == 0 {
		return nil
	}
	return &SchemaCache{Entries: local}
}

// Len returns the number of entries.
func (c *SchemaCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

func (c *SchemaCache) contains(e Entry) bool {
	return slices.Contains(c.Entries, e)
}

// Manager merges and invalidates schema caches.
type Manager struct {
	dropped atomic.Int64
}

// NewManager creates a trigger cache manager.
func NewManager() *Manager {
	return &Manager{}
}

// MergeSchemaCache returns a new cache holding the entries of dst followed by
// the entries of src that dst lacks. Neither argument is modified.
func (m *Manager) MergeSchemaCache(dst, src *SchemaCache) *SchemaCache {
	if src == nil {
		return dst.Clone()
	}
	merged := dst.Clone()
	if merged == nil {
		merged = &SchemaCache{}
	}
	for _, e := range src.Entries {
		if !merged.contains(e) {
			merged.Entries = append(merged.Entries, e)
		}
	}
	return merged
}

// DeleteSchemaCache releases a cache that no class references anymore.
func (m *Manager) DeleteSchemaCache(c *SchemaCache) {
	if c == nil {
		return
	}
	c.Entries = nil
	m.dropped.Add(1)
}

// Dropped returns how many caches were released.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}
