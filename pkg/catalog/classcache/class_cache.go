// Package classcache caches per-class lookups derived from the catalog, such
// as the transitive subclass closure used by lock ordering and B-tree family
// loads.
package classcache

import (
	"container/list"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/maps"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/primitives"
)

// ClassInfo holds cached data about one class.
type ClassInfo struct {
	Class *schema.Class
	// Subclasses is the transitive subclass closure, sorted.
	Subclasses   []string
	LastAccessed time.Time
	lruElement   *list.Element
}

// ID returns the class identifier.
func (ci *ClassInfo) ID() primitives.ClassID {
	return ci.Class.ID
}

// cacheMetrics tracks cache performance for observability
type cacheMetrics struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Invalidations int64
	Size          int
}

// ClassCache is an in-memory cache over catalog lookups. It keeps
// bidirectional mappings between class names and identifiers.
//
// Design:
//   - Derived data only; the catalog manager stays the source of truth
//   - Thread-safe for concurrent access
//   - LRU eviction when a maximum size is configured
//   - Entries are invalidated whenever a class is installed or removed
type ClassCache struct {
	nameToClass map[string]*ClassInfo
	idToClass   map[primitives.ClassID]*ClassInfo
	lruList     *list.List
	maxSize     int
	metrics     cacheMetrics
	mutex       sync.RWMutex
}

// NewClassCache creates an empty cache. If maxSize is 0 the cache grows
// without bounds; otherwise the least recently used entry is evicted.
func NewClassCache(maxSize int) *ClassCache {
	return &ClassCache{
		nameToClass: make(map[string]*ClassInfo),
		idToClass:   make(map[primitives.ClassID]*ClassInfo),
		lruList:     list.New(),
		maxSize:     maxSize,
	}
}

// Put caches the lookups of class, replacing any entry with the same name
// or identifier.
func (cc *ClassCache) Put(class *schema.Class, subclasses []string) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	cc.removeExisting(class.Name, class.ID)
	if cc.maxSize > 0 && len(cc.nameToClass) >= cc.maxSize {
		cc.evictLRU()
	}

	subs := slices.Clone(subclasses)
	slices.Sort(subs)
	info := &ClassInfo{Class: class, Subclasses: subs, LastAccessed: time.Now()}
	cc.nameToClass[class.Name] = info
	cc.idToClass[class.ID] = info
	info.lruElement = cc.lruList.PushFront(class.Name)
}

// Get returns the cached entry for name.
func (cc *ClassCache) Get(name string) (*ClassInfo, bool) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	info, exists := cc.nameToClass[name]
	if !exists {
		cc.metrics.misses.Add(1)
		return nil, false
	}
	cc.metrics.hits.Add(1)
	cc.markAsUsed(info)
	return info, true
}

// GetByID returns the cached entry for a class identifier.
func (cc *ClassCache) GetByID(id primitives.ClassID) (*ClassInfo, bool) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	info, exists := cc.idToClass[id]
	if !exists {
		cc.metrics.misses.Add(1)
		return nil, false
	}
	cc.metrics.hits.Add(1)
	cc.markAsUsed(info)
	return info, true
}

// InvalidateClass drops the entry of name and of every class whose cached
// subclass closure contains it.
func (cc *ClassCache) InvalidateClass(name string) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	for n, info := range cc.nameToClass {
		if n == name || slices.Contains(info.Subclasses, name) {
			cc.remove(info)
			cc.metrics.invalidations.Add(1)
		}
	}
}

// Clear removes every entry.
func (cc *ClassCache) Clear() {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	clear(cc.nameToClass)
	clear(cc.idToClass)
	cc.lruList.Init()
}

// Names returns the cached class names, sorted.
func (cc *ClassCache) Names() []string {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()
	names := maps.Keys(cc.nameToClass)
	slices.Sort(names)
	return names
}

// Stats returns the cache counters.
func (cc *ClassCache) Stats() Stats {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()
	return Stats{
		Hits:          cc.metrics.hits.Load(),
		Misses:        cc.metrics.misses.Load(),
		Evictions:     cc.metrics.evictions.Load(),
		Invalidations: cc.metrics.invalidations.Load(),
		Size:          len(cc.nameToClass),
	}
}

// ValidateIntegrity verifies that the name and identifier maps agree.
func (cc *ClassCache) ValidateIntegrity() error {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()

	if len(cc.nameToClass) != len(cc.idToClass) {
		return errIntegrity("map size mismatch")
	}
	for name, info := range cc.nameToClass {
		if other, exists := cc.idToClass[info.ID()]; !exists || other != info {
			return errIntegrity("class " + name + " missing from ID map")
		}
	}
	return nil
}

// removeExisting removes any entry with the given name or identifier.
// Must be called with write lock held.
func (cc *ClassCache) removeExisting(name string, id primitives.ClassID) {
	if info, exists := cc.nameToClass[name]; exists {
		cc.remove(info)
	}
	if info, exists := cc.idToClass[id]; exists {
		cc.remove(info)
	}
}

// Must be called with write lock held.
func (cc *ClassCache) remove(info *ClassInfo) {
	if info.lruElement != nil {
		cc.lruList.Remove(info.lruElement)
		info.lruElement = nil
	}
	delete(cc.nameToClass, info.Class.Name)
	delete(cc.idToClass, info.ID())
}

// evictLRU removes the least recently used entry.
// Must be called with write lock held.
func (cc *ClassCache) evictLRU() {
	elem := cc.lruList.Back()
	if elem == nil {
		return
	}
	if info, exists := cc.nameToClass[elem.Value.(string)]; exists {
		cc.remove(info)
	} else {
		cc.lruList.Remove(elem)
	}
	cc.metrics.evictions.Add(1)
}

// markAsUsed moves info to the front of the LRU list.
// Must be called with write lock held.
func (cc *ClassCache) markAsUsed(info *ClassInfo) {
	if info.lruElement != nil {
		cc.lruList.MoveToFront(info.lruElement)
	}
	info.LastAccessed = time.Now()
}

type errIntegrity string

func (e errIntegrity) Error() string { return "cache integrity violation: " + string(e) }
