// Package btree is the in-memory B-tree store backing class constraints.
// One B-tree may hold the rows of several classes of an inheritance family;
// rows remember the class they belong to so a single class can be detached
// without destroying the tree.
package btree

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	gbtree "github.com/google/btree"
	"github.com/juju/errors"
	"golang.org/x/exp/maps"

	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

const (
	ErrNotFound        = errors.ConstError("btree not found")
	ErrUniqueViolation = errors.ConstError("duplicate key in unique btree")
)

// DefaultDegree is used when the store is created with a non-positive degree.
const DefaultDegree = 32

// IndexSpec describes the key layout of a B-tree.
type IndexSpec struct {
	Name          string
	Columns       int
	Descending    []bool
	PrefixLengths []int
	Unique        bool
	Reverse       bool
}

// Row is one instance as seen by an index: its OID and key.
type Row struct {
	OID primitives.OID
	Key Key
}

// LoadSource is the rows one class contributes to a bulk load.
type LoadSource struct {
	Class string
	Rows  []Row
}

// Entry is a row stored in a B-tree.
type Entry struct {
	Key   Key
	Class string
	OID   primitives.OID
}

type tree struct {
	spec    IndexSpec
	items   *gbtree.BTreeG[Entry]
	classes map[string]int
}

func (t *tree) less(a, b Entry) bool {
	if c := t.spec.compareKeys(a.Key, b.Key); c != 0 {
		return c < 0
	}
	if c := cmp.Compare(a.Class, b.Class); c != 0 {
		return c < 0
	}
	return a.OID < b.OID
}

// duplicate returns an entry with the same key as e, if the tree has one.
func (t *tree) duplicate(e Entry) (Entry, bool) {
	var found Entry
	var ok bool
	t.items.AscendGreaterOrEqual(Entry{Key: e.Key}, func(item Entry) bool {
		if t.spec.compareKeys(item.Key, e.Key) != 0 {
			return false
		}
		if item.Class != e.Class || item.OID != e.OID {
			found, ok = item, true
			return false
		}
		return true
	})
	return found, ok
}

func (t *tree) insert(e Entry) error {
	if t.spec.Unique && !e.Key.hasNull() {
		if dup, ok := t.duplicate(e); ok {
			return fmt.Errorf("%w: key %s of %s %v collides with %s %v",
				ErrUniqueViolation, e.Key, e.Class, e.OID, dup.Class, dup.OID)
		}
	}
	if _, replaced := t.items.ReplaceOrInsert(e); !replaced {
		t.classes[e.Class]++
	}
	return nil
}

func (t *tree) remove(e Entry) {
	if _, ok := t.items.Delete(e); ok {
		t.classes[e.Class]--
		if t.classes[e.Class] == 0 {
			delete(t.classes, e.Class)
		}
	}
}

// Store allocates and maintains B-trees.
type Store struct {
	mu     sync.RWMutex
	degree int
	next   primitives.BTreeID
	trees  map[primitives.BTreeID]*tree
}

// NewStore creates an empty store whose trees use the given degree.
func NewStore(degree int) *Store {
	if degree <= 1 {
		degree = DefaultDegree
	}
	return &Store{
		degree: degree,
		trees:  make(map[primitives.BTreeID]*tree),
	}
}

// Allocate creates an empty B-tree and returns its identifier.
func (s *Store) Allocate(spec IndexSpec) (primitives.BTreeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	id := s.next
	t := &tree{spec: spec, classes: make(map[string]int)}
	t.items = gbtree.NewG(s.degree, t.less)
	s.trees[id] = t

	logging.WithBTree(id).Debug("btree allocated", "name", spec.Name, "unique", spec.Unique)
	return id, nil
}

func (s *Store) get(id primitives.BTreeID) (*tree, error) {
	t, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Load bulk-inserts the rows of every source. Either all rows are inserted or,
// on a uniqueness violation, none are.
func (s *Store) Load(id primitives.BTreeID, sources []LoadSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(id)
	if err != nil {
		return err
	}
	var loaded []Entry
	for _, src := range sources {
		for _, row := range src.Rows {
			e := Entry{Key: t.spec.normalize(row.Key), Class: src.Class, OID: row.OID}
			if err := t.insert(e); err != nil {
				for _, done := range loaded {
					t.remove(done)
				}
				return err
			}
			loaded = append(loaded, e)
		}
	}
	logging.WithBTree(id).Debug("btree loaded", "rows", len(loaded), "sources", len(sources))
	return nil
}

// Insert adds one row of class to the tree.
func (s *Store) Insert(id primitives.BTreeID, class string, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(id)
	if err != nil {
		return err
	}
	return t.insert(Entry{Key: t.spec.normalize(row.Key), Class: class, OID: row.OID})
}

// DeleteRow removes one row of class from the tree.
func (s *Store) DeleteRow(id primitives.BTreeID, class string, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.remove(Entry{Key: t.spec.normalize(row.Key), Class: class, OID: row.OID})
	return nil
}

// Delete destroys a tree.
func (s *Store) Delete(id primitives.BTreeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(id); err != nil {
		return err
	}
	delete(s.trees, id)
	logging.WithBTree(id).Info("btree deleted")
	return nil
}

// RemoveClassRows removes the rows of class from a shared tree and returns
// how many were removed. The tree itself survives.
func (s *Store) RemoveClassRows(class string, id primitives.BTreeID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(id)
	if err != nil {
		return 0, err
	}
	var doomed []Entry
	t.items.Ascend(func(e Entry) bool {
		if e.Class == class {
			doomed = append(doomed, e)
		}
		return true
	})
	for _, e := range doomed {
		t.remove(e)
	}
	logging.WithBTree(id).Debug("class rows removed", "class", class, "rows", len(doomed))
	return len(doomed), nil
}

// Exists reports whether the tree is allocated.
func (s *Store) Exists(id primitives.BTreeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trees[id]
	return ok
}

// Len returns the number of rows in the tree, 0 if it does not exist.
func (s *Store) Len(id primitives.BTreeID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.trees[id]; ok {
		return t.items.Len()
	}
	return 0
}

// Classes returns the classes that have rows in the tree, sorted.
func (s *Store) Classes(id primitives.BTreeID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[id]
	if !ok {
		return nil
	}
	classes := maps.Keys(t.classes)
	slices.Sort(classes)
	return classes
}

// Scan returns every entry of the tree in key order.
func (s *Store) Scan(id primitives.BTreeID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, t.items.Len())
	t.items.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out, nil
}

// IDs returns the identifiers of all allocated trees, sorted.
func (s *Store) IDs() []primitives.BTreeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := maps.Keys(s.trees)
	slices.Sort(ids)
	return ids
}
