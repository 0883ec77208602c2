// Package heap stores class instances in memory. Newly inserted instances stay
// pending until the class heap is flushed; schema changes flush a class before
// its representation is replaced.
package heap

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/juju/errors"

	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

const ErrInstanceNotFound = errors.ConstError("instance not found")

// Instance is one stored object.
type Instance struct {
	OID    primitives.OID
	Class  string
	Repr   primitives.ReprID
	Values map[primitives.AttrID]any
}

// Clone returns a copy of the instance with its own value map.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Values = maps.Clone(i.Values)
	return &c
}

type classHeap struct {
	stored  map[primitives.OID]*Instance
	pending map[primitives.OID]*Instance
	flushes int
}

func newClassHeap() *classHeap {
	return &classHeap{
		stored:  make(map[primitives.OID]*Instance),
		pending: make(map[primitives.OID]*Instance),
	}
}

// Heap holds the instances of every class.
type Heap struct {
	mu      sync.RWMutex
	next    primitives.OID
	classes map[string]*classHeap
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{classes: make(map[string]*classHeap)}
}

func (h *Heap) class(name string) *classHeap {
	ch, ok := h.classes[name]
	if !ok {
		ch = newClassHeap()
		h.classes[name] = ch
	}
	return ch
}

// Insert adds a pending instance of class and returns its OID.
func (h *Heap) Insert(class string, repr primitives.ReprID, values map[primitives.AttrID]any) primitives.OID {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	h.class(class).pending[h.next] = &Instance{
		OID:    h.next,
		Class:  class,
		Repr:   repr,
		Values: maps.Clone(values),
	}
	return h.next
}

// Delete removes an instance, pending or stored.
func (h *Heap) Delete(class string, oid primitives.OID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.classes[class]
	if !ok {
		return fmt.Errorf("%w: %s of %q", ErrInstanceNotFound, oid, class)
	}
	if _, ok := ch.pending[oid]; ok {
		delete(ch.pending, oid)
		return nil
	}
	if _, ok := ch.stored[oid]; ok {
		delete(ch.stored, oid)
		return nil
	}
	return fmt.Errorf("%w: %s of %q", ErrInstanceNotFound, oid, class)
}

// Get returns a copy of one instance.
func (h *Heap) Get(class string, oid primitives.OID) (*Instance, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ch, ok := h.classes[class]; ok {
		if inst, ok := ch.pending[oid]; ok {
			return inst.Clone(), nil
		}
		if inst, ok := ch.stored[oid]; ok {
			return inst.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s of %q", ErrInstanceNotFound, oid, class)
}

// Scan returns copies of every instance of class in OID order.
func (h *Heap) Scan(class string) []*Instance {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.classes[class]
	if !ok {
		return nil
	}
	out := make([]*Instance, 0, len(ch.stored)+len(ch.pending))
	for _, inst := range ch.stored {
		out = append(out, inst.Clone())
	}
	for _, inst := range ch.pending {
		out = append(out, inst.Clone())
	}
	slices.SortFunc(out, func(a, b *Instance) int { return int(a.OID) - int(b.OID) })
	return out
}

// HasInstances reports whether class has any instance, flushed or not.
func (h *Heap) HasInstances(class string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.classes[class]
	return ok && len(ch.stored)+len(ch.pending) > 0
}

// Count returns the number of instances of class.
func (h *Heap) Count(class string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ch, ok := h.classes[class]; ok {
		return len(ch.stored) + len(ch.pending)
	}
	return 0
}

// Pending returns the number of unflushed instances of class.
func (h *Heap) Pending(class string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ch, ok := h.classes[class]; ok {
		return len(ch.pending)
	}
	return 0
}

// FlushAllInstances writes every pending instance of class to the store.
func (h *Heap) FlushAllInstances(class string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.classes[class]
	if !ok {
		return nil
	}
	n := len(ch.pending)
	maps.Copy(ch.stored, ch.pending)
	clear(ch.pending)
	ch.flushes++
	logging.WithClass(class).Debug("instances flushed", "count", n)
	return nil
}

// DropClass removes every instance of class.
func (h *Heap) DropClass(class string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.classes, class)
}
