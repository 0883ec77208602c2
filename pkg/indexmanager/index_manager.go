// Package indexmanager allocates, shares and releases the B-trees backing
// class constraints while a schema change is installed.
//
// A B-tree is owned by the class whose attributes introduce its constraint.
// Subclasses inheriting the constraint unchanged share the owner's tree and
// only ever detach their own rows from it; the owner alone may delete it.
package indexmanager

import (
	"context"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/logging"
	"classdb/pkg/primitives"
	"classdb/pkg/storage/btree"
	"classdb/pkg/storage/heap"
)

const component = "indexmanager"

// TxContext is the transaction tree changes are recorded in. Destructive
// changes are deferred to its commit.
type TxContext = *transaction.TransactionContext

// BTreeStore is the B-tree collaborator. It never sees pages, only trees.
type BTreeStore interface {
	Allocate(spec btree.IndexSpec) (primitives.BTreeID, error)
	Load(id primitives.BTreeID, sources []btree.LoadSource) error
	Delete(id primitives.BTreeID) error
	RemoveClassRows(class string, id primitives.BTreeID) (int, error)
	Exists(id primitives.BTreeID) bool
}

// Heap is the instance store read while bulk-loading.
type Heap interface {
	HasInstances(class string) bool
	Scan(class string) []*heap.Instance
}

// CatalogReader defines the catalog lookups the allocator needs.
// This avoids circular dependencies with the catalog manager.
type CatalogReader interface {
	// Definition returns the effective definition of a class: its flattened
	// pending edit if it has one, otherwise the committed class.
	Definition(name string) (schema.Definition, bool)

	// Class returns the committed class, including classes installed
	// earlier in the same schema change.
	Class(name string) (*schema.Class, bool)

	// Subclasses returns every direct and indirect subclass of name.
	Subclasses(name string) []string

	// Referencers returns the classes other than except whose effective
	// definition has a constraint backed by id.
	Referencers(id primitives.BTreeID, except string) []string
}

// ReferenceUpdater records reverse foreign-key references on a class other
// than the one being installed.
type ReferenceUpdater interface {
	AddReference(ctx context.Context, tx TxContext, class, constraint string, ref schema.ForeignRef) error
	DropReference(ctx context.Context, tx TxContext, class, constraint, fromClass, fromConstraint string) error
}

// IndexManager manages constraint B-trees during schema installs.
// It handles:
//   - Allocating and bulk-loading trees for constraints a class owns
//   - Sharing an owner's tree with subclasses that inherit the constraint
//   - Releasing or detaching trees of dropped constraints at commit
//   - Keeping reverse foreign-key references up to date
type IndexManager struct {
	store   BTreeStore
	heap    Heap
	catalog CatalogReader
	refs    ReferenceUpdater
}

// NewIndexManager creates a new IndexManager.
//
// Parameters:
//   - store: B-tree store holding constraint trees
//   - heap: Instance store consulted for bulk loads
//   - catalog: Lookup of effective and committed class definitions
//
// The reference updater is optional and set with SetReferenceUpdater.
func NewIndexManager(store BTreeStore, heap Heap, catalog CatalogReader) *IndexManager {
	return &IndexManager{
		store:   store,
		heap:    heap,
		catalog: catalog,
	}
}

// SetReferenceUpdater installs the collaborator used for foreign keys that
// reference another class.
func (im *IndexManager) SetReferenceUpdater(refs ReferenceUpdater) {
	im.refs = refs
}

// Session groups the installs of one schema change. It remembers which
// class rows have already been loaded into which tree, so a family loaded
// through its owner is not loaded again by each member.
type Session struct {
	im     *IndexManager
	loaded *loadCache
}

// NewSession starts an install session.
func (im *IndexManager) NewSession() *Session {
	return &Session{im: im, loaded: newLoadCache()}
}

// Install brings the trees behind flat's constraints into place. current is
// the committed class being replaced, nil when the class is new. Allocated
// identifiers are written into flat. Undo actions are registered on tx;
// deletions are deferred to commit.
//
// Errors are severe: the caller must roll back.
func (s *Session) Install(ctx context.Context, tx TxContext, current *schema.Class, flat *schema.Flat) error {
	log := logging.WithClassTx(tx.TxID(), flat.Name)

	for _, c := range flat.Constraints {
		var err error
		if c.IsOwnedBy(flat.Name) {
			err = s.installOwned(tx, current, flat, c)
		} else {
			err = s.attachInherited(tx, current, flat, c)
		}
		if err != nil {
			return err
		}
	}

	if current != nil {
		if err := s.releaseRemoved(tx, current, flat); err != nil {
			return err
		}
	}
	if err := s.updateReferences(ctx, tx, current, flat); err != nil {
		return err
	}

	log.Debug("constraint trees installed", "constraints", len(flat.Constraints))
	return nil
}
