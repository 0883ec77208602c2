// Package hierarchy drives a schema change through a class hierarchy: it
// locks the classes involved, flattens the edited class and every subclass,
// and installs the whole set atomically.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"classdb/pkg/catalog/catalogmanager"
	"classdb/pkg/catalog/flatten"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/catalog/storageorder"
	"classdb/pkg/concurrency/lock"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/config"
	"classdb/pkg/indexmanager"
	"classdb/pkg/primitives"
	"classdb/pkg/trigger"
)

const component = "hierarchy"

// TxContext is the transaction a schema change runs in. Locks taken by the
// driver are held until it ends.
type TxContext = *transaction.TransactionContext

// State is a stage of a hierarchy update.
type State int

const (
	Building State = iota
	SupersLocked
	Flattened
	SubsLocked
	SubsFlattened
	Installed
	Aborted
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case SupersLocked:
		return "supers-locked"
	case Flattened:
		return "flattened"
	case SubsLocked:
		return "subs-locked"
	case SubsFlattened:
		return "subs-flattened"
	case Installed:
		return "installed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Locker grants class locks to transactions.
type Locker interface {
	Acquire(ctx context.Context, tid primitives.TxID, class string, lockType lock.LockType) error
}

// Heap is the instance store the driver flushes before a layout change.
type Heap interface {
	HasInstances(class string) bool
	FlushAllInstances(class string) error
	DropClass(class string)
}

// TransitionFunc observes the state changes of an update.
type TransitionFunc func(class string, from, to State)

// Driver applies templates to the catalog.
type Driver struct {
	catalog   *catalogmanager.CatalogManager
	flattener *flatten.Flattener
	order     *storageorder.Builder
	indexes   *indexmanager.IndexManager
	heap      Heap
	locks     Locker

	onTransition TransitionFunc
}

// NewDriver wires a driver over the catalog and its storage collaborators.
// The driver registers itself as the index manager's reference updater.
func NewDriver(
	catalog *catalogmanager.CatalogManager,
	locks Locker,
	heap Heap,
	indexes *indexmanager.IndexManager,
	triggers *trigger.Manager,
	params config.Parameters,
) *Driver {
	d := &Driver{
		catalog:   catalog,
		flattener: flatten.NewFlattener(catalog, triggers, params),
		order:     storageorder.NewBuilder(catalog),
		indexes:   indexes,
		heap:      heap,
		locks:     locks,
	}
	indexes.SetReferenceUpdater(d)
	return d
}

// OnTransition installs fn as the state observer.
func (d *Driver) OnTransition(fn TransitionFunc) {
	d.onTransition = fn
}

// Create starts the definition of a new class.
func (d *Driver) Create(ctx context.Context, tx TxContext, name string, kind schema.ClassKind) (*schema.Template, error) {
	if err := d.lock(ctx, tx, name); err != nil {
		return nil, err
	}
	tpl := schema.NewTemplate(name, kind)
	if err := d.catalog.Attach(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Edit starts an edit of an existing class, seeded with its local
// definition. The class stays exclusively locked until tx ends.
func (d *Driver) Edit(ctx context.Context, tx TxContext, name string) (*schema.Template, error) {
	if err := d.lock(ctx, tx, name); err != nil {
		return nil, err
	}
	class, ok := d.catalog.Class(name)
	if !ok {
		return nil, schemaerrors.Definition(schemaerrors.ClassNotFound, component, "class %q does not exist", name)
	}
	tpl := schema.EditTemplate(class)
	if err := d.catalog.Attach(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Abort discards tpl. The class keeps its committed definition.
func (d *Driver) Abort(tpl *schema.Template) {
	tpl.Flat = nil
	d.catalog.Detach(tpl)
}

func (d *Driver) lock(ctx context.Context, tx TxContext, class string) error {
	err := d.locks.Acquire(ctx, tx.TxID(), class, lock.ExclusiveLock)
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrTimeout) || errors.Is(err, lock.ErrDeadlock) {
		return schemaerrors.Resource(schemaerrors.LockTimeout, component,
			"locking class %q: %v", class, err)
	}
	return err
}
