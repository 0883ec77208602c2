package hierarchy

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/dberror"
	"classdb/pkg/logging"
)

// Drop removes a class. Its direct subclasses are first re-flattened
// without it, then the trees it owns are released and its instances are
// dropped when tx commits. Any failure leaves the catalog as it was.
func (d *Driver) Drop(ctx context.Context, tx TxContext, name string) error {
	log := logging.WithClassTx(tx.TxID(), name)

	if err := d.lock(ctx, tx, name); err != nil {
		return err
	}
	class, ok := d.catalog.Class(name)
	if !ok {
		return schemaerrors.Definition(schemaerrors.ClassNotFound, component, "class %q does not exist", name)
	}
	if class.Template != nil {
		return schemaerrors.Definition(schemaerrors.TemplateInUse, component, "class %q is being edited", name)
	}
	if err := checkUnreferenced(class); err != nil {
		return err
	}

	sp := "drop-" + uuid.NewString()
	if err := tx.Savepoint(sp); err != nil {
		return schemaerrors.Severe(schemaerrors.InstallFailed, err, component, "class %q: taking savepoint", name)
	}

	users := slices.Clone(class.Users)
	slices.Sort(users)
	for _, sub := range users {
		if err := d.detachSubclass(ctx, tx, sub, name); err != nil {
			d.undoDrop(tx, sp)
			return err
		}
	}

	for _, s := range class.Supers {
		if err := d.lock(ctx, tx, s); err != nil {
			d.undoDrop(tx, sp)
			return err
		}
	}

	class, _ = d.catalog.Class(name)
	empty := &schema.Flat{Name: name, Kind: class.Kind, PartitionOf: class.PartitionOf}
	if err := d.indexes.NewSession().Install(ctx, tx, class, empty); err != nil {
		return d.rollbackSevere(tx, sp, err)
	}
	if err := d.catalog.Remove(tx, name); err != nil {
		d.undoDrop(tx, sp)
		return err
	}

	tx.OnCommit(func() error {
		d.heap.DropClass(name)
		return nil
	})
	log.Info("class dropped", "subclasses_detached", len(users))
	return nil
}

// checkUnreferenced rejects dropping a class whose keys are the target of
// another class's foreign key.
func checkUnreferenced(class *schema.Class) error {
	for _, c := range class.Constraints {
		for _, ref := range c.References {
			if ref.Class != class.Name {
				return schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
					"class %q: key %q is referenced by %s.%s", class.Name, c.Name, ref.Class, ref.Constraint)
			}
		}
	}
	return nil
}

// detachSubclass re-applies sub without super in its superclass list.
func (d *Driver) detachSubclass(ctx context.Context, tx TxContext, sub, super string) error {
	tpl, err := d.Edit(ctx, tx, sub)
	if err != nil {
		return err
	}
	if err := tpl.DropSuperclass(super); err != nil {
		d.Abort(tpl)
		return err
	}
	if err := d.Apply(ctx, tx, tpl); err != nil {
		d.Abort(tpl)
		return err
	}
	return nil
}

func (d *Driver) undoDrop(tx TxContext, sp string) {
	if !tx.IsActive() {
		return
	}
	if err := tx.AbortToSavepoint(sp); err != nil {
		logging.WithTx(tx.TxID()).Warn("drop rollback failed", "savepoint", sp, "error", err)
	}
}

// rollbackSevere undoes a failed install to sp when the error allows it and
// aborts tx otherwise.
func (d *Driver) rollbackSevere(tx TxContext, sp string, err error) error {
	if dberror.RollbackOf(err) == dberror.RollbackSavepoint && tx.AbortToSavepoint(sp) == nil {
		return err
	}
	tx.UnilateralAbort(err)
	return err
}
