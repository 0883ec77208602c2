package hierarchy

import (
	"context"

	"classdb/pkg/catalog/schema"
)

// AddReference records that foreign key ref points at key constraint of
// class. The referenced class is locked first; the change is undone with tx.
func (d *Driver) AddReference(ctx context.Context, tx TxContext, class, constraint string, ref schema.ForeignRef) error {
	if err := d.lock(ctx, tx, class); err != nil {
		return err
	}
	return d.catalog.AddReference(tx, class, constraint, ref)
}

// DropReference removes the reference of foreign key fk of fromClass from
// key constraint of class.
func (d *Driver) DropReference(ctx context.Context, tx TxContext, class, constraint, fromClass, fk string) error {
	if err := d.lock(ctx, tx, class); err != nil {
		return err
	}
	if _, ok := d.catalog.Class(class); !ok {
		return nil
	}
	return d.catalog.DropReference(tx, class, constraint, fromClass, fk)
}
