package indexmanager

import (
	"context"
	"slices"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

// releaseRemoved schedules the release of trees the committed class used
// and the new definition no longer does. A tree is deleted only by its owner
// and only when no other class still has a constraint on it; in every other
// case the class just detaches its rows. Both happen at commit, so a
// rollback finds the trees untouched.
func (s *Session) releaseRemoved(tx TxContext, current *schema.Class, flat *schema.Flat) error {
	log := logging.WithClassTx(tx.TxID(), flat.Name)
	store := s.im.store

	for _, old := range current.Constraints {
		if !old.BTree.IsAllocated() {
			continue
		}
		if nc := flat.Constraint(old.Name); nc != nil && nc.BTree == old.BTree {
			continue
		}
		if slices.ContainsFunc(flat.Constraints, func(c *schema.Constraint) bool { return c.BTree == old.BTree }) {
			continue
		}

		id, class := old.BTree, flat.Name
		others := s.im.catalog.Referencers(id, class)
		if old.IsOwnedBy(current.Name) && len(others) == 0 {
			log.Debug("constraint tree scheduled for deletion", "constraint", old.Name, "btree", id)
			tx.OnCommit(func() error {
				if !store.Exists(id) {
					return nil
				}
				return store.Delete(id)
			})
			continue
		}

		log.Debug("class rows scheduled for removal from shared tree",
			"constraint", old.Name, "btree", id, "owner", old.Owner, "referencers", others)
		tx.OnCommit(func() error {
			if !store.Exists(id) {
				return nil
			}
			_, err := store.RemoveClassRows(class, id)
			return err
		})
	}
	return nil
}

// ownedForeignKeys returns the foreign keys class declares itself.
func ownedForeignKeys(cs []*schema.Constraint, class string) []*schema.Constraint {
	var out []*schema.Constraint
	for _, c := range cs {
		if c.Kind == schema.ConstraintForeignKey && c.IsOwnedBy(class) && c.ForeignKey != nil {
			out = append(out, c)
		}
	}
	return out
}

func sameReference(a, b *schema.Constraint) bool {
	return a.BTree == b.BTree &&
		a.ForeignKey.RefClass == b.ForeignKey.RefClass &&
		a.ForeignKey.RefConstraint == b.ForeignKey.RefConstraint
}

// updateReferences keeps the reverse references on referenced primary keys
// in step with the class's foreign keys. References to the class itself are
// edited in place; references to other classes go through the reference
// updater.
func (s *Session) updateReferences(ctx context.Context, tx TxContext, current *schema.Class, flat *schema.Flat) error {
	var oldFKs []*schema.Constraint
	if current != nil {
		oldFKs = ownedForeignKeys(current.Constraints, current.Name)
	}
	newFKs := ownedForeignKeys(flat.Constraints, flat.Name)

	for _, old := range oldFKs {
		nc := schema.FindConstraint(newFKs, old.Name)
		if nc != nil && sameReference(old, nc) {
			continue
		}
		if err := s.dropReference(ctx, tx, flat, old); err != nil {
			return err
		}
	}
	for _, c := range newFKs {
		oc := schema.FindConstraint(oldFKs, c.Name)
		if oc != nil && sameReference(oc, c) {
			continue
		}
		if err := s.addReference(ctx, tx, flat, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) addReference(ctx context.Context, tx TxContext, flat *schema.Flat, fk *schema.Constraint) error {
	ref := schema.ForeignRef{Class: flat.Name, Constraint: fk.Name, BTree: fk.BTree}
	target := fk.ForeignKey

	if target.RefClass == flat.Name {
		pk := flat.Constraint(target.RefConstraint)
		if pk == nil {
			return schemaerrors.Severe(schemaerrors.InstallFailed, nil, component,
				"class %q: foreign key %q references missing key %q", flat.Name, fk.Name, target.RefConstraint)
		}
		pk.References = slices.DeleteFunc(pk.References, func(r schema.ForeignRef) bool {
			return r.Class == ref.Class && r.Constraint == ref.Constraint
		})
		pk.References = append(pk.References, ref)
		return nil
	}

	if s.im.refs == nil {
		return schemaerrors.Severe(schemaerrors.InstallFailed, nil, component,
			"class %q: no reference updater for foreign key %q", flat.Name, fk.Name)
	}
	if err := s.im.refs.AddReference(ctx, tx, target.RefClass, target.RefConstraint, ref); err != nil {
		return schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
			"class %q: registering foreign key %q on %q", flat.Name, fk.Name, target.RefClass)
	}
	logging.WithClassTx(tx.TxID(), flat.Name).Debug("foreign key reference registered",
		"constraint", fk.Name, "target", target.RefClass, "key", target.RefConstraint)
	return nil
}

func (s *Session) dropReference(ctx context.Context, tx TxContext, flat *schema.Flat, fk *schema.Constraint) error {
	target := fk.ForeignKey
	if target.RefClass == flat.Name {
		if pk := flat.Constraint(target.RefConstraint); pk != nil {
			pk.References = slices.DeleteFunc(pk.References, func(r schema.ForeignRef) bool {
				return r.Class == flat.Name && r.Constraint == fk.Name
			})
		}
		return nil
	}
	if s.im.refs == nil {
		return nil
	}
	err := s.im.refs.DropReference(ctx, tx, target.RefClass, target.RefConstraint, flat.Name, fk.Name)
	if err != nil {
		return schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
			"class %q: dropping foreign key %q from %q", flat.Name, fk.Name, target.RefClass)
	}
	return nil
}

// Owners reports, for each tree referenced by defs, the classes claiming to
// own it. Each tree should have exactly one.
func Owners(defs []schema.Definition) map[primitives.BTreeID][]string {
	out := make(map[primitives.BTreeID][]string)
	for _, def := range defs {
		for _, c := range def.ConstraintList() {
			if c.BTree.IsAllocated() && c.IsOwnedBy(def.ClassName()) {
				out[c.BTree] = append(out[c.BTree], def.ClassName())
			}
		}
	}
	return out
}
