package indexmanager

import (
	"errors"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/logging"
	"classdb/pkg/storage/btree"
)

// specFor describes the key layout of the tree behind c.
func specFor(c *schema.Constraint) btree.IndexSpec {
	spec := btree.IndexSpec{
		Name:          c.Name,
		Columns:       len(c.Attributes),
		Descending:    make([]bool, len(c.Attributes)),
		PrefixLengths: make([]int, len(c.Attributes)),
		Unique:        c.Kind.IsUniqueFamily(),
		Reverse:       c.Kind.IsReverse(),
	}
	for i, a := range c.Attributes {
		spec.Descending[i] = a.Descending
		spec.PrefixLengths[i] = a.PrefixLength
	}
	return spec
}

// installOwned handles a constraint the class owns. An unallocated one gets
// a fresh tree, bulk-loaded from every class of the family that already has
// instances. An allocated one is kept, loading the class's own rows if it
// was not attached to the tree before.
func (s *Session) installOwned(tx TxContext, current *schema.Class, flat *schema.Flat, c *schema.Constraint) error {
	if c.BTree.IsAllocated() {
		return s.attachRows(tx, current, flat, c)
	}

	id, err := s.im.store.Allocate(specFor(c))
	if err != nil {
		return schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
			"class %q: allocating tree for constraint %q", flat.Name, c.Name)
	}
	store := s.im.store
	tx.OnRollback(func() {
		if store.Exists(id) {
			_ = store.Delete(id)
		}
	})
	c.BTree = id

	sources := s.familySources(flat, c)
	if len(sources) > 0 {
		if err := s.im.store.Load(id, sources); err != nil {
			return loadError(err, flat.Name, c)
		}
	}
	for _, src := range sources {
		s.loaded.Mark(id, src.Class)
	}
	s.loaded.Mark(id, flat.Name)

	logging.WithClassTx(tx.TxID(), flat.Name).Info("constraint tree allocated",
		"constraint", c.Name, "btree", id, "family_sources", len(sources))
	return nil
}

// attachInherited handles a constraint owned by an ancestor. Its tree is the
// owner's; an unallocated entry is filled in from the owner, which has been
// installed earlier in the same change.
func (s *Session) attachInherited(tx TxContext, current *schema.Class, flat *schema.Flat, c *schema.Constraint) error {
	if !c.BTree.IsAllocated() {
		owner, ok := s.im.catalog.Class(c.Owner)
		var oc *schema.Constraint
		if ok {
			oc = owner.Constraint(c.Name)
		}
		if oc == nil || !oc.BTree.IsAllocated() {
			return schemaerrors.Severe(schemaerrors.ConstraintOwnerMissing, nil, component,
				"class %q: constraint %q has no tree in owner %q", flat.Name, c.Name, c.Owner)
		}
		c.BTree = oc.BTree
	}
	return s.attachRows(tx, current, flat, c)
}

// attachRows loads the class's own rows into c's tree unless they are there
// already: either the committed class used the same tree or the rows were
// loaded earlier in this session.
func (s *Session) attachRows(tx TxContext, current *schema.Class, flat *schema.Flat, c *schema.Constraint) error {
	if s.loaded.Has(c.BTree, flat.Name) {
		return nil
	}
	if current != nil {
		if prev := current.Constraint(c.Name); prev != nil && prev.BTree == c.BTree {
			s.loaded.Mark(c.BTree, flat.Name)
			return nil
		}
	}

	src, ok := s.classSource(flat.Name, flat, c)
	s.loaded.Mark(c.BTree, flat.Name)
	if !ok {
		return nil
	}
	if err := s.im.store.Load(c.BTree, []btree.LoadSource{src}); err != nil {
		return loadError(err, flat.Name, c)
	}
	store, id, class := s.im.store, c.BTree, flat.Name
	tx.OnRollback(func() {
		if store.Exists(id) {
			_, _ = store.RemoveClassRows(class, id)
		}
	})
	logging.WithClassTx(tx.TxID(), flat.Name).Debug("class rows attached to tree",
		"constraint", c.Name, "btree", c.BTree, "rows", len(src.Rows))
	return nil
}

func loadError(err error, class string, c *schema.Constraint) error {
	if errors.Is(err, btree.ErrUniqueViolation) {
		return schemaerrors.Severe(schemaerrors.UniqueViolation, err, component,
			"class %q: existing data violates %s %q", class, c.Kind, c.Name)
	}
	return schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
		"class %q: loading tree of constraint %q", class, c.Name)
}
