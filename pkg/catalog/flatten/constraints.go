package flatten

import (
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

// mergeConstraints builds the constraint list of flat: constraints inherited
// from the superclasses, left to right, followed by the template's own.
// B-tree identifiers are carried forward whenever the key chain is unchanged
// and left unallocated otherwise.
func (f *Flattener) mergeConstraints(tpl *schema.Template, flat *schema.Flat) error {
	if tpl.Kind == schema.KindView {
		if len(tpl.Constraints) > 0 {
			return schemaerrors.Definition(schemaerrors.ViewConstraint, component,
				"view %q cannot define constraint %q", tpl.Name, tpl.Constraints[0].Name)
		}
		return nil
	}

	var current []*schema.Constraint
	if tpl.Current != nil {
		current = tpl.Current.Constraints
	}

	inherited, err := f.inheritedConstraints(tpl, flat, current)
	if err != nil {
		return err
	}
	out := inherited

	for _, tc := range tpl.Constraints {
		if schema.FindConstraint(out, tc.Name) != nil {
			return schemaerrors.Definition(schemaerrors.ConstraintExists, component,
				"class %q: constraint %q is already inherited", tpl.Name, tc.Name)
		}
		c := tc.Clone()
		if err := bindAttributes(tpl.Name, c, flat); err != nil {
			return err
		}
		c.Origin = tpl.Name
		c.Owner = tpl.Name
		if !f.keepsTree(c, flat, current, tpl.Current) {
			c.BTree = primitives.NullBTreeID
		}
		out = append(out, c)
	}

	pk := 0
	for _, c := range out {
		if c.Kind == schema.ConstraintPrimaryKey {
			pk++
		}
	}
	if pk > 1 {
		return schemaerrors.Definition(schemaerrors.ConstraintExists, component,
			"class %q would have %d primary keys", tpl.Name, pk)
	}

	flat.Constraints = out
	for _, c := range out {
		if c.Kind != schema.ConstraintForeignKey {
			continue
		}
		if err := f.checkForeignKey(flat, c); err != nil {
			return err
		}
	}
	return nil
}

// inheritedConstraints collects the inheritable constraints of every
// superclass. The first superclass declaring a name wins; a constraint whose
// key attributes did not all survive flattening is dropped.
func (f *Flattener) inheritedConstraints(tpl *schema.Template, flat *schema.Flat, current []*schema.Constraint) ([]*schema.Constraint, error) {
	var out []*schema.Constraint
	for _, super := range tpl.Supers {
		def, err := f.definition(super)
		if err != nil {
			return nil, err
		}
		for _, sc := range def.ConstraintList() {
			if !sc.Kind.IsInheritable() || schema.FindConstraint(out, sc.Name) != nil {
				continue
			}
			c := sc.Clone()
			c.References = nil
			if bindAttributes(tpl.Name, c, flat) != nil {
				logging.WithClass(tpl.Name).Debug("inherited constraint dropped", "constraint", c.Name, "super", super)
				continue
			}
			if c.SameChain(sc) {
				out = append(out, c)
				continue
			}
			// The chain now runs through a redefined attribute, so the class
			// needs a tree of its own. Keep one it already owns.
			c.Owner = tpl.Name
			c.BTree = primitives.NullBTreeID
			if prev := schema.FindConstraint(current, c.Name); prev != nil && prev.IsOwnedBy(tpl.Name) && prev.SameChain(c) {
				c.BTree = prev.BTree
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// bindAttributes points every key column of c at the attribute of flat with
// the same name.
func bindAttributes(class string, c *schema.Constraint, flat *schema.Flat) error {
	for i := range c.Attributes {
		a := flat.Attribute(c.Attributes[i].Name)
		if a == nil {
			return schemaerrors.Definition(schemaerrors.ConstraintAttribute, component,
				"class %q: constraint %q references unknown attribute %q", class, c.Name, c.Attributes[i].Name)
		}
		c.Attributes[i].Origin = a.Origin
		c.Attributes[i].ID = a.ID
	}
	return nil
}

// keepsTree reports whether a local constraint can keep the tree it had in
// the committed class: same kind, same key chain and unchanged key domains.
func (f *Flattener) keepsTree(c *schema.Constraint, flat *schema.Flat, current []*schema.Constraint, prevClass *schema.Class) bool {
	if !c.BTree.IsAllocated() || prevClass == nil {
		return false
	}
	prev := schema.FindConstraint(current, c.Name)
	if prev == nil || prev.Kind != c.Kind || prev.BTree != c.BTree || !prev.SameChain(c) {
		return false
	}
	for i, ca := range c.Attributes {
		if ca.Descending != prev.Attributes[i].Descending || ca.PrefixLength != prev.Attributes[i].PrefixLength {
			return false
		}
		old := prevClass.Attribute(ca.Name)
		if old == nil || !old.Domain.Same(flat.Attribute(ca.Name).Domain) {
			return false
		}
	}
	return true
}

// checkForeignKey verifies that c references the primary key of its target
// class with a matching number of columns, and records the key's name.
func (f *Flattener) checkForeignKey(flat *schema.Flat, c *schema.Constraint) error {
	fk := c.ForeignKey
	if fk == nil {
		return schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
			"class %q: foreign key %q has no target", flat.Name, c.Name)
	}

	var pk *schema.Constraint
	if fk.RefClass == flat.Name {
		pk = schema.PrimaryKey(flat.Constraints)
	} else {
		def, err := f.definition(fk.RefClass)
		if err != nil {
			return schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
				"class %q: foreign key %q references missing class %q", flat.Name, c.Name, fk.RefClass)
		}
		pk = schema.PrimaryKey(def.ConstraintList())
	}

	switch {
	case pk == nil:
		return schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
			"class %q: foreign key %q: %q has no primary key", flat.Name, c.Name, fk.RefClass)
	case fk.RefConstraint != "" && fk.RefConstraint != pk.Name:
		return schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
			"class %q: foreign key %q references %q, which is not the primary key of %q",
			flat.Name, c.Name, fk.RefConstraint, fk.RefClass)
	case len(pk.Attributes) != len(c.Attributes):
		return schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
			"class %q: foreign key %q has %d columns, primary key %q has %d",
			flat.Name, c.Name, len(c.Attributes), pk.Name, len(pk.Attributes))
	}
	fk.RefConstraint = pk.Name
	return nil
}
