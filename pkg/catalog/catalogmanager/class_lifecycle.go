package catalogmanager

import (
	"slices"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

// CheckRepresentations fails when installing class with a new record layout
// would exceed the representation bound.
func (cm *CatalogManager) CheckRepresentations(name string, needsNew bool) error {
	if !needsNew || cm.maxReprs <= 0 {
		return nil
	}
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	c, ok := cm.classes[name]
	if !ok {
		return nil
	}
	if len(c.Representations) >= cm.maxReprs {
		return schemaerrors.Capacity(schemaerrors.RepresentationsExhausted, component,
			"class %q already has %d representations", name, len(c.Representations))
	}
	return nil
}

// Install commits flat as the new definition of its class. A new
// representation is recorded when needsNew is set or the class is new. The
// previous definition and the superclass links are restored if tx rolls
// back; the template attached to the class is consumed either way.
func (cm *CatalogManager) Install(tx TxContext, flat *schema.Flat, needsNew bool) (*schema.Class, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	name := flat.Name
	prev := cm.classes[name]
	c := flat.ToClass(prev)
	if prev == nil {
		c.ID = cm.nextID
		cm.nextID++
	}
	if prev == nil || needsNew {
		if cm.maxReprs > 0 && len(c.Representations) >= cm.maxReprs {
			return nil, schemaerrors.Capacity(schemaerrors.RepresentationsExhausted, component,
				"class %q already has %d representations", name, len(c.Representations))
		}
		c.Repr = primitives.ReprID(len(c.Representations))
		c.Representations = append(c.Representations, schema.Representation{ID: c.Repr, Layout: c.Layout.Clone()})
	}

	var oldSupers []string
	if prev != nil {
		oldSupers = prev.Supers
	}
	cm.relinkSupers(tx, name, oldSupers, c.Supers)

	// The template is consumed; a rollback restores the previous definition
	// without it.
	if prev != nil {
		prev.Template = nil
	}
	delete(cm.reserved, name)
	cm.classes[name] = c
	tx.OnRollback(func() {
		cm.mutex.Lock()
		defer cm.mutex.Unlock()
		if prev != nil {
			cm.classes[name] = prev
		} else {
			delete(cm.classes, name)
		}
		cm.invalidate(name, c.Supers)
	})

	if prev != nil && prev.Triggers != nil {
		old := prev.Triggers
		tx.OnCommit(func() error {
			cm.triggers.DeleteSchemaCache(old)
			return nil
		})
	}

	cm.invalidate(name, append(slices.Clone(oldSupers), c.Supers...))
	logging.WithClassTx(tx.TxID(), name).Info("class installed",
		"class_id", c.ID, "repr", c.Repr, "attributes", len(c.Attributes), "version", cm.version.Load())
	return c, nil
}

// Remove deletes class from the catalog and unlinks it from its
// superclasses. The caller must have checked that it has no subclasses.
func (cm *CatalogManager) Remove(tx TxContext, name string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	prev, ok := cm.classes[name]
	if !ok {
		return schemaerrors.Definition(schemaerrors.ClassNotFound, component, "class %q does not exist", name)
	}
	if len(prev.Users) > 0 {
		return schemaerrors.Definition(schemaerrors.ClassHasSubclasses, component,
			"class %q is inherited by %v", name, prev.Users)
	}

	cm.relinkSupers(tx, name, prev.Supers, nil)
	delete(cm.classes, name)
	tx.OnRollback(func() {
		cm.mutex.Lock()
		defer cm.mutex.Unlock()
		cm.classes[name] = prev
		cm.invalidate(name, prev.Supers)
	})
	if prev.Triggers != nil {
		tx.OnCommit(func() error {
			cm.triggers.DeleteSchemaCache(prev.Triggers)
			return nil
		})
	}

	cm.invalidate(name, prev.Supers)
	logging.WithClassTx(tx.TxID(), name).Info("class removed", "class_id", prev.ID)
	return nil
}

// relinkSupers keeps the Users lists of superclasses in step with the
// superclass list of class.
func (cm *CatalogManager) relinkSupers(tx TxContext, class string, before, after []string) {
	for _, s := range before {
		if !slices.Contains(after, s) {
			cm.editUsers(tx, s, func(users []string) []string {
				return slices.DeleteFunc(users, func(u string) bool { return u == class })
			})
		}
	}
	for _, s := range after {
		if !slices.Contains(before, s) {
			cm.editUsers(tx, s, func(users []string) []string {
				if slices.Contains(users, class) {
					return users
				}
				return append(users, class)
			})
		}
	}
}

func (cm *CatalogManager) editUsers(tx TxContext, super string, edit func([]string) []string) {
	s, ok := cm.classes[super]
	if !ok {
		return
	}
	old := slices.Clone(s.Users)
	s.Users = edit(slices.Clone(s.Users))
	tx.OnRollback(func() {
		cm.mutex.Lock()
		defer cm.mutex.Unlock()
		s.Users = old
	})
}

// invalidate drops cached lookups of class and of the given superclasses and
// bumps the schema version.
func (cm *CatalogManager) invalidate(class string, supers []string) {
	cm.cache.InvalidateClass(class)
	for _, s := range supers {
		cm.cache.InvalidateClass(s)
	}
	cm.version.Add(1)
}

// AddReference records ref on key constraint of class. The committed class
// is replaced by a patched copy and any live template of the class sees the
// reference too.
func (cm *CatalogManager) AddReference(tx TxContext, class, constraint string, ref schema.ForeignRef) error {
	return cm.patchConstraint(tx, class, constraint, func(c *schema.Constraint) {
		c.References = slices.DeleteFunc(c.References, func(r schema.ForeignRef) bool {
			return r.Class == ref.Class && r.Constraint == ref.Constraint
		})
		c.References = append(c.References, ref)
	})
}

// DropReference forgets the reference of foreign key fk of fromClass on key
// constraint of class.
func (cm *CatalogManager) DropReference(tx TxContext, class, constraint, fromClass, fk string) error {
	return cm.patchConstraint(tx, class, constraint, func(c *schema.Constraint) {
		c.References = slices.DeleteFunc(c.References, func(r schema.ForeignRef) bool {
			return r.Class == fromClass && r.Constraint == fk
		})
	})
}

func (cm *CatalogManager) patchConstraint(tx TxContext, class, constraint string, patch func(*schema.Constraint)) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	prev, ok := cm.classes[class]
	if !ok {
		return schemaerrors.Definition(schemaerrors.ClassNotFound, component, "class %q does not exist", class)
	}
	if prev.Constraint(constraint) == nil {
		return schemaerrors.Definition(schemaerrors.ConstraintNotFound, component,
			"class %q has no constraint %q", class, constraint)
	}

	next := prev.Clone()
	next.Template = prev.Template
	patch(next.Constraint(constraint))
	cm.classes[class] = next

	var tplPrev, flatPrev *schema.Constraint
	if tpl := prev.Template; tpl != nil {
		if c := schema.FindConstraint(tpl.Constraints, constraint); c != nil {
			tplPrev = c.Clone()
			patch(c)
		}
		if tpl.Flat != nil {
			if c := tpl.Flat.Constraint(constraint); c != nil {
				flatPrev = c.Clone()
				patch(c)
			}
		}
	}

	tx.OnRollback(func() {
		cm.mutex.Lock()
		defer cm.mutex.Unlock()
		cm.classes[class] = prev
		if tpl := prev.Template; tpl != nil {
			if c := schema.FindConstraint(tpl.Constraints, constraint); c != nil && tplPrev != nil {
				*c = *tplPrev
			}
			if tpl.Flat != nil {
				if c := tpl.Flat.Constraint(constraint); c != nil && flatPrev != nil {
					*c = *flatPrev
				}
			}
		}
		cm.cache.InvalidateClass(class)
	})
	cm.cache.InvalidateClass(class)
	return nil
}
