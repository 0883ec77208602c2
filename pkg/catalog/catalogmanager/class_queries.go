package catalogmanager

import (
	"slices"

	"github.com/juju/collections/set"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/primitives"
)

// Class returns the committed class called name.
func (cm *CatalogManager) Class(name string) (*schema.Class, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	c, ok := cm.classes[name]
	return c, ok
}

// ClassByID returns the committed class with the given identifier.
func (cm *CatalogManager) ClassByID(id primitives.ClassID) (*schema.Class, bool) {
	if info, ok := cm.cache.GetByID(id); ok {
		return info.Class, true
	}
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	for _, c := range cm.classes {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Exists reports whether a class is committed or reserved under name.
func (cm *CatalogManager) Exists(name string) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	_, committed := cm.classes[name]
	_, reserved := cm.reserved[name]
	return committed || reserved
}

// Names returns the committed class names, sorted.
func (cm *CatalogManager) Names() []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	names := make([]string, 0, len(cm.classes))
	for name := range cm.classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Supers returns the committed superclasses of class.
func (cm *CatalogManager) Supers(class string) []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if c, ok := cm.classes[class]; ok {
		return c.Supers
	}
	return nil
}

// PendingSupers returns the superclasses proposed by the template attached
// to class, if any.
func (cm *CatalogManager) PendingSupers(class string) ([]string, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if tpl := cm.templateLocked(class); tpl != nil {
		return tpl.Supers, true
	}
	return nil, false
}

// Definition returns the effective definition of a class: the flattened
// pending edit when there is one, otherwise the committed class. A class
// being created is visible once its template has been flattened.
func (cm *CatalogManager) Definition(name string) (schema.Definition, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.definitionLocked(name)
}

func (cm *CatalogManager) definitionLocked(name string) (schema.Definition, bool) {
	if c, ok := cm.classes[name]; ok {
		return schema.EffectiveDefinition(c), true
	}
	if tpl, ok := cm.reserved[name]; ok && tpl.Flat != nil {
		return tpl.Flat, true
	}
	return nil, false
}

// Subclasses returns every direct and indirect subclass of name, sorted.
func (cm *CatalogManager) Subclasses(name string) []string {
	if info, ok := cm.cache.Get(name); ok {
		return slices.Clone(info.Subclasses)
	}

	cm.mutex.RLock()
	c, ok := cm.classes[name]
	if !ok {
		cm.mutex.RUnlock()
		return nil
	}
	seen := set.NewStrings()
	var walk func(string)
	walk = func(n string) {
		cl, ok := cm.classes[n]
		if !ok {
			return
		}
		for _, u := range cl.Users {
			if !seen.Contains(u) {
				seen.Add(u)
				walk(u)
			}
		}
	}
	walk(name)
	cm.mutex.RUnlock()

	subs := seen.SortedValues()
	cm.cache.Put(c, subs)
	return subs
}

// Referencers returns the classes other than except whose effective
// definition has a constraint backed by id.
func (cm *CatalogManager) Referencers(id primitives.BTreeID, except string) []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	uses := func(def schema.Definition) bool {
		return slices.ContainsFunc(def.ConstraintList(), func(c *schema.Constraint) bool { return c.BTree == id })
	}
	out := set.NewStrings()
	for name, c := range cm.classes {
		if name != except && uses(schema.EffectiveDefinition(c)) {
			out.Add(name)
		}
	}
	for name, tpl := range cm.reserved {
		if name != except && tpl.Flat != nil && uses(tpl.Flat) {
			out.Add(name)
		}
	}
	if out.IsEmpty() {
		return nil
	}
	return out.SortedValues()
}

// Definitions returns the effective definition of every class, sorted by name.
func (cm *CatalogManager) Definitions() []schema.Definition {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	names := make([]string, 0, len(cm.classes))
	for name := range cm.classes {
		names = append(names, name)
	}
	slices.Sort(names)
	defs := make([]schema.Definition, 0, len(names))
	for _, name := range names {
		def, _ := cm.definitionLocked(name)
		defs = append(defs, def)
	}
	return defs
}
