package indexmanager

import (
	"slices"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/storage/btree"
)

// familySources collects the rows of every class sharing c's tree: the owner
// itself and each subclass whose definition carries the constraint with the
// same owner. Classes without instances contribute nothing.
func (s *Session) familySources(flat *schema.Flat, c *schema.Constraint) []btree.LoadSource {
	var sources []btree.LoadSource
	if src, ok := s.classSource(flat.Name, flat, c); ok {
		sources = append(sources, src)
	}

	subs := s.im.catalog.Subclasses(flat.Name)
	slices.Sort(subs)
	for _, sub := range subs {
		def, ok := s.im.catalog.Definition(sub)
		if !ok {
			continue
		}
		sc := schema.FindConstraint(def.ConstraintList(), c.Name)
		if sc == nil || sc.Owner != c.Owner {
			continue
		}
		if src, ok := s.classSource(sub, def, c); ok {
			sources = append(sources, src)
		}
	}
	return sources
}

// classSource extracts the key of c from every instance of class, reading
// attribute values through the identifiers of def.
func (s *Session) classSource(class string, def schema.Definition, c *schema.Constraint) (btree.LoadSource, bool) {
	if !s.im.heap.HasInstances(class) {
		return btree.LoadSource{}, false
	}
	attrs := def.AttributesOf(schema.NamespaceAttribute)
	ids := make([]*schema.Attribute, len(c.Attributes))
	for i, ca := range c.Attributes {
		if j := slices.IndexFunc(attrs, func(a *schema.Attribute) bool { return a.Name == ca.Name }); j >= 0 {
			ids[i] = attrs[j]
		}
	}

	src := btree.LoadSource{Class: class}
	for _, inst := range s.im.heap.Scan(class) {
		key := make(btree.Key, len(ids))
		for i, a := range ids {
			if a != nil {
				key[i] = inst.Values[a.ID]
			}
		}
		src.Rows = append(src.Rows, btree.Row{OID: inst.OID, Key: key})
	}
	return src, len(src.Rows) > 0
}
