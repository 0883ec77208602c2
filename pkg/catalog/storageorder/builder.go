// Package storageorder assigns attribute identifiers to a flattened class and
// computes its physical record layout.
package storageorder

import (
	"cmp"
	"slices"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

const component = "storageorder"

// Definitions looks up the effective definition of another class, pending
// edits included.
type Definitions interface {
	Definition(name string) (schema.Definition, bool)
}

// Builder assigns identifiers and storage order.
type Builder struct {
	defs Definitions
}

// NewBuilder returns a builder resolving origin classes through defs.
func NewBuilder(defs Definitions) *Builder {
	return &Builder{defs: defs}
}

// assignment tracks identifier matching for one Build call.
type assignment struct {
	class   string
	current *schema.Class
	counter primitives.AttrID
	matched map[primitives.AttrID]bool
	changed bool
}

func (a *assignment) next() primitives.AttrID {
	id := a.counter
	a.counter++
	return id
}

// Build assigns identifiers to every member of flat, matching them against
// current, which is nil for a class being created. It fills in flat's layout
// and counter and reports whether the instance record layout differs from
// the current one, in which case a new representation is required.
func (b *Builder) Build(current *schema.Class, flat *schema.Flat) (bool, error) {
	a := &assignment{
		class:   flat.Name,
		current: current,
		counter: 1,
		matched: make(map[primitives.AttrID]bool),
	}
	if current != nil {
		a.counter = max(current.IDCounter, 1)
	}

	if flat.Kind == schema.KindPartition {
		if err := b.copyParent(a, flat); err != nil {
			return false, err
		}
	} else {
		b.refreshOriginIDs(flat)
		b.assignInstance(a, flat)
		flat.Layout = layout(flat.Attributes)
	}

	for _, ns := range []schema.Namespace{schema.NamespaceShared, schema.NamespaceClassAttribute} {
		assignByName(a, flat.AttributesOf(ns), currentAttributes(current, ns))
	}
	for _, ns := range []schema.Namespace{schema.NamespaceMethod, schema.NamespaceClassMethod} {
		assignMethods(a, flat.MethodsOf(ns), currentMethods(current, ns))
	}
	bindConstraints(flat)
	flat.IDCounter = a.counter

	needsNew := current == nil || a.changed || !slices.Equal(current.Layout.Order, flat.Layout.Order)
	logging.WithClass(flat.Name).Debug("storage order built",
		"attributes", len(flat.Attributes),
		"fixed", flat.Layout.Fixed,
		"counter", flat.IDCounter,
		"new_representation", needsNew)
	return needsNew, nil
}

// refreshOriginIDs fills in the origin identifier of inherited attributes
// that were added to their origin class in the same operation.
func (b *Builder) refreshOriginIDs(flat *schema.Flat) {
	for _, attr := range flat.Attributes {
		if attr.Origin == flat.Name || attr.OriginID.IsAssigned() {
			continue
		}
		def, ok := b.defs.Definition(attr.Origin)
		if !ok {
			continue
		}
		for _, oa := range def.AttributesOf(schema.NamespaceAttribute) {
			if oa.Name == attr.Name && oa.Origin == attr.Origin {
				attr.OriginID = oa.ID
				break
			}
		}
	}
}

// assignInstance gives each instance attribute its identifier: local
// attributes by their own identifier, inherited ones by origin identifier,
// then by name, origin and domain. Anything left over is new.
func (b *Builder) assignInstance(a *assignment, flat *schema.Flat) {
	var old []*schema.Attribute
	if a.current != nil {
		old = a.current.Attributes
	}

	for _, attr := range flat.Attributes {
		prev := a.match(attr, old)
		if prev == nil {
			attr.ID = a.next()
			a.changed = true
		} else {
			attr.ID = prev.ID
			a.matched[prev.ID] = true
			if !prev.Domain.Same(attr.Domain) {
				a.changed = true
			}
		}
		if attr.Origin == a.class {
			attr.OriginID = attr.ID
		}
	}
	for _, prev := range old {
		if !a.matched[prev.ID] {
			a.changed = true
		}
	}
}

func (a *assignment) match(attr *schema.Attribute, old []*schema.Attribute) *schema.Attribute {
	free := func(p *schema.Attribute) bool { return !a.matched[p.ID] }

	if attr.ID.IsAssigned() {
		if i := slices.IndexFunc(old, func(p *schema.Attribute) bool { return p.ID == attr.ID && free(p) }); i >= 0 {
			return old[i]
		}
	}
	if attr.OriginID.IsAssigned() && attr.Origin != a.class {
		if i := slices.IndexFunc(old, func(p *schema.Attribute) bool {
			return p.Origin == attr.Origin && p.OriginID == attr.OriginID && free(p)
		}); i >= 0 {
			return old[i]
		}
	}
	i := slices.IndexFunc(old, func(p *schema.Attribute) bool {
		return p.Name == attr.Name && p.Origin == attr.Origin && p.Domain.Same(attr.Domain) && free(p)
	})
	if i >= 0 {
		return old[i]
	}
	return nil
}

// copyParent forces a partition to the identifiers and layout of its parent.
func (b *Builder) copyParent(a *assignment, flat *schema.Flat) error {
	parent, ok := b.defs.Definition(flat.PartitionOf)
	if !ok {
		return schemaerrors.Definition(schemaerrors.PartitionMismatch, component,
			"partition %q: parent %q does not exist", flat.Name, flat.PartitionOf)
	}
	attrs := parent.AttributesOf(schema.NamespaceAttribute)
	if len(attrs) != len(flat.Attributes) {
		return schemaerrors.Definition(schemaerrors.PartitionMismatch, component,
			"partition %q has %d attributes, parent %q has %d",
			flat.Name, len(flat.Attributes), flat.PartitionOf, len(attrs))
	}
	for i, attr := range flat.Attributes {
		pa := attrs[i]
		if pa.Name != attr.Name || !pa.Domain.Same(attr.Domain) {
			return schemaerrors.Definition(schemaerrors.PartitionMismatch, component,
				"partition %q: attribute %q does not match parent attribute %q", flat.Name, attr.Name, pa.Name)
		}
		attr.ID = pa.ID
		attr.OriginID = pa.OriginID
	}
	flat.Layout = parent.StorageLayout().Clone()
	a.counter = max(a.counter, parent.AttributeCounter())
	if a.current != nil && len(a.current.Attributes) != len(flat.Attributes) {
		a.changed = true
	}
	return nil
}

// assignByName matches shared and class attributes by name and origin.
func assignByName(a *assignment, attrs, old []*schema.Attribute) {
	for _, attr := range attrs {
		if attr.ID.IsAssigned() && attr.Origin == a.class {
			continue
		}
		i := slices.IndexFunc(old, func(p *schema.Attribute) bool { return p.Name == attr.Name && p.Origin == attr.Origin })
		if i >= 0 {
			attr.ID = old[i].ID
		} else {
			attr.ID = a.next()
		}
		if attr.Origin == a.class {
			attr.OriginID = attr.ID
		}
	}
}

func assignMethods(a *assignment, methods, old []*schema.Method) {
	for _, m := range methods {
		if m.ID.IsAssigned() && m.Origin == a.class {
			continue
		}
		i := slices.IndexFunc(old, func(p *schema.Method) bool { return p.Name == m.Name && p.Origin == m.Origin })
		if i >= 0 {
			m.ID = old[i].ID
		} else {
			m.ID = a.next()
		}
	}
}

func currentAttributes(c *schema.Class, ns schema.Namespace) []*schema.Attribute {
	if c == nil {
		return nil
	}
	return c.AttributesOf(ns)
}

func currentMethods(c *schema.Class, ns schema.Namespace) []*schema.Method {
	if c == nil {
		return nil
	}
	return c.MethodsOf(ns)
}

// bindConstraints copies the final attribute identifiers into constraint keys.
func bindConstraints(flat *schema.Flat) {
	for _, c := range flat.Constraints {
		for i := range c.Attributes {
			if attr := flat.Attribute(c.Attributes[i].Name); attr != nil {
				c.Attributes[i].ID = attr.ID
			}
		}
	}
}

// layout orders fixed-length attributes by descending alignment, then by
// ascending size, and appends variable-length attributes in definition order.
func layout(attrs []*schema.Attribute) schema.Layout {
	var fixed, variable []*schema.Attribute
	for _, attr := range attrs {
		if attr.Domain.IsFixed() {
			fixed = append(fixed, attr)
		} else {
			variable = append(variable, attr)
		}
	}
	slices.SortStableFunc(fixed, func(x, y *schema.Attribute) int {
		if c := cmp.Compare(y.Domain.Alignment(), x.Domain.Alignment()); c != 0 {
			return c
		}
		return cmp.Compare(x.Domain.Size(), y.Domain.Size())
	})

	l := schema.Layout{Order: make([]primitives.AttrID, 0, len(attrs)), Fixed: len(fixed)}
	for _, attr := range append(fixed, variable...) {
		l.Order = append(l.Order, attr.ID)
	}
	return l
}
