package schema

import (
	"fmt"
	"slices"

	"classdb/pkg/primitives"
	"classdb/pkg/trigger"
)

// ClassKind tells how instances of a class are stored.
type ClassKind uint8

const (
	KindOrdinary ClassKind = iota
	KindView
	KindPartition
)

func (k ClassKind) String() string {
	switch k {
	case KindOrdinary:
		return "class"
	case KindView:
		return "view"
	case KindPartition:
		return "partition"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Layout is the physical record layout of instance attributes.
type Layout struct {
	// Order lists instance attribute ids in storage order: fixed-length
	// attributes first, then variable-length ones.
	Order []primitives.AttrID
	// Fixed is the number of fixed-length attributes at the front of Order.
	Fixed int
}

// Clone returns a copy of the layout.
func (l Layout) Clone() Layout {
	return Layout{Order: slices.Clone(l.Order), Fixed: l.Fixed}
}

// Representation is one version of the record layout of a class.
type Representation struct {
	ID     primitives.ReprID
	Layout Layout
}

// Definition is the read-only view of a class definition used while
// flattening subclasses. A committed Class and a pending Flat both satisfy it,
// so a superclass edited in the same transaction is seen in its edited form.
type Definition interface {
	ClassName() string
	ClassKind() ClassKind
	SuperNames() []string
	AttributesOf(ns Namespace) []*Attribute
	MethodsOf(ns Namespace) []*Method
	ConstraintList() []*Constraint
	MethodFileList() []MethodFile
	TriggerCache() *trigger.SchemaCache
	StorageLayout() Layout
	AttributeCounter() primitives.AttrID
}

// Class is a committed class definition.
type Class struct {
	ID          primitives.ClassID
	Name        string
	Kind        ClassKind
	PartitionOf string

	Attributes       []*Attribute
	SharedAttributes []*Attribute
	ClassAttributes  []*Attribute
	Methods          []*Method
	ClassMethods     []*Method

	Supers      []string
	Users       []string
	Resolutions []Resolution
	Constraints []*Constraint
	MethodFiles []MethodFile
	QuerySpecs  []QuerySpec
	Triggers    *trigger.SchemaCache

	Repr            primitives.ReprID
	Representations []Representation
	Layout          Layout
	// IDCounter is the next attribute id to hand out. It only grows.
	IDCounter primitives.AttrID

	// Template is the live edit of this class, if any.
	Template *Template
}

func (c *Class) ClassName() string                   { return c.Name }
func (c *Class) ClassKind() ClassKind                { return c.Kind }
func (c *Class) SuperNames() []string                { return c.Supers }
func (c *Class) ConstraintList() []*Constraint       { return c.Constraints }
func (c *Class) MethodFileList() []MethodFile        { return c.MethodFiles }
func (c *Class) TriggerCache() *trigger.SchemaCache  { return c.Triggers }
func (c *Class) StorageLayout() Layout               { return c.Layout }
func (c *Class) AttributeCounter() primitives.AttrID { return c.IDCounter }

// AttributesOf returns the attribute list of namespace ns.
func (c *Class) AttributesOf(ns Namespace) []*Attribute {
	switch ns {
	case NamespaceAttribute:
		return c.Attributes
	case NamespaceShared:
		return c.SharedAttributes
	case NamespaceClassAttribute:
		return c.ClassAttributes
	default:
		return nil
	}
}

// MethodsOf returns the method list of namespace ns.
func (c *Class) MethodsOf(ns Namespace) []*Method {
	switch ns {
	case NamespaceMethod:
		return c.Methods
	case NamespaceClassMethod:
		return c.ClassMethods
	default:
		return nil
	}
}

// Attribute returns the instance attribute called name, or nil.
func (c *Class) Attribute(name string) *Attribute {
	return findAttribute(c.Attributes, name)
}

// AttributeByID returns the instance attribute with the given id, or nil.
func (c *Class) AttributeByID(id primitives.AttrID) *Attribute {
	i := slices.IndexFunc(c.Attributes, func(a *Attribute) bool { return a.ID == id })
	if i < 0 {
		return nil
	}
	return c.Attributes[i]
}

// Constraint returns the constraint called name, or nil.
func (c *Class) Constraint(name string) *Constraint {
	return FindConstraint(c.Constraints, name)
}

// HasSuper reports whether name is an immediate superclass.
func (c *Class) HasSuper(name string) bool {
	return slices.Contains(c.Supers, name)
}

// Clone returns a deep copy of the class without its template.
func (c *Class) Clone() *Class {
	out := &Class{
		ID:               c.ID,
		Name:             c.Name,
		Kind:             c.Kind,
		PartitionOf:      c.PartitionOf,
		Attributes:       cloneAttributes(c.Attributes),
		SharedAttributes: cloneAttributes(c.SharedAttributes),
		ClassAttributes:  cloneAttributes(c.ClassAttributes),
		Methods:          cloneMethods(c.Methods),
		ClassMethods:     cloneMethods(c.ClassMethods),
		Supers:           slices.Clone(c.Supers),
		Users:            slices.Clone(c.Users),
		Resolutions:      slices.Clone(c.Resolutions),
		Constraints:      cloneConstraints(c.Constraints),
		MethodFiles:      slices.Clone(c.MethodFiles),
		QuerySpecs:       slices.Clone(c.QuerySpecs),
		Triggers:         c.Triggers.Clone(),
		Repr:             c.Repr,
		Layout:           c.Layout.Clone(),
		IDCounter:        c.IDCounter,
	}
	for _, r := range c.Representations {
		out.Representations = append(out.Representations, Representation{ID: r.ID, Layout: r.Layout.Clone()})
	}
	return out
}

// MembersOf returns every member of the scope, attributes before methods.
func MembersOf(def Definition, scope Scope) []Member {
	var out []Member
	for _, ns := range scope.Namespaces() {
		if ns.IsMethod() {
			for _, m := range def.MethodsOf(ns) {
				out = append(out, m)
			}
			continue
		}
		for _, a := range def.AttributesOf(ns) {
			out = append(out, a)
		}
	}
	return out
}

// HasMember reports whether def has a member called name in scope.
func HasMember(def Definition, scope Scope, name string) bool {
	return slices.ContainsFunc(MembersOf(def, scope), func(m Member) bool {
		return m.MemberName() == name
	})
}

// EffectiveDefinition returns the definition subclasses should inherit from:
// the flattened pending edit when the class has one, otherwise the committed
// class.
func EffectiveDefinition(c *Class) Definition {
	if c.Template != nil && c.Template.Flat != nil {
		return c.Template.Flat
	}
	return c
}
