package schema

import (
	"classdb/pkg/primitives"
	"classdb/pkg/trigger"
)

// Flat is a fully resolved class definition: the local members of a template
// combined with everything it inherits. It is rebuilt from scratch on every
// flattening pass and is what gets installed.
type Flat struct {
	Name        string
	Kind        ClassKind
	PartitionOf string
	Supers      []string

	Attributes       []*Attribute
	SharedAttributes []*Attribute
	ClassAttributes  []*Attribute
	Methods          []*Method
	ClassMethods     []*Method

	Resolutions []Resolution
	MethodFiles []MethodFile
	QuerySpecs  []QuerySpec
	Constraints []*Constraint
	Triggers    *trigger.SchemaCache

	// Filled in by the storage-order builder.
	Layout    Layout
	IDCounter primitives.AttrID
}

func (f *Flat) ClassName() string                   { return f.Name }
func (f *Flat) ClassKind() ClassKind                { return f.Kind }
func (f *Flat) SuperNames() []string                { return f.Supers }
func (f *Flat) ConstraintList() []*Constraint       { return f.Constraints }
func (f *Flat) MethodFileList() []MethodFile        { return f.MethodFiles }
func (f *Flat) TriggerCache() *trigger.SchemaCache  { return f.Triggers }
func (f *Flat) StorageLayout() Layout               { return f.Layout }
func (f *Flat) AttributeCounter() primitives.AttrID { return f.IDCounter }

// AttributesOf returns the attribute list of namespace ns.
func (f *Flat) AttributesOf(ns Namespace) []*Attribute {
	switch ns {
	case NamespaceAttribute:
		return f.Attributes
	case NamespaceShared:
		return f.SharedAttributes
	case NamespaceClassAttribute:
		return f.ClassAttributes
	default:
		return nil
	}
}

// MethodsOf returns the method list of namespace ns.
func (f *Flat) MethodsOf(ns Namespace) []*Method {
	switch ns {
	case NamespaceMethod:
		return f.Methods
	case NamespaceClassMethod:
		return f.ClassMethods
	default:
		return nil
	}
}

// AppendAttribute adds a to the list of its namespace.
func (f *Flat) AppendAttribute(a *Attribute) {
	switch a.Namespace {
	case NamespaceAttribute:
		f.Attributes = append(f.Attributes, a)
	case NamespaceShared:
		f.SharedAttributes = append(f.SharedAttributes, a)
	case NamespaceClassAttribute:
		f.ClassAttributes = append(f.ClassAttributes, a)
	}
}

// AppendMethod adds m to the list of its namespace.
func (f *Flat) AppendMethod(m *Method) {
	switch m.Namespace {
	case NamespaceMethod:
		f.Methods = append(f.Methods, m)
	case NamespaceClassMethod:
		f.ClassMethods = append(f.ClassMethods, m)
	}
}

// Attribute returns the instance attribute called name, or nil.
func (f *Flat) Attribute(name string) *Attribute {
	return findAttribute(f.Attributes, name)
}

// Constraint returns the constraint called name, or nil.
func (f *Flat) Constraint(name string) *Constraint {
	return FindConstraint(f.Constraints, name)
}

// AttributeCount returns the number of attributes over all namespaces.
func (f *Flat) AttributeCount() int {
	return len(f.Attributes) + len(f.SharedAttributes) + len(f.ClassAttributes)
}

// ToClass builds the committed form of the flat. Identity, the subclass list
// and the representation history are taken from prev, which is nil when the
// class is being created.
func (f *Flat) ToClass(prev *Class) *Class {
	c := &Class{
		Name:             f.Name,
		Kind:             f.Kind,
		PartitionOf:      f.PartitionOf,
		Attributes:       cloneAttributes(f.Attributes),
		SharedAttributes: cloneAttributes(f.SharedAttributes),
		ClassAttributes:  cloneAttributes(f.ClassAttributes),
		Methods:          cloneMethods(f.Methods),
		ClassMethods:     cloneMethods(f.ClassMethods),
		Supers:           append([]string(nil), f.Supers...),
		Resolutions:      append([]Resolution(nil), f.Resolutions...),
		Constraints:      cloneConstraints(f.Constraints),
		MethodFiles:      append([]MethodFile(nil), f.MethodFiles...),
		QuerySpecs:       append([]QuerySpec(nil), f.QuerySpecs...),
		Triggers:         f.Triggers.Clone(),
		Layout:           f.Layout.Clone(),
		IDCounter:        f.IDCounter,
		Repr:             primitives.InvalidReprID,
	}
	if prev != nil {
		c.ID = prev.ID
		c.Users = append([]string(nil), prev.Users...)
		c.Repr = prev.Repr
		for _, r := range prev.Representations {
			c.Representations = append(c.Representations, Representation{ID: r.ID, Layout: r.Layout.Clone()})
		}
	}
	return c
}
