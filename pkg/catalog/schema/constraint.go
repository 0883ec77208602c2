package schema

import (
	"fmt"
	"slices"

	"classdb/pkg/primitives"
)

// ConstraintKind identifies what a constraint enforces.
type ConstraintKind uint8

const (
	ConstraintUnique ConstraintKind = iota
	ConstraintReverseUnique
	ConstraintPrimaryKey
	ConstraintForeignKey
	ConstraintIndex
	ConstraintReverseIndex
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "unique"
	case ConstraintReverseUnique:
		return "reverse unique"
	case ConstraintPrimaryKey:
		return "primary key"
	case ConstraintForeignKey:
		return "foreign key"
	case ConstraintIndex:
		return "index"
	case ConstraintReverseIndex:
		return "reverse index"
	default:
		return fmt.Sprintf("constraint(%d)", uint8(k))
	}
}

// IsUniqueFamily reports whether the constraint rejects duplicate keys.
func (k ConstraintKind) IsUniqueFamily() bool {
	return k == ConstraintUnique || k == ConstraintReverseUnique || k == ConstraintPrimaryKey
}

// IsInheritable reports whether subclasses inherit the constraint. Plain
// indexes stay with the class that declares them.
func (k ConstraintKind) IsInheritable() bool {
	return k.IsUniqueFamily() || k == ConstraintForeignKey
}

// IsReverse reports whether keys are stored in reverse order.
func (k ConstraintKind) IsReverse() bool {
	return k == ConstraintReverseUnique || k == ConstraintReverseIndex
}

// ConstraintAttr is one key column of a constraint.
type ConstraintAttr struct {
	Name string
	// Origin is the class defining the attribute, filled in by flattening.
	Origin       string
	ID           primitives.AttrID
	Descending   bool
	PrefixLength int
}

// Action is a referential action of a foreign key.
type Action uint8

const (
	ActionRestrict Action = iota
	ActionCascade
	ActionSetNull
	ActionNoAction
)

func (a Action) String() string {
	switch a {
	case ActionCascade:
		return "cascade"
	case ActionSetNull:
		return "set null"
	case ActionNoAction:
		return "no action"
	default:
		return "restrict"
	}
}

// ForeignKeyInfo describes the key a foreign key points at.
type ForeignKeyInfo struct {
	RefClass      string
	RefConstraint string
	OnDelete      Action
	OnUpdate      Action
}

// ForeignRef is a reverse reference kept on a primary key: the foreign key
// Constraint of Class refers to it through BTree.
type ForeignRef struct {
	Class      string
	Constraint string
	BTree      primitives.BTreeID
}

// Constraint is a named rule over attributes, backed by a B-tree.
type Constraint struct {
	Name       string
	Kind       ConstraintKind
	Attributes []ConstraintAttr
	BTree      primitives.BTreeID
	// Origin is the class that declared the constraint.
	Origin string
	// Owner is the class that allocated BTree and is the only class allowed
	// to delete it. Inheriting classes only detach their rows.
	Owner      string
	ForeignKey *ForeignKeyInfo
	References []ForeignRef
}

// Clone returns a deep copy of the constraint.
func (c *Constraint) Clone() *Constraint {
	out := *c
	out.Attributes = slices.Clone(c.Attributes)
	out.References = slices.Clone(c.References)
	if c.ForeignKey != nil {
		fk := *c.ForeignKey
		out.ForeignKey = &fk
	}
	return &out
}

// AttributeNames returns the key column names in key order.
func (c *Constraint) AttributeNames() []string {
	names := make([]string, len(c.Attributes))
	for i, a := range c.Attributes {
		names[i] = a.Name
	}
	return names
}

// SameChain reports whether both constraints cover the same attributes,
// defined by the same classes, in the same key order.
func (c *Constraint) SameChain(o *Constraint) bool {
	if len(c.Attributes) != len(o.Attributes) {
		return false
	}
	for i := range c.Attributes {
		if c.Attributes[i].Name != o.Attributes[i].Name || c.Attributes[i].Origin != o.Attributes[i].Origin {
			return false
		}
	}
	return true
}

// IsOwnedBy reports whether class is responsible for the B-tree.
func (c *Constraint) IsOwnedBy(class string) bool {
	return c.Owner == class
}

func cloneConstraints(cs []*Constraint) []*Constraint {
	if cs == nil {
		return nil
	}
	out := make([]*Constraint, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}

// FindConstraint returns the constraint with the given name, or nil.
func FindConstraint(cs []*Constraint, name string) *Constraint {
	i := slices.IndexFunc(cs, func(c *Constraint) bool { return c.Name == name })
	if i < 0 {
		return nil
	}
	return cs[i]
}

// PrimaryKey returns the primary key among cs, or nil.
func PrimaryKey(cs []*Constraint) *Constraint {
	i := slices.IndexFunc(cs, func(c *Constraint) bool { return c.Kind == ConstraintPrimaryKey })
	if i < 0 {
		return nil
	}
	return cs[i]
}
