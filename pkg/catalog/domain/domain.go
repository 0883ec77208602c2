// Package domain describes attribute types (domains) and orders them by
// specificity. Object domains reference classes by name; a placeholder domain
// references the class being created by the same template, before it exists.
package domain

import (
	"fmt"
	"strings"
)

// Kind is the primitive kind of a domain.
type Kind uint8

const (
	KindInteger Kind = iota + 1
	KindShort
	KindBigInt
	KindFloat
	KindDouble
	KindNumeric
	KindChar
	KindVarchar
	KindBit
	KindVarbit
	KindDate
	KindTime
	KindTimestamp
	KindObject
	KindSet
	KindMultiset
	KindSequence
)

var kindNames = map[Kind]string{
	KindInteger:   "integer",
	KindShort:     "short",
	KindBigInt:    "bigint",
	KindFloat:     "float",
	KindDouble:    "double",
	KindNumeric:   "numeric",
	KindChar:      "char",
	KindVarchar:   "varchar",
	KindBit:       "bit",
	KindVarbit:    "varbit",
	KindDate:      "date",
	KindTime:      "time",
	KindTimestamp: "timestamp",
	KindObject:    "object",
	KindSet:       "set",
	KindMultiset:  "multiset",
	KindSequence:  "sequence",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	lower := strings.ToLower(name)
	for k, n := range kindNames {
		if n == lower {
			return k, nil
		}
	}
	switch lower {
	case "int":
		return KindInteger, nil
	case "string":
		return KindVarchar, nil
	}
	return 0, fmt.Errorf("unknown domain kind %q", name)
}

// IsCollection reports whether values of the kind hold elements.
func (k Kind) IsCollection() bool {
	return k == KindSet || k == KindMultiset || k == KindSequence
}

// Domain is a type descriptor.
type Domain struct {
	Kind      Kind
	Precision int
	Scale     int

	// Class names the referenced class of an object domain. Empty means any object.
	Class string

	// Placeholder marks Class as the class being created by the template that
	// declares this domain.
	Placeholder bool

	// Elements are the element domains of a collection.
	Elements []*Domain
}

// Scalar returns a domain of a non-object kind.
func Scalar(kind Kind) *Domain {
	return &Domain{Kind: kind}
}

// Sized returns a domain with a precision, e.g. char(10) or numeric(12).
func Sized(kind Kind, precision int) *Domain {
	return &Domain{Kind: kind, Precision: precision}
}

// Object returns an object domain referencing the named class.
func Object(class string) *Domain {
	return &Domain{Kind: KindObject, Class: class}
}

// SelfReference returns a placeholder domain for a class that is still being created.
func SelfReference(class string) *Domain {
	return &Domain{Kind: KindObject, Class: class, Placeholder: true}
}

// Collection returns a collection domain over the given element domains.
func Collection(kind Kind, elements ...*Domain) *Domain {
	return &Domain{Kind: kind, Elements: elements}
}

// Clone returns a deep copy of d.
func (d *Domain) Clone() *Domain {
	if d == nil {
		return nil
	}
	c := *d
	if d.Elements != nil {
		c.Elements = make([]*Domain, len(d.Elements))
		for i, e := range d.Elements {
			c.Elements[i] = e.Clone()
		}
	}
	return &c
}

// Same reports structural identity: same kind, precision, scale, referenced
// class and elements. Unlike the comparator it ignores the class hierarchy.
func (d *Domain) Same(o *Domain) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Kind != o.Kind || d.Precision != o.Precision || d.Scale != o.Scale ||
		d.Class != o.Class || d.Placeholder != o.Placeholder || len(d.Elements) != len(o.Elements) {
		return false
	}
	for i := range d.Elements {
		if !d.Elements[i].Same(o.Elements[i]) {
			return false
		}
	}
	return true
}

// IsFixed reports whether values of the domain occupy a fixed number of bytes
// inside a record.
func (d *Domain) IsFixed() bool {
	switch d.Kind {
	case KindVarchar, KindVarbit, KindSet, KindMultiset, KindSequence:
		return false
	default:
		return true
	}
}

// Size returns the on-disk size in bytes of a fixed domain, 0 for variable ones.
func (d *Domain) Size() int {
	switch d.Kind {
	case KindShort:
		return 2
	case KindInteger, KindFloat, KindDate, KindTime:
		return 4
	case KindBigInt, KindDouble, KindTimestamp, KindObject:
		return 8
	case KindNumeric:
		return d.Precision/2 + 1
	case KindChar:
		return max(d.Precision, 1)
	case KindBit:
		return (max(d.Precision, 1) + 7) / 8
	default:
		return 0
	}
}

// Alignment returns the natural alignment of a fixed domain.
func (d *Domain) Alignment() int {
	switch d.Kind {
	case KindShort:
		return 2
	case KindInteger, KindFloat, KindDate, KindTime, KindObject:
		return 4
	case KindBigInt, KindDouble, KindTimestamp:
		return 8
	default:
		return 1
	}
}

func (d *Domain) String() string {
	if d == nil {
		return "<nil>"
	}
	switch {
	case d.Kind == KindObject && d.Class == "":
		return "object"
	case d.Kind == KindObject && d.Placeholder:
		return d.Class + "(pending)"
	case d.Kind == KindObject:
		return d.Class
	case d.Kind.IsCollection():
		parts := make([]string, len(d.Elements))
		for i, e := range d.Elements {
			parts[i] = e.String()
		}
		return fmt.Sprintf("%s(%s)", d.Kind, strings.Join(parts, ", "))
	case d.Scale > 0:
		return fmt.Sprintf("%s(%d,%d)", d.Kind, d.Precision, d.Scale)
	case d.Precision > 0:
		return fmt.Sprintf("%s(%d)", d.Kind, d.Precision)
	default:
		return d.Kind.String()
	}
}
