package domain

import "github.com/juju/collections/set"

// Relation is the outcome of comparing two domains.
type Relation int

const (
	Incompatible Relation = iota
	Equal
	// MoreSpecific means the first domain is a subtype of the second.
	MoreSpecific
	// LessSpecific means the first domain is a supertype of the second.
	LessSpecific
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "equal"
	case MoreSpecific:
		return "more-specific"
	case LessSpecific:
		return "less-specific"
	default:
		return "incompatible"
	}
}

// Invert returns the relation seen from the other operand.
func (r Relation) Invert() Relation {
	switch r {
	case MoreSpecific:
		return LessSpecific
	case LessSpecific:
		return MoreSpecific
	default:
		return r
	}
}

// Lineage exposes the superclass lists the comparator walks.
type Lineage interface {
	// Supers returns the committed immediate superclasses of a class.
	Supers(class string) []string

	// PendingSupers returns the superclasses proposed by the live template of
	// a class, and false when the class has no template.
	PendingSupers(class string) ([]string, bool)
}

// Comparator orders domains by specificity.
type Comparator struct {
	lineage Lineage
}

// NewComparator returns a comparator walking the given lineage.
func NewComparator(lineage Lineage) *Comparator {
	return &Comparator{lineage: lineage}
}

// Compare classifies d1 against d2.
//
// Non-object domains of the same kind are Equal; element compatibility of
// collections is left to the caller. Object domains are ordered through the
// class hierarchy, looking at both committed and pending superclass lists.
func (c *Comparator) Compare(d1, d2 *Domain) Relation {
	if d1 == nil || d2 == nil {
		if d1 == d2 {
			return Equal
		}
		return Incompatible
	}
	if d1.Kind != d2.Kind {
		return Incompatible
	}
	if d1.Kind != KindObject {
		return Equal
	}

	switch {
	case d1.Placeholder && d2.Placeholder:
		if d1.Class == d2.Class {
			return Equal
		}
		return Incompatible
	case d1.Placeholder:
		return c.comparePlaceholder(d1, d2)
	case d2.Placeholder:
		return c.comparePlaceholder(d2, d1).Invert()
	}

	return c.compareClasses(d1.Class, d2.Class)
}

// comparePlaceholder compares a not-yet-created class against a real domain.
// Only the pending chain of the placeholder's template is consulted, so a class
// being created is recognised as a future subtype of an existing class.
func (c *Comparator) comparePlaceholder(pending, real *Domain) Relation {
	if real.Class == "" {
		return MoreSpecific
	}
	if c.reachable(pending.Class, real.Class, true) {
		return MoreSpecific
	}
	return Incompatible
}

func (c *Comparator) compareClasses(a, b string) Relation {
	switch {
	case a == b:
		return Equal
	case b == "":
		return MoreSpecific
	case a == "":
		return LessSpecific
	case c.reachable(a, b, false):
		return MoreSpecific
	case c.reachable(b, a, false):
		return LessSpecific
	default:
		return Incompatible
	}
}

// IsSubclass reports whether super is a proper ancestor of sub, considering
// both committed and pending superclass lists.
func (c *Comparator) IsSubclass(sub, super string) bool {
	return sub != super && c.reachable(sub, super, false)
}

// reachable walks the superclass graph from start looking for target. With
// pendingFirst, start's own superclasses come from its template only.
func (c *Comparator) reachable(start, target string, pendingFirst bool) bool {
	seen := set.NewStrings(start)
	var work []string

	if pendingFirst {
		supers, _ := c.lineage.PendingSupers(start)
		work = append(work, supers...)
	} else {
		work = append(work, c.allSupers(start)...)
	}

	for len(work) > 0 {
		name := work[0]
		work = work[1:]
		if name == target {
			return true
		}
		if seen.Contains(name) {
			continue
		}
		seen.Add(name)
		if pendingFirst {
			if supers, ok := c.lineage.PendingSupers(name); ok {
				work = append(work, supers...)
				continue
			}
			work = append(work, c.lineage.Supers(name)...)
			continue
		}
		work = append(work, c.allSupers(name)...)
	}
	return false
}

func (c *Comparator) allSupers(class string) []string {
	supers := c.lineage.Supers(class)
	if pending, ok := c.lineage.PendingSupers(class); ok {
		supers = append(append([]string(nil), supers...), pending...)
	}
	return supers
}
