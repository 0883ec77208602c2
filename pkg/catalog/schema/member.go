package schema

import (
	"fmt"
	"slices"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/primitives"
)

// Namespace tells which member list a member lives in.
type Namespace uint8

const (
	NamespaceAttribute Namespace = iota
	NamespaceShared
	NamespaceClassAttribute
	NamespaceMethod
	NamespaceClassMethod
)

func (n Namespace) String() string {
	switch n {
	case NamespaceAttribute:
		return "attribute"
	case NamespaceShared:
		return "shared attribute"
	case NamespaceClassAttribute:
		return "class attribute"
	case NamespaceMethod:
		return "method"
	case NamespaceClassMethod:
		return "class method"
	default:
		return fmt.Sprintf("namespace(%d)", uint8(n))
	}
}

// IsMethod reports whether the namespace holds methods rather than data members.
func (n Namespace) IsMethod() bool {
	return n == NamespaceMethod || n == NamespaceClassMethod
}

// Scope returns the resolution scope the namespace belongs to.
func (n Namespace) Scope() Scope {
	switch n {
	case NamespaceClassAttribute, NamespaceClassMethod:
		return ScopeClass
	default:
		return ScopeInstance
	}
}

// Scope groups namespaces that share one name space for resolution purposes:
// instance attributes, shared attributes and instance methods may not reuse
// each other's names; class attributes and class methods likewise.
type Scope uint8

const (
	ScopeInstance Scope = iota
	ScopeClass
)

func (s Scope) String() string {
	if s == ScopeClass {
		return "class"
	}
	return "instance"
}

// Namespaces lists the namespaces of the scope in flattening order.
func (s Scope) Namespaces() []Namespace {
	if s == ScopeClass {
		return []Namespace{NamespaceClassAttribute, NamespaceClassMethod}
	}
	return []Namespace{NamespaceAttribute, NamespaceShared, NamespaceMethod}
}

// Member is the view of an attribute or method shared by candidate building
// and resolution.
type Member interface {
	MemberName() string
	MemberNamespace() Namespace
	MemberOrigin() string
	MemberDomain() *domain.Domain
}

// Attribute is an instance, shared or class attribute.
type Attribute struct {
	ID primitives.AttrID
	// OriginID is the identifier of this attribute inside its origin class.
	// It survives renames in the origin and lets subclasses keep their own
	// identifier for the attribute.
	OriginID  primitives.AttrID
	Name      string
	Namespace Namespace
	Domain    *domain.Domain
	// Origin is the class where the attribute is physically defined.
	Origin  string
	Order   int
	NotNull bool
	Default string
}

func (a *Attribute) MemberName() string           { return a.Name }
func (a *Attribute) MemberNamespace() Namespace   { return a.Namespace }
func (a *Attribute) MemberOrigin() string         { return a.Origin }
func (a *Attribute) MemberDomain() *domain.Domain { return a.Domain }

// Clone returns a deep copy of the attribute.
func (a *Attribute) Clone() *Attribute {
	c := *a
	c.Domain = a.Domain.Clone()
	return &c
}

// IsInheritedBy reports whether the attribute is inherited when seen from class.
func (a *Attribute) IsInheritedBy(class string) bool {
	return a.Origin != class
}

// Signature is the return and argument domains of a method.
type Signature struct {
	Return *domain.Domain
	Args   []*domain.Domain
}

// Clone returns a deep copy of the signature.
func (s Signature) Clone() Signature {
	c := Signature{Return: s.Return.Clone()}
	for _, a := range s.Args {
		c.Args = append(c.Args, a.Clone())
	}
	return c
}

// Method is an instance or class method.
type Method struct {
	ID        primitives.AttrID
	Name      string
	Namespace Namespace
	Origin    string
	Signature Signature
	// Function is the implementing function name, resolved through method files.
	Function string
	Order    int
}

func (m *Method) MemberName() string           { return m.Name }
func (m *Method) MemberNamespace() Namespace   { return m.Namespace }
func (m *Method) MemberOrigin() string         { return m.Origin }
func (m *Method) MemberDomain() *domain.Domain { return m.Signature.Return }

// Clone returns a deep copy of the method.
func (m *Method) Clone() *Method {
	c := *m
	c.Signature = m.Signature.Clone()
	return &c
}

// Resolution is an explicit disambiguation of an inherited name: pin Name to
// the component inherited through Source, or make it visible as Alias.
type Resolution struct {
	Name   string
	Scope  Scope
	Source string
	Alias  string
}

// MethodFile is an object file implementing methods of a class.
type MethodFile struct {
	Name   string
	Origin string
}

// QuerySpec is one query of a view definition.
type QuerySpec struct {
	Text string
}

func cloneAttributes(attrs []*Attribute) []*Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]*Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = a.Clone()
	}
	return out
}

func cloneMethods(methods []*Method) []*Method {
	if methods == nil {
		return nil
	}
	out := make([]*Method, len(methods))
	for i, m := range methods {
		out[i] = m.Clone()
	}
	return out
}

func findAttribute(attrs []*Attribute, name string) *Attribute {
	i := slices.IndexFunc(attrs, func(a *Attribute) bool { return a.Name == name })
	if i < 0 {
		return nil
	}
	return attrs[i]
}

func findMethod(methods []*Method, name string) *Method {
	i := slices.IndexFunc(methods, func(m *Method) bool { return m.Name == name })
	if i < 0 {
		return nil
	}
	return methods[i]
}
