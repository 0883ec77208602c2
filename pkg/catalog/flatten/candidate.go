package flatten

import (
	"cmp"
	"slices"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/primitives"
)

// Candidate is one definition of a named member considered while flattening:
// either a local definition of the template or a member contributed by one
// of its immediate superclasses. Candidates live for one flattening pass.
type Candidate struct {
	Name string
	// Original is the member's own name when Name is an alias.
	Original  string
	Namespace schema.Namespace
	// Origin is the class that physically defines the member.
	Origin string
	// Source is the immediate superclass the member is inherited through,
	// empty for local definitions.
	Source    string
	Attribute *schema.Attribute
	Method    *schema.Method
	Order     int

	IsAlias     bool
	IsRequested bool
	// Aliased marks a member that an explicit resolution made visible under
	// another name; it no longer competes for its own name.
	Aliased bool
}

// IsLocal reports whether the candidate is defined by the template itself.
func (c *Candidate) IsLocal() bool {
	return c.Source == ""
}

// Domain returns the attribute domain or the method's return domain.
func (c *Candidate) Domain() *domain.Domain {
	if c.Method != nil {
		return c.Method.Signature.Return
	}
	return c.Attribute.Domain
}

func (c *Candidate) describe() string {
	if c.IsLocal() {
		return c.Origin + " (local)"
	}
	return c.Origin + " via " + c.Source
}

func newCandidate(m schema.Member, source string, order int) *Candidate {
	c := &Candidate{
		Name:      m.MemberName(),
		Namespace: m.MemberNamespace(),
		Origin:    m.MemberOrigin(),
		Source:    source,
		Order:     order,
	}
	switch v := m.(type) {
	case *schema.Attribute:
		c.Attribute = v
	case *schema.Method:
		c.Method = v
	}
	return c
}

// buildCandidates lists the candidates of one scope: the members of every
// superclass left to right, each seen through its pending edit when it has
// one, followed by the template's local members in declaration order.
func (f *Flattener) buildCandidates(tpl *schema.Template, scope schema.Scope, resolutions []schema.Resolution) ([]*Candidate, error) {
	var out []*Candidate
	order := 0

	for _, super := range tpl.Supers {
		def, err := f.definition(super)
		if err != nil {
			return nil, err
		}
		for _, m := range schema.MembersOf(def, scope) {
			c := newCandidate(m, super, order)
			order++
			for _, r := range resolutions {
				if r.Scope != scope || r.Source != super || r.Name != c.Name {
					continue
				}
				if r.Alias == "" {
					c.IsRequested = true
					continue
				}
				alias := *c
				alias.Name = r.Alias
				alias.Original = c.Name
				alias.IsAlias = true
				alias.IsRequested = false
				out = append(out, &alias)
				c.Aliased = true
			}
			out = append(out, c)
		}
	}

	for _, m := range localMembers(tpl, scope) {
		out = append(out, newCandidate(m, "", order))
		order++
	}
	return out, nil
}

// localMembers returns the template's own members of scope in declaration order.
func localMembers(tpl *schema.Template, scope schema.Scope) []schema.Member {
	type ordered struct {
		m     schema.Member
		order int
	}
	var all []ordered
	for _, ns := range scope.Namespaces() {
		switch ns {
		case schema.NamespaceAttribute, schema.NamespaceShared, schema.NamespaceClassAttribute:
			for _, a := range tpl.LocalAttributes(ns) {
				all = append(all, ordered{a, a.Order})
			}
		case schema.NamespaceMethod, schema.NamespaceClassMethod:
			for _, m := range tpl.LocalMethods(ns) {
				all = append(all, ordered{m, m.Order})
			}
		}
	}
	slices.SortStableFunc(all, func(a, b ordered) int { return cmp.Compare(a.order, b.order) })

	out := make([]schema.Member, len(all))
	for i, o := range all {
		out[i] = o.m
	}
	return out
}

// groupByName partitions candidates by name. Names are returned in order of
// their first candidate.
func groupByName(cands []*Candidate) ([]string, map[string][]*Candidate) {
	groups := make(map[string][]*Candidate)
	var names []string
	for _, c := range cands {
		if _, seen := groups[c.Name]; !seen {
			names = append(names, c.Name)
		}
		groups[c.Name] = append(groups[c.Name], c)
	}
	return names, groups
}

// toAttribute turns a winning candidate into a member of the flat. Inherited
// members lose their id so the storage-order builder can recover or assign it.
func (c *Candidate) toAttribute(order int) *schema.Attribute {
	a := c.Attribute.Clone()
	a.Name = c.Name
	a.Order = order
	if c.IsLocal() {
		a.OriginID = a.ID
	} else {
		a.ID = primitives.InvalidAttrID
	}
	return a
}

func (c *Candidate) toMethod(order int) *schema.Method {
	m := c.Method.Clone()
	m.Name = c.Name
	m.Order = order
	if !c.IsLocal() {
		m.ID = primitives.InvalidAttrID
	}
	return m
}
