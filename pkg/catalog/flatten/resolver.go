package flatten

import (
	"cmp"
	"slices"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
)

// Resolver picks the single definition a name takes in a flattened class.
type Resolver struct {
	cmp         *domain.Comparator
	autoResolve bool
}

// NewResolver returns a resolver comparing domains with cmp. With
// autoResolve, an unresolved conflict between equally specific definitions
// is settled by pinning the first one instead of failing.
func NewResolver(cmp *domain.Comparator, autoResolve bool) *Resolver {
	return &Resolver{cmp: cmp, autoResolve: autoResolve}
}

// Outcome is the result of resolving one name.
type Outcome struct {
	// Winner is nil when every candidate was renamed away by an alias.
	Winner *Candidate
	// AutoResolution is set when the winner was chosen by auto-resolve and
	// the choice must be recorded on the template.
	AutoResolution *schema.Resolution
}

// sortCandidates orders a group by definition order, then source and origin,
// so resolution does not depend on how the group was assembled.
func sortCandidates(group []*Candidate) []*Candidate {
	sorted := slices.Clone(group)
	slices.SortStableFunc(sorted, func(a, b *Candidate) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Origin, b.Origin)
	})
	return sorted
}

// Resolve applies the inheritance rules to the candidates sharing one name
// within class.
func (r *Resolver) Resolve(class string, group []*Candidate) (*Outcome, error) {
	if len(group) == 0 {
		return &Outcome{}, nil
	}
	group = sortCandidates(group)
	name := group[0].Name

	var aliases, normals []*Candidate
	for _, c := range group {
		switch {
		case c.IsAlias:
			aliases = append(aliases, c)
		case !c.Aliased:
			normals = append(normals, c)
		}
	}

	if err := checkOverlap(class, name, append(slices.Clone(aliases), normals...)); err != nil {
		return nil, err
	}

	if len(aliases) > 0 {
		if i := slices.IndexFunc(normals, func(c *Candidate) bool { return !c.IsLocal() }); i >= 0 {
			return nil, schemaerrors.Definition(schemaerrors.AliasConflict, component,
				"class %q: alias %q of %s collides with %q inherited from %s",
				class, name, aliases[0].describe(), name, normals[i].describe())
		}
	}

	alias, err := r.bestAlias(class, name, aliases)
	if err != nil {
		return nil, err
	}
	if len(normals) == 0 {
		return &Outcome{Winner: alias}, nil
	}

	winner, conflict, err := r.pickWinner(class, name, normals)
	if err != nil {
		return nil, err
	}

	if alias != nil {
		rel := r.cmp.Compare(winner.Domain(), alias.Domain())
		if rel != domain.Equal && rel != domain.MoreSpecific {
			return nil, schemaerrors.Definition(schemaerrors.AliasDomain, component,
				"class %q: %q from %s (%s) is not compatible with alias of %s (%s)",
				class, name, winner.describe(), winner.Domain(), alias.describe(), alias.Domain())
		}
	}

	if conflict == nil {
		return &Outcome{Winner: winner}, nil
	}
	if !r.autoResolve {
		return nil, schemaerrors.Definition(schemaerrors.ResolutionConflict, component,
			"class %q: %q is inherited from both %s and %s; add a resolution",
			class, name, winner.describe(), conflict.describe())
	}
	return &Outcome{
		Winner: winner,
		AutoResolution: &schema.Resolution{
			Name:   name,
			Scope:  winner.Namespace.Scope(),
			Source: winner.Source,
		},
	}, nil
}

// checkOverlap rejects a name that denotes both a data member and a method.
func checkOverlap(class, name string, cands []*Candidate) error {
	for _, a := range cands {
		for _, b := range cands {
			if a.Namespace.IsMethod() && !b.Namespace.IsMethod() {
				return schemaerrors.Definition(schemaerrors.AttributeMethodOverlap, component,
					"class %q: %q is a %s in %s and a %s in %s",
					class, name, b.Namespace, b.describe(), a.Namespace, a.describe())
			}
		}
	}
	return nil
}

// bestAlias returns the most specific alias candidate; every other alias
// must be compatible with it.
func (r *Resolver) bestAlias(class, name string, aliases []*Candidate) (*Candidate, error) {
	if len(aliases) == 0 {
		return nil, nil
	}
	best := aliases[0]
	for _, c := range aliases[1:] {
		if r.cmp.Compare(c.Domain(), best.Domain()) == domain.MoreSpecific {
			best = c
		}
	}
	for _, c := range aliases {
		if c != best && r.cmp.Compare(c.Domain(), best.Domain()) == domain.Incompatible {
			return nil, schemaerrors.Definition(schemaerrors.IncompatibleDomains, component,
				"class %q: aliases %q of %s (%s) and %s (%s) are incompatible",
				class, name, c.describe(), c.Domain(), best.describe(), best.Domain())
		}
	}
	return best, nil
}

// pickWinner selects among non-alias candidates: a local definition first,
// then an explicitly requested one, then the most specific domain. It also
// returns an unresolved equally specific rival, if one survives.
func (r *Resolver) pickWinner(class, name string, normals []*Candidate) (*Candidate, *Candidate, error) {
	if i := slices.IndexFunc(normals, (*Candidate).IsLocal); i >= 0 {
		local := normals[i]
		for _, c := range normals {
			if c == local {
				continue
			}
			rel := r.cmp.Compare(local.Domain(), c.Domain())
			if rel == domain.Incompatible || rel == domain.LessSpecific {
				return nil, nil, schemaerrors.Definition(schemaerrors.IncompatibleDomains, component,
					"class %q: local %q (%s) cannot override the definition from %s (%s)",
					class, name, local.Domain(), c.describe(), c.Domain())
			}
		}
		return local, nil, nil
	}

	var requested []*Candidate
	for _, c := range normals {
		if c.IsRequested {
			requested = append(requested, c)
		}
	}
	switch len(requested) {
	case 0:
	case 1:
		return requested[0], nil, nil
	default:
		return nil, nil, schemaerrors.Definition(schemaerrors.ResolutionConflict, component,
			"class %q: %q is resolved to both %s and %s",
			class, name, requested[0].describe(), requested[1].describe())
	}

	winner := normals[0]
	var conflict *Candidate
	for _, c := range normals[1:] {
		if c.Origin == winner.Origin {
			continue
		}
		switch r.cmp.Compare(c.Domain(), winner.Domain()) {
		case domain.MoreSpecific:
			winner, conflict = c, nil
		case domain.Equal:
			if conflict == nil {
				conflict = c
			}
		case domain.LessSpecific:
		case domain.Incompatible:
			return nil, nil, schemaerrors.Definition(schemaerrors.IncompatibleDomains, component,
				"class %q: %q from %s (%s) and %s (%s) are incompatible",
				class, name, winner.describe(), winner.Domain(), c.describe(), c.Domain())
		}
	}
	if conflict != nil && conflict.Origin == winner.Origin {
		conflict = nil
	}
	return winner, conflict, nil
}
