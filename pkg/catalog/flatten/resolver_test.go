package flatten

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
)

func candidate(name, origin, source string, order int, d *domain.Domain) *Candidate {
	a := &schema.Attribute{Name: name, Namespace: schema.NamespaceAttribute, Origin: origin, Domain: d}
	return newCandidate(a, source, order)
}

func TestResolveIsOrderIndependent(t *testing.T) {
	shape, circle := shapes()
	r := NewResolver(domain.NewComparator(newFakeCatalog(shape, circle)), false)

	group := []*Candidate{
		candidate("p", "A", "A", 0, domain.Object("Shape")),
		candidate("p", "B", "B", 1, domain.Object("Circle")),
		candidate("p", "C", "C", 2, domain.Object("")),
	}
	reversed := []*Candidate{group[2], group[1], group[0]}

	first, err := r.Resolve("D", group)
	require.NoError(t, err)
	second, err := r.Resolve("D", reversed)
	require.NoError(t, err)
	assert.Same(t, first.Winner, second.Winner)
	assert.Equal(t, "B", first.Winner.Origin)
}

func TestResolveRules(t *testing.T) {
	shape, circle := shapes()
	cmp := domain.NewComparator(newFakeCatalog(shape, circle))
	integer := domain.Scalar(domain.KindInteger)

	tests := []struct {
		name       string
		group      []*Candidate
		auto       bool
		wantOrigin string
		wantErr    error
	}{
		{
			name:       "single inherited",
			group:      []*Candidate{candidate("x", "A", "A", 0, integer)},
			wantOrigin: "A",
		},
		{
			name: "local wins over equal inherited",
			group: []*Candidate{
				candidate("x", "A", "A", 0, integer),
				candidate("x", "C", "", 1, integer),
			},
			wantOrigin: "C",
		},
		{
			name: "local cannot generalize",
			group: []*Candidate{
				candidate("x", "A", "A", 0, domain.Object("Circle")),
				candidate("x", "C", "", 1, domain.Object("Shape")),
			},
			wantErr: schemaerrors.IncompatibleDomains,
		},
		{
			name: "equal domains conflict",
			group: []*Candidate{
				candidate("x", "A", "A", 0, integer),
				candidate("x", "B", "B", 1, integer),
			},
			wantErr: schemaerrors.ResolutionConflict,
		},
		{
			name: "equal domains auto resolved",
			group: []*Candidate{
				candidate("x", "A", "A", 0, integer),
				candidate("x", "B", "B", 1, integer),
			},
			auto:       true,
			wantOrigin: "A",
		},
		{
			name: "more specific wins",
			group: []*Candidate{
				candidate("x", "A", "A", 0, domain.Object("Shape")),
				candidate("x", "B", "B", 1, domain.Object("Circle")),
			},
			wantOrigin: "B",
		},
		{
			name: "incompatible",
			group: []*Candidate{
				candidate("x", "A", "A", 0, integer),
				candidate("x", "B", "B", 1, domain.Scalar(domain.KindDate)),
			},
			wantErr: schemaerrors.IncompatibleDomains,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewResolver(cmp, tt.auto).Resolve("C", tt.group)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrigin, out.Winner.Origin)
			assert.Equal(t, tt.auto, out.AutoResolution != nil)
		})
	}
}

func TestResolveRequestedWins(t *testing.T) {
	r := NewResolver(domain.NewComparator(newFakeCatalog()), false)
	a := candidate("x", "A", "A", 0, domain.Scalar(domain.KindInteger))
	b := candidate("x", "B", "B", 1, domain.Scalar(domain.KindInteger))
	b.IsRequested = true

	out, err := r.Resolve("C", []*Candidate{a, b})
	require.NoError(t, err)
	assert.Same(t, b, out.Winner)

	a.IsRequested = true
	_, err = r.Resolve("C", []*Candidate{a, b})
	assert.True(t, errors.Is(err, schemaerrors.ResolutionConflict))
}

func TestResolveAliasCollision(t *testing.T) {
	r := NewResolver(domain.NewComparator(newFakeCatalog()), false)
	alias := candidate("y", "B", "B", 1, domain.Scalar(domain.KindInteger))
	alias.IsAlias = true
	alias.Original = "x"
	inherited := candidate("y", "A", "A", 0, domain.Scalar(domain.KindInteger))

	_, err := r.Resolve("C", []*Candidate{inherited, alias})
	assert.True(t, errors.Is(err, schemaerrors.AliasConflict))

	local := candidate("y", "C", "", 2, domain.Scalar(domain.KindInteger))
	out, err := r.Resolve("C", []*Candidate{alias, local})
	require.NoError(t, err)
	assert.True(t, out.Winner.IsLocal())
}
