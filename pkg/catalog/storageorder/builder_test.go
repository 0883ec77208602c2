package storageorder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/primitives"
)

type fakeDefs map[string]schema.Definition

func (f fakeDefs) Definition(name string) (schema.Definition, bool) {
	d, ok := f[name]
	return d, ok
}

func attr(id, originID primitives.AttrID, name, origin string, d *domain.Domain) *schema.Attribute {
	return &schema.Attribute{ID: id, OriginID: originID, Name: name, Namespace: schema.NamespaceAttribute, Domain: d, Origin: origin}
}

func circle() *schema.Class {
	c := &schema.Class{
		Name:   "Circle",
		Supers: []string{"Shape"},
		Attributes: []*schema.Attribute{
			attr(1, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindFloat)),
		},
		IDCounter: 3,
	}
	c.Layout = schema.Layout{Order: []primitives.AttrID{2, 1}, Fixed: 1}
	return c
}

func TestBuildKeepsIdentifiersOfUnchangedClass(t *testing.T) {
	current := circle()
	flat := &schema.Flat{
		Name: "Circle",
		Attributes: []*schema.Attribute{
			attr(0, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindFloat)),
		},
	}

	needsNew, err := NewBuilder(fakeDefs{}).Build(current, flat)
	require.NoError(t, err)
	assert.False(t, needsNew)
	assert.Equal(t, primitives.AttrID(1), flat.Attribute("color").ID)
	assert.Equal(t, current.Layout, flat.Layout)
	assert.Equal(t, primitives.AttrID(3), flat.IDCounter)
}

func TestBuildInheritedAdditionGetsNewIdentifier(t *testing.T) {
	shapeFlat := &schema.Flat{
		Name: "Shape",
		Attributes: []*schema.Attribute{
			attr(1, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(2, 2, "weight", "Shape", domain.Scalar(domain.KindInteger)),
		},
	}
	flat := &schema.Flat{
		Name: "Circle",
		Attributes: []*schema.Attribute{
			attr(0, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(0, 0, "weight", "Shape", domain.Scalar(domain.KindInteger)),
			attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindFloat)),
		},
	}

	needsNew, err := NewBuilder(fakeDefs{"Shape": shapeFlat}).Build(circle(), flat)
	require.NoError(t, err)
	assert.True(t, needsNew)
	assert.Equal(t, primitives.AttrID(1), flat.Attribute("color").ID)
	assert.Equal(t, primitives.AttrID(2), flat.Attribute("radius").ID)
	assert.Equal(t, primitives.AttrID(3), flat.Attribute("weight").ID)
	assert.Equal(t, primitives.AttrID(2), flat.Attribute("weight").OriginID)
	assert.Equal(t, primitives.AttrID(4), flat.IDCounter)
}

func TestBuildRenameInOriginKeepsIdentifier(t *testing.T) {
	flat := &schema.Flat{
		Name: "Circle",
		Attributes: []*schema.Attribute{
			attr(0, 1, "colour", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindFloat)),
		},
	}

	needsNew, err := NewBuilder(fakeDefs{}).Build(circle(), flat)
	require.NoError(t, err)
	assert.False(t, needsNew)
	assert.Equal(t, primitives.AttrID(1), flat.Attribute("colour").ID)
}

func TestBuildDropForcesNewRepresentation(t *testing.T) {
	flat := &schema.Flat{
		Name:       "Circle",
		Attributes: []*schema.Attribute{attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindFloat))},
	}

	needsNew, err := NewBuilder(fakeDefs{}).Build(circle(), flat)
	require.NoError(t, err)
	assert.True(t, needsNew)
	assert.Equal(t, primitives.AttrID(3), flat.IDCounter, "counter never goes back")
}

func TestBuildDomainChangeForcesNewRepresentation(t *testing.T) {
	flat := &schema.Flat{
		Name: "Circle",
		Attributes: []*schema.Attribute{
			attr(0, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindDouble)),
		},
	}

	needsNew, err := NewBuilder(fakeDefs{}).Build(circle(), flat)
	require.NoError(t, err)
	assert.True(t, needsNew)
	assert.Equal(t, primitives.AttrID(2), flat.Attribute("radius").ID)
}

func TestLayoutOrdersFixedByAlignmentThenSize(t *testing.T) {
	flat := &schema.Flat{
		Name: "Rec",
		Attributes: []*schema.Attribute{
			attr(0, 0, "name", "Rec", domain.Scalar(domain.KindVarchar)),
			attr(0, 0, "flag", "Rec", domain.Sized(domain.KindChar, 1)),
			attr(0, 0, "big", "Rec", domain.Scalar(domain.KindBigInt)),
			attr(0, 0, "small", "Rec", domain.Scalar(domain.KindShort)),
			attr(0, 0, "code", "Rec", domain.Sized(domain.KindChar, 3)),
			attr(0, 0, "count", "Rec", domain.Scalar(domain.KindInteger)),
		},
	}

	needsNew, err := NewBuilder(fakeDefs{}).Build(nil, flat)
	require.NoError(t, err)
	assert.True(t, needsNew)

	// ids follow definition order: name=1 flag=2 big=3 small=4 code=5 count=6
	assert.Equal(t, []primitives.AttrID{3, 6, 4, 2, 5, 1}, flat.Layout.Order)
	assert.Equal(t, 5, flat.Layout.Fixed)
	assert.Equal(t, primitives.AttrID(7), flat.IDCounter)
	assert.Equal(t, primitives.AttrID(1), flat.Attribute("name").OriginID)
}

func TestBuildPartitionCopiesParent(t *testing.T) {
	parent := circle()
	parent.Name = "Orders"
	parent.Supers = nil
	flat := &schema.Flat{
		Name:        "Orders_2024",
		Kind:        schema.KindPartition,
		PartitionOf: "Orders",
		Attributes: []*schema.Attribute{
			attr(0, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(0, 2, "radius", "Circle", domain.Scalar(domain.KindFloat)),
		},
	}

	_, err := NewBuilder(fakeDefs{"Orders": parent}).Build(nil, flat)
	require.NoError(t, err)
	assert.Equal(t, parent.Layout, flat.Layout)
	assert.Equal(t, primitives.AttrID(2), flat.Attribute("radius").ID)

	flat.Attributes = flat.Attributes[:1]
	_, err = NewBuilder(fakeDefs{"Orders": parent}).Build(nil, flat)
	assert.True(t, errors.Is(err, schemaerrors.PartitionMismatch))
}

func TestBuildMembersMatchedByNameAndOrigin(t *testing.T) {
	current := circle()
	current.SharedAttributes = []*schema.Attribute{{ID: 3, Name: "unit", Namespace: schema.NamespaceShared, Origin: "Shape"}}
	current.Methods = []*schema.Method{{ID: 4, Name: "area", Namespace: schema.NamespaceMethod, Origin: "Shape"}}
	current.IDCounter = 5

	flat := &schema.Flat{
		Name: "Circle",
		Attributes: []*schema.Attribute{
			attr(0, 1, "color", "Shape", domain.Scalar(domain.KindVarchar)),
			attr(2, 2, "radius", "Circle", domain.Scalar(domain.KindFloat)),
		},
		SharedAttributes: []*schema.Attribute{{Name: "unit", Namespace: schema.NamespaceShared, Origin: "Shape"}},
		Methods: []*schema.Method{
			{Name: "area", Namespace: schema.NamespaceMethod, Origin: "Shape"},
			{Name: "perimeter", Namespace: schema.NamespaceMethod, Origin: "Circle"},
		},
		Constraints: []*schema.Constraint{{Name: "u", Attributes: []schema.ConstraintAttr{{Name: "color"}}}},
	}

	needsNew, err := NewBuilder(fakeDefs{}).Build(current, flat)
	require.NoError(t, err)
	assert.False(t, needsNew, "non-instance members do not affect the record layout")
	assert.Equal(t, primitives.AttrID(3), flat.SharedAttributes[0].ID)
	assert.Equal(t, primitives.AttrID(4), flat.Methods[0].ID)
	assert.Equal(t, primitives.AttrID(5), flat.Methods[1].ID)
	assert.Equal(t, primitives.AttrID(1), flat.Constraints[0].Attributes[0].ID)
	assert.Equal(t, primitives.AttrID(6), flat.IDCounter)
}
