package flatten

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/config"
	"classdb/pkg/primitives"
	"classdb/pkg/trigger"
)

// fakeCatalog serves committed classes and exposes their live templates as
// pending superclass lists.
type fakeCatalog struct {
	classes map[string]*schema.Class
}

func newFakeCatalog(classes ...*schema.Class) *fakeCatalog {
	c := &fakeCatalog{classes: make(map[string]*schema.Class)}
	for _, class := range classes {
		c.classes[class.Name] = class
	}
	return c
}

func (c *fakeCatalog) Supers(class string) []string {
	if cl, ok := c.classes[class]; ok {
		return cl.Supers
	}
	return nil
}

func (c *fakeCatalog) PendingSupers(class string) ([]string, bool) {
	cl, ok := c.classes[class]
	if !ok || cl.Template == nil {
		return nil, false
	}
	return cl.Template.Supers, true
}

func (c *fakeCatalog) Class(name string) (*schema.Class, bool) {
	cl, ok := c.classes[name]
	return cl, ok
}

func attr(id primitives.AttrID, name, origin string, d *domain.Domain) *schema.Attribute {
	return &schema.Attribute{ID: id, OriginID: id, Name: name, Namespace: schema.NamespaceAttribute, Domain: d, Origin: origin}
}

func newClass(name string, supers []string, attrs ...*schema.Attribute) *schema.Class {
	next := primitives.AttrID(1)
	for _, a := range attrs {
		if a.ID >= next {
			next = a.ID + 1
		}
	}
	return &schema.Class{Name: name, Supers: supers, Attributes: attrs, IDCounter: next}
}

func newTestFlattener(cat *fakeCatalog, autoResolve bool) *Flattener {
	params := config.Default()
	params.AutoResolve = autoResolve
	return NewFlattener(cat, trigger.NewManager(), params)
}

func attrNames(attrs []*schema.Attribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

// shapes builds Shape(color) <- Circle(radius) with a primary key on color
// and a unique constraint on radius.
func shapes() (*schema.Class, *schema.Class) {
	shape := newClass("Shape", nil, attr(1, "color", "Shape", domain.Scalar(domain.KindVarchar)))
	shape.Constraints = []*schema.Constraint{{
		Name: "pk_color", Kind: schema.ConstraintPrimaryKey, BTree: 7, Origin: "Shape", Owner: "Shape",
		Attributes: []schema.ConstraintAttr{{Name: "color", Origin: "Shape", ID: 1}},
	}}

	color := attr(1, "color", "Shape", domain.Scalar(domain.KindVarchar))
	circle := newClass("Circle", []string{"Shape"}, color, attr(2, "radius", "Circle", domain.Scalar(domain.KindFloat)))
	circle.Constraints = []*schema.Constraint{
		{
			Name: "pk_color", Kind: schema.ConstraintPrimaryKey, BTree: 7, Origin: "Shape", Owner: "Shape",
			Attributes: []schema.ConstraintAttr{{Name: "color", Origin: "Shape", ID: 1}},
		},
		{
			Name: "u_radius", Kind: schema.ConstraintUnique, BTree: 8, Origin: "Circle", Owner: "Circle",
			Attributes: []schema.ConstraintAttr{{Name: "radius", Origin: "Circle", ID: 2}},
		},
	}
	shape.Users = []string{"Circle"}
	return shape, circle
}

func TestFlattenUnchangedClassIsIdempotent(t *testing.T) {
	shape, circle := shapes()
	f := newTestFlattener(newFakeCatalog(shape, circle), false)

	flat, err := f.Flatten(schema.EditTemplate(circle))
	require.NoError(t, err)

	require.Equal(t, attrNames(circle.Attributes), attrNames(flat.Attributes))
	for i, a := range flat.Attributes {
		want := circle.Attributes[i]
		assert.Equal(t, want.Origin, a.Origin)
		assert.Equal(t, want.OriginID, a.OriginID)
		assert.True(t, want.Domain.Same(a.Domain))
	}
	require.Len(t, flat.Constraints, 2)
	for i, c := range flat.Constraints {
		assert.Equal(t, circle.Constraints[i].Name, c.Name)
		assert.Equal(t, circle.Constraints[i].BTree, c.BTree)
		assert.Equal(t, circle.Constraints[i].Owner, c.Owner)
		assert.True(t, circle.Constraints[i].SameChain(c))
	}
	assert.Empty(t, flat.Resolutions)
}

func TestFlattenSeesPendingSuperclassEdit(t *testing.T) {
	shape, circle := shapes()
	cat := newFakeCatalog(shape, circle)
	f := newTestFlattener(cat, false)

	shapeTpl := schema.EditTemplate(shape)
	_, err := shapeTpl.AddAttribute(schema.NamespaceAttribute, "weight", domain.Scalar(domain.KindInteger))
	require.NoError(t, err)
	shapeFlat, err := f.Flatten(shapeTpl)
	require.NoError(t, err)
	shapeTpl.Flat = shapeFlat
	shape.Template = shapeTpl

	flat, err := f.Flatten(schema.EditTemplate(circle))
	require.NoError(t, err)

	assert.Equal(t, []string{"color", "weight", "radius"}, attrNames(flat.Attributes))
	assert.Equal(t, "Shape", flat.Attribute("weight").Origin)
	assert.Equal(t, primitives.AttrID(2), flat.Attribute("radius").ID)
	assert.Equal(t, primitives.BTreeID(7), flat.Constraint("pk_color").BTree, "inherited key tree is reused")
	assert.Equal(t, primitives.BTreeID(8), flat.Constraint("u_radius").BTree)
}

func TestFlattenConflictNeedsResolution(t *testing.T) {
	a := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	b := newClass("B", nil, attr(1, "x", "B", domain.Scalar(domain.KindInteger)))
	cat := newFakeCatalog(a, b)

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddSuperclass("B"))

	_, err := newTestFlattener(cat, false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.ResolutionConflict))
	assert.Empty(t, tpl.Resolutions)

	require.NoError(t, tpl.AddResolution(schema.Resolution{Name: "x", Source: "B"}))
	flat, err := newTestFlattener(cat, false).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, "B", flat.Attribute("x").Origin)
}

func TestFlattenAutoResolveRecordsResolution(t *testing.T) {
	a := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	b := newClass("B", nil, attr(1, "x", "B", domain.Scalar(domain.KindInteger)))

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddSuperclass("B"))

	flat, err := newTestFlattener(newFakeCatalog(a, b), true).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, "A", flat.Attribute("x").Origin)
	assert.Equal(t, []schema.Resolution{{Name: "x", Source: "A"}}, flat.Resolutions)
	assert.Empty(t, tpl.Resolutions, "the open template only holds the caller's resolutions")

	again, err := newTestFlattener(newFakeCatalog(a, b), true).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, flat.Resolutions, again.Resolutions)
	assert.Empty(t, tpl.Resolutions)
}

func TestFlattenPicksMostSpecificDomain(t *testing.T) {
	shape, circle := shapes()
	a := newClass("A", nil, attr(1, "p", "A", domain.Object("Shape")))
	b := newClass("B", nil, attr(1, "p", "B", domain.Object("Circle")))

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddSuperclass("B"))

	flat, err := newTestFlattener(newFakeCatalog(shape, circle, a, b), false).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, "B", flat.Attribute("p").Origin)
}

func TestFlattenRejectsIncompatibleDomains(t *testing.T) {
	a := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	b := newClass("B", nil, attr(1, "x", "B", domain.Scalar(domain.KindVarchar)))

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddSuperclass("B"))

	_, err := newTestFlattener(newFakeCatalog(a, b), false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.IncompatibleDomains))
}

func TestFlattenLocalOverride(t *testing.T) {
	shape, circle := shapes()
	a := newClass("A", nil, attr(1, "p", "A", domain.Object("Circle")))
	cat := newFakeCatalog(shape, circle, a)

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	_, err := tpl.AddAttribute(schema.NamespaceAttribute, "p", domain.Object("Shape"))
	require.NoError(t, err)

	_, err = newTestFlattener(cat, false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.IncompatibleDomains), "local may not generalize an inherited domain")

	tpl = schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	_, err = tpl.AddAttribute(schema.NamespaceAttribute, "p", domain.Object("Circle"))
	require.NoError(t, err)

	flat, err := newTestFlattener(cat, false).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, "C", flat.Attribute("p").Origin)
}

func TestFlattenAlias(t *testing.T) {
	a := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	b := newClass("B", nil, attr(1, "x", "B", domain.Scalar(domain.KindInteger)))

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddSuperclass("B"))
	require.NoError(t, tpl.AddResolution(schema.Resolution{Name: "x", Source: "B", Alias: "bx"}))

	flat, err := newTestFlattener(newFakeCatalog(a, b), false).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "bx"}, attrNames(flat.Attributes))
	assert.Equal(t, "A", flat.Attribute("x").Origin)
	assert.Equal(t, "B", flat.Attribute("bx").Origin)
}

func TestFlattenAttributeMethodOverlap(t *testing.T) {
	a := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	b := newClass("B", nil)
	b.Methods = []*schema.Method{{ID: 1, Name: "x", Namespace: schema.NamespaceMethod, Origin: "B"}}

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddSuperclass("B"))

	_, err := newTestFlattener(newFakeCatalog(a, b), false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.AttributeMethodOverlap))
}

func TestFlattenDiamondIsNotAConflict(t *testing.T) {
	root := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	left := newClass("B", []string{"A"}, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	right := newClass("C", []string{"A"}, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))

	tpl := schema.NewTemplate("D", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("B"))
	require.NoError(t, tpl.AddSuperclass("C"))

	flat, err := newTestFlattener(newFakeCatalog(root, left, right), false).Flatten(tpl)
	require.NoError(t, err)
	require.Len(t, flat.Attributes, 1)
	assert.Equal(t, "A", flat.Attributes[0].Origin)
}

func TestFlattenResolutionValidity(t *testing.T) {
	a := newClass("A", nil, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	cat := newFakeCatalog(a)

	tpl := schema.NewTemplate("C", schema.KindOrdinary)
	require.NoError(t, tpl.AddSuperclass("A"))
	require.NoError(t, tpl.AddResolution(schema.Resolution{Name: "x", Source: "Z"}))

	_, err := newTestFlattener(cat, false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.InvalidResolution))

	// The same resolution already committed has merely gone stale.
	committed := newClass("C", []string{"A"}, attr(1, "x", "A", domain.Scalar(domain.KindInteger)))
	committed.Resolutions = []schema.Resolution{{Name: "x", Source: "Z"}}
	cat.classes["C"] = committed

	flat, err := newTestFlattener(cat, false).Flatten(schema.EditTemplate(committed))
	require.NoError(t, err)
	assert.Empty(t, flat.Resolutions)
}

func TestFlattenRedefinedKeyAttributeNeedsOwnTree(t *testing.T) {
	shape, circle := shapes()
	f := newTestFlattener(newFakeCatalog(shape, circle), false)

	tpl := schema.EditTemplate(circle)
	_, err := tpl.AddAttribute(schema.NamespaceAttribute, "color", domain.Scalar(domain.KindVarchar))
	require.NoError(t, err)

	flat, err := f.Flatten(tpl)
	require.NoError(t, err)
	pk := flat.Constraint("pk_color")
	require.NotNil(t, pk)
	assert.False(t, pk.BTree.IsAllocated())
	assert.Equal(t, "Circle", pk.Owner)
	assert.Equal(t, "Shape", pk.Origin)
}

func TestFlattenConstraintChecks(t *testing.T) {
	shape, circle := shapes()
	cat := newFakeCatalog(shape, circle)

	tpl := schema.EditTemplate(circle)
	_, err := tpl.AddConstraint("u_missing", schema.ConstraintUnique, []schema.ConstraintAttr{{Name: "nope"}}, nil)
	require.NoError(t, err)
	_, err = newTestFlattener(cat, false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.ConstraintAttribute))

	tpl = schema.EditTemplate(circle)
	_, err = tpl.AddConstraint("pk_radius", schema.ConstraintPrimaryKey, []schema.ConstraintAttr{{Name: "radius"}}, nil)
	require.NoError(t, err)
	_, err = newTestFlattener(cat, false).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.ConstraintExists), "primary key is already inherited")

	drawing := schema.NewTemplate("Drawing", schema.KindOrdinary)
	_, err = drawing.AddAttribute(schema.NamespaceAttribute, "shape_color", domain.Scalar(domain.KindVarchar))
	require.NoError(t, err)
	_, err = drawing.AddConstraint("fk_shape", schema.ConstraintForeignKey,
		[]schema.ConstraintAttr{{Name: "shape_color"}}, &schema.ForeignKeyInfo{RefClass: "Shape"})
	require.NoError(t, err)
	flat, err := newTestFlattener(cat, false).Flatten(drawing)
	require.NoError(t, err)
	assert.Equal(t, "pk_color", flat.Constraint("fk_shape").ForeignKey.RefConstraint)

	bad := schema.NewTemplate("Bad", schema.KindOrdinary)
	_, err = bad.AddAttribute(schema.NamespaceAttribute, "ref", domain.Scalar(domain.KindFloat))
	require.NoError(t, err)
	_, err = bad.AddConstraint("fk_circle", schema.ConstraintForeignKey,
		[]schema.ConstraintAttr{{Name: "ref"}}, &schema.ForeignKeyInfo{RefClass: "Drawing"})
	require.NoError(t, err)
	_, err = newTestFlattener(cat, false).Flatten(bad)
	assert.True(t, errors.Is(err, schemaerrors.ForeignKeyTarget))
}

func TestFlattenCapacity(t *testing.T) {
	tpl := schema.NewTemplate("Wide", schema.KindOrdinary)
	for _, name := range []string{"a", "b", "c"} {
		_, err := tpl.AddAttribute(schema.NamespaceAttribute, name, domain.Scalar(domain.KindInteger))
		require.NoError(t, err)
	}
	params := config.Default()
	params.MaxAttributes = 2

	_, err := NewFlattener(newFakeCatalog(), trigger.NewManager(), params).Flatten(tpl)
	assert.True(t, errors.Is(err, schemaerrors.TooManyAttributes))
}

func TestFlattenMergesMethodFilesAndTriggers(t *testing.T) {
	shape, circle := shapes()
	shape.MethodFiles = []schema.MethodFile{{Name: "shape.so", Origin: "Shape"}}
	shape.Triggers = &trigger.SchemaCache{Entries: []trigger.Entry{{Event: "insert", Trigger: "audit", Origin: "Shape"}}}

	tpl := schema.EditTemplate(circle)
	require.NoError(t, tpl.AddMethodFile("circle.so"))
	tpl.AddTrigger("delete", "cleanup")

	flat, err := newTestFlattener(newFakeCatalog(shape, circle), false).Flatten(tpl)
	require.NoError(t, err)
	assert.Equal(t, []schema.MethodFile{{Name: "circle.so", Origin: "Circle"}, {Name: "shape.so", Origin: "Shape"}}, flat.MethodFiles)
	assert.Equal(t, 2, flat.Triggers.Len())
}

func TestFixupDomains(t *testing.T) {
	tpl := schema.NewTemplate("Node", schema.KindOrdinary)
	_, err := tpl.AddAttribute(schema.NamespaceAttribute, "next", domain.SelfReference("Node"))
	require.NoError(t, err)
	_, err = tpl.AddAttribute(schema.NamespaceAttribute, "children",
		domain.Collection(domain.KindSet, domain.SelfReference("Node")))
	require.NoError(t, err)

	flat, err := newTestFlattener(newFakeCatalog(), false).Flatten(tpl)
	require.NoError(t, err)
	FixupDomains(flat, "Node")

	assert.False(t, flat.Attribute("next").Domain.Placeholder)
	assert.False(t, flat.Attribute("children").Domain.Elements[0].Placeholder)
	assert.True(t, tpl.Attributes[0].Domain.Placeholder, "template domains are untouched")
}
