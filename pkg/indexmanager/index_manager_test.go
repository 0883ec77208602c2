package indexmanager

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/concurrency/lock"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/dberror"
	"classdb/pkg/primitives"
	"classdb/pkg/storage/btree"
	"classdb/pkg/storage/heap"
)

type fakeCatalog struct {
	defs    map[string]schema.Definition
	classes map[string]*schema.Class
	subs    map[string][]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		defs:    make(map[string]schema.Definition),
		classes: make(map[string]*schema.Class),
		subs:    make(map[string][]string),
	}
}

func (c *fakeCatalog) Definition(name string) (schema.Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

func (c *fakeCatalog) Class(name string) (*schema.Class, bool) {
	cl, ok := c.classes[name]
	return cl, ok
}

func (c *fakeCatalog) Subclasses(name string) []string {
	return slices.Clone(c.subs[name])
}

func (c *fakeCatalog) Referencers(id primitives.BTreeID, except string) []string {
	var out []string
	for name, def := range c.defs {
		if name == except {
			continue
		}
		if slices.ContainsFunc(def.ConstraintList(), func(k *schema.Constraint) bool { return k.BTree == id }) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

type fakeRefs struct {
	added   []schema.ForeignRef
	dropped []string
}

func (f *fakeRefs) AddReference(_ context.Context, _ TxContext, class, constraint string, ref schema.ForeignRef) error {
	f.added = append(f.added, ref)
	return nil
}

func (f *fakeRefs) DropReference(_ context.Context, _ TxContext, class, constraint, fromClass, fromConstraint string) error {
	f.dropped = append(f.dropped, fromClass+"."+fromConstraint)
	return nil
}

type imTest struct {
	store   *btree.Store
	heap    *heap.Heap
	catalog *fakeCatalog
	refs    *fakeRefs
	im      *IndexManager
	txs     *transaction.TransactionRegistry
}

func setupTest(t *testing.T) *imTest {
	t.Helper()
	s := &imTest{
		store:   btree.NewStore(4),
		heap:    heap.NewHeap(),
		catalog: newFakeCatalog(),
		refs:    &fakeRefs{},
		txs:     transaction.NewTransactionRegistry(lock.NewLockManager(time.Second)),
	}
	s.im = NewIndexManager(s.store, s.heap, s.catalog)
	s.im.SetReferenceUpdater(s.refs)
	return s
}

func colorAttr(origin string) *schema.Attribute {
	return &schema.Attribute{ID: 1, OriginID: 1, Name: "color", Namespace: schema.NamespaceAttribute,
		Domain: domain.Scalar(domain.KindVarchar), Origin: origin}
}

func uniqueColor(owner string, id primitives.BTreeID) *schema.Constraint {
	return &schema.Constraint{
		Name: "u_color", Kind: schema.ConstraintUnique, BTree: id, Origin: "Shape", Owner: owner,
		Attributes: []schema.ConstraintAttr{{Name: "color", Origin: "Shape", ID: 1}},
	}
}

// family sets up Shape <- Circle, both flattened with a new unique
// constraint on color owned by Shape.
func (s *imTest) family() (*schema.Flat, *schema.Flat) {
	shape := &schema.Flat{Name: "Shape", Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", primitives.NullBTreeID)}}
	circle := &schema.Flat{Name: "Circle", Supers: []string{"Shape"}, Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", primitives.NullBTreeID)}}
	s.catalog.defs["Shape"] = shape
	s.catalog.defs["Circle"] = circle
	s.catalog.subs["Shape"] = []string{"Circle"}
	return shape, circle
}

// installed records flat as committed, the way the catalog does after an install.
func (s *imTest) installed(flat *schema.Flat) *schema.Class {
	c := flat.ToClass(nil)
	s.catalog.classes[flat.Name] = c
	s.catalog.defs[flat.Name] = c
	return c
}

func TestOwnerLoadsWholeFamilyOnce(t *testing.T) {
	s := setupTest(t)
	shape, circle := s.family()
	s.heap.Insert("Shape", 0, map[primitives.AttrID]any{1: "red"})
	s.heap.Insert("Circle", 0, map[primitives.AttrID]any{1: "blue"})
	tx := s.txs.Begin()
	session := s.im.NewSession()

	require.NoError(t, session.Install(context.Background(), tx, nil, shape))
	id := shape.Constraints[0].BTree
	require.True(t, id.IsAllocated())
	assert.Equal(t, 2, s.store.Len(id))
	assert.Equal(t, []string{"Circle", "Shape"}, s.store.Classes(id))
	s.installed(shape)

	require.NoError(t, session.Install(context.Background(), tx, nil, circle))
	assert.Equal(t, id, circle.Constraints[0].BTree, "subclass shares the owner's tree")
	assert.Equal(t, 2, s.store.Len(id), "family rows are not loaded twice")

	owners := Owners([]schema.Definition{shape, circle})
	assert.Equal(t, []string{"Shape"}, owners[id])
	require.NoError(t, tx.Commit())
}

func TestFamilyUniqueViolationIsSevere(t *testing.T) {
	s := setupTest(t)
	shape, _ := s.family()
	s.heap.Insert("Shape", 0, map[primitives.AttrID]any{1: "red"})
	s.heap.Insert("Circle", 0, map[primitives.AttrID]any{1: "red"})
	tx := s.txs.Begin()

	err := s.im.NewSession().Install(context.Background(), tx, nil, shape)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemaerrors.UniqueViolation))
	assert.True(t, errors.Is(err, btree.ErrUniqueViolation))
	assert.Equal(t, dberror.RollbackSavepoint, dberror.RollbackOf(err))

	id := shape.Constraints[0].BTree
	require.True(t, s.store.Exists(id))
	require.NoError(t, tx.Abort())
	assert.False(t, s.store.Exists(id), "rollback releases the new tree")
}

func TestInheritedWithoutOwnerTree(t *testing.T) {
	s := setupTest(t)
	_, circle := s.family()
	tx := s.txs.Begin()

	err := s.im.NewSession().Install(context.Background(), tx, nil, circle)
	assert.True(t, errors.Is(err, schemaerrors.ConstraintOwnerMissing))
	assert.Equal(t, dberror.RollbackTransaction, dberror.RollbackOf(err))
}

func TestNewlyAttachedSubclassLoadsOwnRows(t *testing.T) {
	s := setupTest(t)
	id, err := s.store.Allocate(specFor(uniqueColor("Shape", 0)))
	require.NoError(t, err)
	shape := &schema.Flat{Name: "Shape", Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", id)}}
	s.installed(shape)

	// Ring used to have no superclass; it now inherits from Shape.
	ringOld := &schema.Class{Name: "Ring", Attributes: []*schema.Attribute{colorAttr("Ring")}}
	ring := &schema.Flat{Name: "Ring", Supers: []string{"Shape"}, Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", id)}}
	s.catalog.defs["Ring"] = ring
	s.heap.Insert("Ring", 0, map[primitives.AttrID]any{1: "gold"})

	tx := s.txs.Begin()
	require.NoError(t, s.im.NewSession().Install(context.Background(), tx, ringOld, ring))
	assert.Equal(t, []string{"Ring"}, s.store.Classes(id))

	require.NoError(t, tx.Abort())
	assert.True(t, s.store.Exists(id), "shared tree survives rollback")
	assert.Zero(t, s.store.Len(id), "attached rows are detached again")
}

func TestDropByNonOwnerOnlyDetachesRows(t *testing.T) {
	s := setupTest(t)
	id, err := s.store.Allocate(specFor(uniqueColor("Shape", 0)))
	require.NoError(t, err)
	require.NoError(t, s.store.Load(id, []btree.LoadSource{
		{Class: "Shape", Rows: []btree.Row{{OID: 1, Key: btree.Key{"red"}}}},
		{Class: "Circle", Rows: []btree.Row{{OID: 2, Key: btree.Key{"blue"}}}},
	}))
	shape := s.installed(&schema.Flat{Name: "Shape", Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", id)}})
	circleOld := &schema.Class{Name: "Circle", Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", id)}}
	circle := &schema.Flat{Name: "Circle", Attributes: []*schema.Attribute{colorAttr("Shape")}}
	s.catalog.defs["Circle"] = circle

	tx := s.txs.Begin()
	require.NoError(t, s.im.NewSession().Install(context.Background(), tx, circleOld, circle))
	require.NoError(t, tx.Commit())
	assert.True(t, s.store.Exists(id))
	assert.Equal(t, []string{"Shape"}, s.store.Classes(id))

	// The owner dropping the constraint while nobody else uses it deletes the tree.
	shapeFlat := &schema.Flat{Name: "Shape", Attributes: []*schema.Attribute{colorAttr("Shape")}}
	s.catalog.defs["Shape"] = shapeFlat
	tx = s.txs.Begin()
	require.NoError(t, s.im.NewSession().Install(context.Background(), tx, shape, shapeFlat))
	assert.True(t, s.store.Exists(id), "deletion waits for commit")
	require.NoError(t, tx.Commit())
	assert.False(t, s.store.Exists(id))
}

func TestOwnerDropKeepsTreeStillReferenced(t *testing.T) {
	s := setupTest(t)
	id, err := s.store.Allocate(specFor(uniqueColor("Shape", 0)))
	require.NoError(t, err)
	shape := s.installed(&schema.Flat{Name: "Shape", Attributes: []*schema.Attribute{colorAttr("Shape")},
		Constraints: []*schema.Constraint{uniqueColor("Shape", id)}})
	s.catalog.defs["Square"] = &schema.Flat{Name: "Square", Constraints: []*schema.Constraint{uniqueColor("Shape", id)}}

	shapeFlat := &schema.Flat{Name: "Shape", Attributes: []*schema.Attribute{colorAttr("Shape")}}
	s.catalog.defs["Shape"] = shapeFlat
	tx := s.txs.Begin()
	require.NoError(t, s.im.NewSession().Install(context.Background(), tx, shape, shapeFlat))
	require.NoError(t, tx.Commit())
	assert.True(t, s.store.Exists(id))
}

func TestForeignKeyReferences(t *testing.T) {
	s := setupTest(t)
	node := &schema.Flat{
		Name:       "Node",
		Attributes: []*schema.Attribute{colorAttr("Node")},
		Constraints: []*schema.Constraint{
			{Name: "pk", Kind: schema.ConstraintPrimaryKey, Owner: "Node", Origin: "Node",
				Attributes: []schema.ConstraintAttr{{Name: "color", ID: 1}}},
			{Name: "fk_parent", Kind: schema.ConstraintForeignKey, Owner: "Node", Origin: "Node",
				Attributes: []schema.ConstraintAttr{{Name: "color", ID: 1}},
				ForeignKey: &schema.ForeignKeyInfo{RefClass: "Node", RefConstraint: "pk"}},
			{Name: "fk_shape", Kind: schema.ConstraintForeignKey, Owner: "Node", Origin: "Node",
				Attributes: []schema.ConstraintAttr{{Name: "color", ID: 1}},
				ForeignKey: &schema.ForeignKeyInfo{RefClass: "Shape", RefConstraint: "pk_color"}},
		},
	}
	s.catalog.defs["Node"] = node
	tx := s.txs.Begin()

	require.NoError(t, s.im.NewSession().Install(context.Background(), tx, nil, node))
	pk := node.Constraint("pk")
	require.Len(t, pk.References, 1)
	assert.Equal(t, "fk_parent", pk.References[0].Constraint)
	assert.Equal(t, node.Constraint("fk_parent").BTree, pk.References[0].BTree)
	require.Len(t, s.refs.added, 1)
	assert.Equal(t, schema.ForeignRef{Class: "Node", Constraint: "fk_shape", BTree: node.Constraint("fk_shape").BTree}, s.refs.added[0])

	current := s.installed(node)
	next := &schema.Flat{Name: "Node", Attributes: []*schema.Attribute{colorAttr("Node")},
		Constraints: []*schema.Constraint{current.Constraints[0].Clone(), current.Constraints[1].Clone()}}
	require.NoError(t, s.im.NewSession().Install(context.Background(), tx, current, next))
	assert.Equal(t, []string{"Node.fk_shape"}, s.refs.dropped)
	assert.Len(t, next.Constraint("pk").References, 1, "unchanged self reference is kept")
}
