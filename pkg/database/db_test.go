package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/config"
	"classdb/pkg/storage/btree"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase("testdb", config.Default())
	require.NoError(t, err)
	return db
}

func createShapes(t *testing.T, db *Database) {
	t.Helper()
	ctx := context.Background()
	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		if _, err := db.CreateClass(ctx, tx, "Shape", schema.KindOrdinary, func(tpl *schema.Template) error {
			if _, err := tpl.AddAttribute(schema.NamespaceAttribute, "color", domain.Scalar(domain.KindVarchar)); err != nil {
				return err
			}
			_, err := tpl.AddConstraint("u_color", schema.ConstraintUnique, []schema.ConstraintAttr{{Name: "color"}}, nil)
			return err
		}); err != nil {
			return err
		}
		_, err := db.CreateClass(ctx, tx, "Circle", schema.KindOrdinary, func(tpl *schema.Template) error {
			if err := tpl.AddSuperclass("Shape"); err != nil {
				return err
			}
			_, err := tpl.AddAttribute(schema.NamespaceAttribute, "radius", domain.Scalar(domain.KindFloat))
			return err
		})
		return err
	})
	require.NoError(t, err)
}

func TestNewDatabase(t *testing.T) {
	db := setupTestDB(t)
	assert.Equal(t, "testdb", db.name)
	assert.Empty(t, db.GetClasses())

	params := config.Default()
	params.BTreeDegree = 1
	_, err := NewDatabase("bad", params)
	assert.Error(t, err)
}

func TestShapeCircleThroughFacade(t *testing.T) {
	db := setupTestDB(t)
	createShapes(t, db)
	ctx := context.Background()

	circle, _ := db.Class("Circle")
	colorID, radiusID := circle.Attribute("color").ID, circle.Attribute("radius").ID

	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		_, err := db.AlterClass(ctx, tx, "Shape", func(tpl *schema.Template) error {
			_, err := tpl.AddAttribute(schema.NamespaceAttribute, "weight", domain.Scalar(domain.KindInteger))
			return err
		})
		return err
	})
	require.NoError(t, err)

	circle, _ = db.Class("Circle")
	assert.Equal(t, colorID, circle.Attribute("color").ID)
	assert.Equal(t, radiusID, circle.Attribute("radius").ID)
	require.NotNil(t, circle.Attribute("weight"))
	assert.NoError(t, db.CheckOwnership())

	info := db.GetStatistics()
	assert.Equal(t, []string{"Circle", "Shape"}, info.Classes)
	assert.Equal(t, 1, info.BTrees, "the family shares one tree")
	assert.EqualValues(t, 2, info.StatementsExecuted)
}

func TestUniqueAcrossFamily(t *testing.T) {
	db := setupTestDB(t)
	createShapes(t, db)
	ctx := context.Background()

	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		if _, err := db.Insert(ctx, tx, "Shape", map[string]any{"color": "red"}); err != nil {
			return err
		}
		_, err := db.Insert(ctx, tx, "Circle", map[string]any{"color": "blue", "radius": 2.0})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, db.BTreeLen("Shape", "u_color"))

	err = db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		_, err := db.Insert(ctx, tx, "Circle", map[string]any{"color": "red", "radius": 1.0})
		return err
	})
	assert.True(t, errors.Is(err, btree.ErrUniqueViolation), "got %v", err)
	assert.Equal(t, 1, db.Count("Circle"), "the failed insert is rolled back")
	assert.Equal(t, 2, db.BTreeLen("Shape", "u_color"))
	assert.EqualValues(t, 1, db.GetStatistics().ErrorCount)
}

func TestFailedAlterLeavesNoTemplate(t *testing.T) {
	db := setupTestDB(t)
	createShapes(t, db)
	ctx := context.Background()

	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		_, err := db.AlterClass(ctx, tx, "Circle", func(tpl *schema.Template) error {
			_, err := tpl.AddMethod(schema.NamespaceMethod, "color", schema.Signature{Return: domain.Scalar(domain.KindInteger)}, "")
			return err
		})
		return err
	})
	assert.True(t, errors.Is(err, schemaerrors.AttributeMethodOverlap), "got %v", err)

	err = db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		_, err := db.AlterClass(ctx, tx, "Circle", nil)
		return err
	})
	assert.NoError(t, err, "the class can be edited again")
}

func TestInsertChecks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		_, err := db.CreateClass(ctx, tx, "Point", schema.KindOrdinary, func(tpl *schema.Template) error {
			if _, err := tpl.AddAttribute(schema.NamespaceAttribute, "x", domain.Scalar(domain.KindInteger)); err != nil {
				return err
			}
			return tpl.SetNotNull("x", true)
		})
		return err
	})
	require.NoError(t, err)

	tx := db.BeginTransaction()
	_, err = db.Insert(ctx, tx, "Point", map[string]any{"y": 1})
	assert.True(t, errors.Is(err, schemaerrors.MemberNotFound))
	_, err = db.Insert(ctx, tx, "Point", map[string]any{})
	assert.Error(t, err)
	_, err = db.Insert(ctx, tx, "Nowhere", map[string]any{})
	assert.True(t, errors.Is(err, schemaerrors.ClassNotFound))
	res, err := db.Insert(ctx, tx, "Point", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsAffected)
	require.NoError(t, db.AbortTransaction(tx))
	assert.Zero(t, db.Count("Point"))
}

func TestDropClass(t *testing.T) {
	db := setupTestDB(t)
	createShapes(t, db)
	ctx := context.Background()

	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		if _, err := db.Insert(ctx, tx, "Circle", map[string]any{"color": "red", "radius": 1.0}); err != nil {
			return err
		}
		_, err := db.DropClass(ctx, tx, "Circle")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Shape"}, db.GetClasses())
	assert.Zero(t, db.Count("Circle"))
	assert.Zero(t, db.BTreeLen("Shape", "u_color"), "the dropped class's rows leave the shared tree")
}

func TestDescribeClass(t *testing.T) {
	db := setupTestDB(t)
	createShapes(t, db)

	res, err := db.DescribeClass("Circle")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "kind", "domain", "origin", "constraints"}, res.Columns)
	require.Len(t, res.Rows, 2)

	byName := map[string][]string{}
	for _, row := range res.Rows {
		byName[row[1]] = row
	}
	assert.Equal(t, "Shape", byName["color"][4])
	assert.Equal(t, "u_color", byName["color"][5])
	assert.Equal(t, "Circle", byName["radius"][4])

	_, err = db.DescribeClass("Nowhere")
	assert.True(t, errors.Is(err, schemaerrors.ClassNotFound))
}
