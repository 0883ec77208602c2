package schemaerrors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"classdb/pkg/dberror"
)

func TestDefinitionIsMatchable(t *testing.T) {
	err := Definition(AliasConflict, "Resolver", "name %q from %s and %s", "x", "A", "B")

	assert.ErrorIs(t, err, AliasConflict)
	assert.ErrorIs(t, fmt.Errorf("flatten: %w", err), AliasConflict)
	assert.Equal(t, "ALIAS_CONFLICT", err.Code)
	assert.Equal(t, dberror.ErrCategoryUser, err.Category)
	assert.Equal(t, dberror.RollbackNone, err.Rollback)
	assert.False(t, IsSevere(err))
	assert.Contains(t, err.Error(), `name "x" from A and B`)
}

func TestSevereRollbackScope(t *testing.T) {
	cause := stderrors.New("duplicate key (1)")

	unique := Severe(UniqueViolation, cause, "IndexAllocator", "constraint %s", "u_name")
	assert.Equal(t, dberror.RollbackSavepoint, unique.Rollback)
	assert.ErrorIs(t, unique, UniqueViolation)
	assert.ErrorIs(t, unique, cause)
	assert.True(t, IsSevere(unique))

	install := Severe(InstallFailed, cause, "HierarchyDriver", "")
	assert.Equal(t, dberror.RollbackTransaction, install.Rollback)
	assert.Equal(t, dberror.ErrCategoryData, install.Category)
}

func TestCapacityAndResource(t *testing.T) {
	assert.Equal(t, dberror.ErrCategoryCapacity, Capacity(RepresentationsExhausted, "Catalog", "").Category)
	assert.Equal(t, dberror.ErrCategoryTransient, Resource(LockTimeout, "Locks", "").Category)
}
