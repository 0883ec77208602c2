package heap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/primitives"
)

func TestInsertFlushScan(t *testing.T) {
	h := NewHeap()
	assert.False(t, h.HasInstances("Shape"))

	a := h.Insert("Shape", 0, map[primitives.AttrID]any{1: "red"})
	b := h.Insert("Shape", 0, map[primitives.AttrID]any{1: "blue"})
	assert.True(t, h.HasInstances("Shape"))
	assert.Equal(t, 2, h.Pending("Shape"))

	require.NoError(t, h.FlushAllInstances("Shape"))
	assert.Equal(t, 0, h.Pending("Shape"))
	assert.Equal(t, 2, h.Count("Shape"))

	insts := h.Scan("Shape")
	require.Len(t, insts, 2)
	assert.Equal(t, a, insts[0].OID)
	assert.Equal(t, b, insts[1].OID)

	insts[0].Values[1] = "changed"
	got, err := h.Get("Shape", a)
	require.NoError(t, err)
	assert.Equal(t, "red", got.Values[1])
}

func TestDeleteAndDrop(t *testing.T) {
	h := NewHeap()
	oid := h.Insert("Circle", 0, nil)

	require.NoError(t, h.Delete("Circle", oid))
	assert.True(t, errors.Is(h.Delete("Circle", oid), ErrInstanceNotFound))

	h.Insert("Circle", 0, nil)
	h.DropClass("Circle")
	assert.False(t, h.HasInstances("Circle"))
	assert.Nil(t, h.Scan("Circle"))
	require.NoError(t, h.FlushAllInstances("Circle"))
}
