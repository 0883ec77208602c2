package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/database"
)

func TestRenderTable(t *testing.T) {
	r := NewRenderer(DefaultStyles())
	out := r.Result(database.QueryResult{
		Success: true,
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "color"}, {"2", "radius"}},
		Message: "class Circle: 2 member(s)",
	})
	assert.Contains(t, out, "class Circle: 2 member(s)")
	assert.Contains(t, out, "radius")
	assert.Less(t, strings.Index(out, "color"), strings.Index(out, "radius"))

	empty := r.Table([]string{"id"}, nil)
	assert.Contains(t, empty, "(no rows)")
}

func TestRenderError(t *testing.T) {
	r := NewRenderer(DefaultStyles())

	err := schemaerrors.Severe(schemaerrors.UniqueViolation, nil, "indexes", "class %q: duplicate radius", "Circle")
	out := r.Error(err)
	assert.Contains(t, out, "UNIQUE_VIOLATION")
	assert.Contains(t, out, `class "Circle": duplicate radius`)
	assert.Contains(t, out, "rolled back: savepoint")

	def := r.Error(schemaerrors.Definition(schemaerrors.InheritanceCycle, "hierarchy", ""))
	assert.NotContains(t, def, "rolled back")

	assert.Contains(t, r.Error(errors.New("plain failure")), "plain failure")
	assert.Contains(t, r.Result(database.QueryResult{Error: errors.New("boom")}), "boom")
}

func TestRenderSummary(t *testing.T) {
	r := NewRenderer(DefaultStyles())
	out := r.Summary(database.DatabaseInfo{Name: "shapes", Classes: []string{"Circle", "Shape"}, ClassCount: 2, BTrees: 1})
	assert.Contains(t, out, "shapes")
	assert.Contains(t, out, "classes: 2")
	assert.Contains(t, out, "Circle, Shape")
}
