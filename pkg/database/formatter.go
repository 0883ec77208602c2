package database

import (
	"fmt"
	"strings"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/primitives"
)

// ResultFormatter handles formatting of statement results
type ResultFormatter struct{}

// NewResultFormatter creates a new instance of ResultFormatter
func NewResultFormatter() *ResultFormatter {
	return &ResultFormatter{}
}

// FormatDDL reports a schema change on class.
func (f *ResultFormatter) FormatDDL(action string, class *schema.Class) QueryResult {
	if class == nil {
		return QueryResult{Success: true, Message: fmt.Sprintf("class %s", action)}
	}
	return QueryResult{
		Success: true,
		Message: fmt.Sprintf("class %s %s (%d attributes, representation %d)",
			class.Name, action, len(class.Attributes), class.Repr),
	}
}

// FormatInsert reports a stored instance.
func (f *ResultFormatter) FormatInsert(class string, oid primitives.OID) QueryResult {
	return QueryResult{
		Success:      true,
		RowsAffected: 1,
		Message:      fmt.Sprintf("1 instance of %s inserted as %s", class, oid),
	}
}

// FormatClass lists the attributes of class, one row each, in storage order
// for instance attributes followed by shared and class attributes.
func (f *ResultFormatter) FormatClass(class *schema.Class) QueryResult {
	columns := []string{"id", "name", "kind", "domain", "origin", "constraints"}
	var rows [][]string

	byID := make(map[primitives.AttrID]*schema.Attribute, len(class.Attributes))
	for _, a := range class.Attributes {
		byID[a.ID] = a
	}
	ordered := make([]*schema.Attribute, 0, len(class.Attributes))
	for _, id := range class.Layout.Order {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
			delete(byID, id)
		}
	}
	for _, a := range class.Attributes {
		if _, ok := byID[a.ID]; ok {
			ordered = append(ordered, a)
		}
	}
	ordered = append(ordered, class.SharedAttributes...)
	ordered = append(ordered, class.ClassAttributes...)

	for _, a := range ordered {
		rows = append(rows, []string{
			fmt.Sprint(a.ID),
			a.Name,
			a.Namespace.String(),
			a.Domain.String(),
			a.Origin,
			strings.Join(constraintsOn(class, a.Name), ","),
		})
	}
	for _, m := range append(append([]*schema.Method(nil), class.Methods...), class.ClassMethods...) {
		rows = append(rows, []string{
			fmt.Sprint(m.ID),
			m.Name,
			m.Namespace.String(),
			m.Signature.Return.String(),
			m.Origin,
			"",
		})
	}

	return QueryResult{
		Success: true,
		Columns: columns,
		Rows:    rows,
		Message: fmt.Sprintf("%s %s: %d member(s)", class.Kind, class.Name, len(rows)),
	}
}

func constraintsOn(class *schema.Class, attr string) []string {
	var names []string
	for _, c := range class.Constraints {
		for _, ca := range c.Attributes {
			if ca.Name == attr {
				names = append(names, c.Name)
				break
			}
		}
	}
	return names
}
