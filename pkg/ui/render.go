// Package ui renders statement results, errors and database summaries for a
// terminal.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"classdb/pkg/database"
	"classdb/pkg/dberror"
	"classdb/pkg/ui/base"
)

const maxCellWidth = 40

// Renderer turns results into styled text.
type Renderer struct {
	styles Styles
}

// NewRenderer returns a renderer using styles.
func NewRenderer(styles Styles) *Renderer {
	return &Renderer{styles: styles}
}

// Result renders the message of a result followed by its rows, if any.
func (r *Renderer) Result(res database.QueryResult) string {
	if res.Error != nil {
		return r.Error(res.Error)
	}
	msg := r.styles.Success.Render("OK") + " " + res.Message
	if len(res.Columns) == 0 {
		return msg
	}
	return lipgloss.JoinVertical(lipgloss.Left, msg, r.Table(res.Columns, res.Rows))
}

// Table renders rows under a header, truncating wide cells.
func (r *Renderer) Table(columns []string, rows [][]string) string {
	widths := base.ColumnWidths(columns, rows, maxCellWidth)

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i, w := range widths {
			var cell string
			if i < len(cells) {
				cell = base.TruncateString(cells[i], w)
			}
			parts[i] = style.Render(base.PadString(cell, w))
		}
		return strings.Join(parts, "  ")
	}

	lines := []string{line(columns, r.styles.Header)}
	for _, row := range rows {
		lines = append(lines, line(row, r.styles.Cell))
	}
	if len(rows) == 0 {
		lines = append(lines, r.styles.Muted.Render("(no rows)"))
	}
	return r.styles.Table.Render(strings.Join(lines, "\n"))
}

// Error renders err. Structured errors show their code, category and, for
// errors raised while installing, what was rolled back.
func (r *Renderer) Error(err error) string {
	var dbErr *dberror.DBError
	if !errors.As(err, &dbErr) {
		return r.styles.Error.Render("ERROR") + " " + err.Error()
	}

	head := fmt.Sprintf("%s %s", r.styles.Error.Render(dbErr.Code), dbErr.Message)
	lines := []string{head}
	if dbErr.Detail != "" {
		lines = append(lines, "  "+dbErr.Detail)
	}
	meta := "  category: " + dbErr.Category.String()
	if dbErr.Rollback != dberror.RollbackNone {
		meta += ", rolled back: " + dbErr.Rollback.String()
	}
	lines = append(lines, r.styles.Muted.Render(meta))
	if dbErr.Hint != "" {
		lines = append(lines, r.styles.Muted.Render("  hint: "+dbErr.Hint))
	}
	return strings.Join(lines, "\n")
}

// Summary renders the database header line and its class list.
func (r *Renderer) Summary(info database.DatabaseInfo) string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		r.styles.Badge.Render(info.Name),
		r.styles.Muted.Render(fmt.Sprintf("classes: %d | btrees: %d | schema version: %d | statements: %d | errors: %d",
			info.ClassCount, info.BTrees, info.SchemaVersion, info.StatementsExecuted, info.ErrorCount)),
	)
	if len(info.Classes) == 0 {
		return header
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, r.styles.Title.Render(strings.Join(info.Classes, ", ")))
}
