package base

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PadString pads s with spaces to the given display width.
func PadString(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// TruncateString shortens s to maxWidth runes, ending it with an ellipsis.
func TruncateString(s string, maxWidth int) string {
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	if maxWidth < 3 {
		return string(r[:maxWidth])
	}
	return string(r[:maxWidth-3]) + "..."
}

// ColumnWidths returns, for each column, the widest of its header and cells,
// capped at maxWidth.
func ColumnWidths(header []string, rows [][]string, maxWidth int) []int {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}
	for i := range widths {
		widths[i] = min(widths[i], maxWidth)
	}
	return widths
}
