package ui

import (
	"github.com/charmbracelet/lipgloss"

	"classdb/pkg/ui/base"
)

// Styles holds the lipgloss styles used to render results.
type Styles struct {
	Title   lipgloss.Style
	Badge   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Table   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds the styles for a palette.
func NewStyles(palette base.ColorPalette) Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true),

		Badge: lipgloss.NewStyle().
			Foreground(palette.Secondary).
			Bold(true).
			MarginRight(1),

		Header: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true),

		Cell: lipgloss.NewStyle().
			Foreground(palette.Text),

		Table: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Muted).
			Padding(0, 1),

		Success: lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(palette.Error).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(palette.Muted),
	}
}

// DefaultStyles uses the dark palette.
func DefaultStyles() Styles {
	return NewStyles(base.DarkPalette)
}
