package base

import "github.com/charmbracelet/lipgloss"

// ColorPalette is the color scheme used by the renderers.
type ColorPalette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
}

// DarkPalette is the default palette.
var DarkPalette = ColorPalette{
	Primary:   lipgloss.Color("#7C3AED"),
	Secondary: lipgloss.Color("#06B6D4"),
	Success:   lipgloss.Color("#10B981"),
	Warning:   lipgloss.Color("#F59E0B"),
	Error:     lipgloss.Color("#EF4444"),
	Muted:     lipgloss.Color("#94A3B8"),
	Text:      lipgloss.Color("#F8FAFC"),
}

// LightPalette suits light terminal backgrounds.
var LightPalette = ColorPalette{
	Primary:   lipgloss.Color("#5A56E0"),
	Secondary: lipgloss.Color("#0E7490"),
	Success:   lipgloss.Color("#02BA84"),
	Warning:   lipgloss.Color("#FF8C00"),
	Error:     lipgloss.Color("#FF5F56"),
	Muted:     lipgloss.Color("#6B7280"),
	Text:      lipgloss.Color("#111827"),
}

// PaletteFor picks the palette matching the terminal background.
func PaletteFor(darkBackground bool) ColorPalette {
	if darkBackground {
		return DarkPalette
	}
	return LightPalette
}
