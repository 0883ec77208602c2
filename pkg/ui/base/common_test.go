package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadAndTruncate(t *testing.T) {
	assert.Equal(t, "ab  ", PadString("ab", 4))
	assert.Equal(t, "abcdef", PadString("abcdef", 4))
	assert.Equal(t, "abcdef", TruncateString("abcdef", 6))
	assert.Equal(t, "abc...", TruncateString("abcdefgh", 6))
	assert.Equal(t, "ab", TruncateString("abcdefgh", 2))
}

func TestColumnWidths(t *testing.T) {
	widths := ColumnWidths(
		[]string{"id", "name"},
		[][]string{{"1", "color"}, {"12", "a-very-long-attribute-name"}},
		10,
	)
	assert.Equal(t, []int{2, 10}, widths)
}

func TestPaletteFor(t *testing.T) {
	assert.Equal(t, DarkPalette, PaletteFor(true))
	assert.Equal(t, LightPalette, PaletteFor(false))
}
