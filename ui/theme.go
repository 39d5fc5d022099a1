// Package ui draws the raylib overlay on top of the trail display: status
// text, a phase timing panel and raygui controls for pausing, stepping and
// exposure.
package ui

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/mould/renderer/colormap"
)

// Theme holds overlay colors and metrics.
type Theme struct {
	PanelBg       rl.Color
	PanelBorder   rl.Color
	SectionHeader rl.Color
	LabelColor    rl.Color
	ValueColor    rl.Color
	BarBg         rl.Color
	BarFill       rl.Color
	BarFillHigh   rl.Color

	Padding        int32
	LineHeight     int32
	LabelWidth     int32
	BarHeight      int32
	FontSize       int32
	HeaderFontSize int32
}

// panelAlpha keeps the field visible through panels.
const panelAlpha = 210

// ThemeFor derives overlay colors from the field palette so panels sit in
// the same color space as the trails: backgrounds from the low stop, bars
// from the mid stop and headers from the high stop.
func ThemeFor(p colormap.Palette) Theme {
	low, mid, high := p.At(0), p.At(0.5), p.At(1)
	return Theme{
		PanelBg:       rl.Color{R: low.R, G: low.G, B: low.B, A: panelAlpha},
		PanelBorder:   shade(mid, 0.5),
		SectionHeader: rl.Color{R: high.R, G: high.G, B: high.B, A: 255},
		LabelColor:    rl.LightGray,
		ValueColor:    rl.RayWhite,
		BarBg:         shade(low, 2),
		BarFill:       rl.Color{R: mid.R, G: mid.G, B: mid.B, A: 255},
		BarFillHigh:   shade(high, 0.9),

		Padding:        10,
		LineHeight:     16,
		LabelWidth:     110,
		BarHeight:      12,
		FontSize:       12,
		HeaderFontSize: 14,
	}
}

// DefaultTheme is the theme of the default palette.
func DefaultTheme() Theme {
	return ThemeFor(colormap.Default)
}

// shade scales a color's channels by f, saturating at 255. Alpha is opaque.
func shade(c color.Color, f float32) rl.Color {
	r, g, b, _ := c.RGBA()
	ch := func(v uint32) uint8 {
		return uint8(min(float32(v>>8)*f, 255))
	}
	return rl.Color{R: ch(r), G: ch(g), B: ch(b), A: 255}
}
