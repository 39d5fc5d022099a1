package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Renderer draws themed panel primitives.
type Renderer struct {
	Theme Theme
}

// NewRenderer creates a renderer with the default theme.
func NewRenderer() *Renderer {
	return &Renderer{Theme: DefaultTheme()}
}

// Panel draws a bordered background of the given height and returns a
// column cursor inside its padding.
func (r *Renderer) Panel(x, y, width, height int32) *Column {
	rl.DrawRectangle(x, y, width, height, r.Theme.PanelBg)
	rl.DrawRectangleLines(x, y, width, height, r.Theme.PanelBorder)
	p := r.Theme.Padding
	return &Column{r: r, X: x + p, Y: y + p, Width: width - 2*p}
}

// PanelHeight returns the height of a panel holding a header and the given
// numbers of label rows and bar rows.
func (r *Renderer) PanelHeight(labels, bars int) int32 {
	t := r.Theme
	return 2*t.Padding + t.LineHeight + 2 + int32(labels)*t.LineHeight + int32(bars)*(t.LineHeight+2)
}

// Column lays widgets out top to bottom; every call advances Y.
type Column struct {
	r     *Renderer
	X, Y  int32
	Width int32
}

// Header draws a section title.
func (c *Column) Header(title string) {
	t := c.r.Theme
	rl.DrawText(title, c.X, c.Y, t.HeaderFontSize, t.SectionHeader)
	c.Y += t.LineHeight + 2
}

// Label draws "label: value".
func (c *Column) Label(label, value string) {
	t := c.r.Theme
	rl.DrawText(label+":", c.X, c.Y, t.FontSize, t.LabelColor)
	rl.DrawText(value, c.X+t.LabelWidth, c.Y, t.FontSize, t.ValueColor)
	c.Y += t.LineHeight
}

// Text draws one line of plain label-colored text.
func (c *Column) Text(s string) {
	t := c.r.Theme
	rl.DrawText(s, c.X, c.Y, t.FontSize, t.LabelColor)
	c.Y += t.LineHeight
}

// Skip advances by n pixels.
func (c *Column) Skip(n int32) {
	c.Y += n
}

// PercentBar draws a labelled bar for a share in [0, 100].
func (c *Column) PercentBar(label string, pct float64) {
	t := c.r.Theme
	barX := c.X + t.LabelWidth
	barW := c.Width - t.LabelWidth - 50

	rl.DrawText(label, c.X, c.Y, t.FontSize, t.LabelColor)
	rl.DrawRectangle(barX, c.Y+2, barW, t.BarHeight, t.BarBg)
	fill := t.BarFill
	if pct > 50 {
		fill = t.BarFillHigh
	}
	rl.DrawRectangle(barX, c.Y+2, int32(float64(barW)*clampPct(pct)/100), t.BarHeight, fill)
	rl.DrawText(fmt.Sprintf("%.1f%%", pct), barX+barW+5, c.Y, t.FontSize, t.ValueColor)
	c.Y += t.LineHeight + 2
}

func clampPct(p float64) float64 {
	if !(p > 0) {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
