// Package camera maps between screen pixels and trail field cells for the
// window view, with pan and zoom over the toroidal field.
package camera

import "math"

// Camera controls the viewport into the field.
type Camera struct {
	// Position is the view center in field cells
	X, Y float32

	// Zoom is screen pixels per field cell
	Zoom float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// Field dimensions in cells (for toroidal wrapping)
	WorldW, WorldH float32

	// Zoom constraints
	MinZoom, MaxZoom float32
}

// maxZoomFactor bounds magnification relative to the fitted view.
const maxZoomFactor = 16

// New creates a camera centered on the field, zoomed so the field just fills
// the viewport.
func New(viewportW, viewportH, worldW, worldH float32) *Camera {
	c := &Camera{
		ViewportW: viewportW,
		ViewportH: viewportH,
		WorldW:    worldW,
		WorldH:    worldH,
	}
	c.fit()
	c.Reset()
	return c
}

// fit recomputes the zoom range so the view never shows more than one copy
// of the field.
func (c *Camera) fit() {
	c.MinZoom = max(c.ViewportW/c.WorldW, c.ViewportH/c.WorldH)
	c.MaxZoom = c.MinZoom * maxZoomFactor
}

// WorldToScreen converts field coordinates to screen coordinates along the
// shortest toroidal path from the view center.
func (c *Camera) WorldToScreen(wx, wy float32) (sx, sy float32) {
	dx := toroidalDelta(wx, c.X, c.WorldW)
	dy := toroidalDelta(wy, c.Y, c.WorldH)
	return c.ViewportW/2 + dx*c.Zoom, c.ViewportH/2 + dy*c.Zoom
}

// ScreenToWorld converts screen coordinates to wrapped field coordinates.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wy float32) {
	dx := (sx - c.ViewportW/2) / c.Zoom
	dy := (sy - c.ViewportH/2) / c.Zoom
	return mod(c.X+dx, c.WorldW), mod(c.Y+dy, c.WorldH)
}

// SourceRect returns the visible field region in cells. The origin may lie
// outside [0, World) when the view straddles the seam; a repeating texture
// sampled with this rectangle wraps correctly.
func (c *Camera) SourceRect() (x, y, w, h float32) {
	w = c.ViewportW / c.Zoom
	h = c.ViewportH / c.Zoom
	return c.X - w/2, c.Y - h/2, w, h
}

// Resize updates viewport dimensions and recalculates zoom constraints.
func (c *Camera) Resize(viewportW, viewportH float32) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.fit()
	c.SetZoom(c.Zoom)
}

// Pan moves the camera by the given delta in screen pixels.
// Automatically wraps around field boundaries.
func (c *Camera) Pan(dx, dy float32) {
	c.X = mod(c.X+dx/c.Zoom, c.WorldW)
	c.Y = mod(c.Y+dy/c.Zoom, c.WorldH)
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = clamp(zoom, c.MinZoom, c.MaxZoom)
}

// ZoomAt multiplies the zoom by factor, keeping the field point under
// screen position (sx, sy) fixed.
func (c *Camera) ZoomAt(sx, sy, factor float32) {
	wx, wy := c.ScreenToWorld(sx, sy)
	c.SetZoom(c.Zoom * factor)
	c.X = mod(wx-(sx-c.ViewportW/2)/c.Zoom, c.WorldW)
	c.Y = mod(wy-(sy-c.ViewportH/2)/c.Zoom, c.WorldH)
}

// Reset returns the camera to the field center at the fitted zoom.
func (c *Camera) Reset() {
	c.X = c.WorldW / 2
	c.Y = c.WorldH / 2
	c.Zoom = c.MinZoom
}

// toroidalDelta computes the shortest signed distance from 'from' to 'to'
// in a toroidal space of the given size.
func toroidalDelta(to, from, size float32) float32 {
	d := to - from
	if d > size/2 {
		d -= size
	} else if d < -size/2 {
		d += size
	}
	return d
}

// mod computes the positive modulo (Go's % can return negative).
func mod(x, m float32) float32 {
	r := float32(math.Mod(float64(x), float64(m)))
	if r < 0 {
		r += m
	}
	return r
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
