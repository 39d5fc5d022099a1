// Package colormap maps trail intensities to colors. The stops match the
// colormap fragment shader so CPU and GPU presentations look the same.
package colormap

import (
	"image"
	"image/color"
)

// Palette is a three-stop linear gradient over [0,1].
type Palette struct {
	Low, Mid, High [3]float32
}

// Default is the palette compiled into the colormap shader.
var Default = Palette{
	Low:  [3]float32{0.02, 0.02, 0.06},
	Mid:  [3]float32{0.10, 0.55, 0.45},
	High: [3]float32{0.98, 0.92, 0.70},
}

// Gain returns the scale that maps one agent deposit to full intensity.
func Gain(depositAmount float32) float32 {
	if !(depositAmount > 0) {
		return 1
	}
	return 1 / depositAmount
}

// At returns the color of intensity t; t is clamped to [0,1].
func (p Palette) At(t float32) color.RGBA {
	if !(t > 0) {
		t = 0
	} else if t > 1 {
		t = 1
	}
	var a, b [3]float32
	var f float32
	if t < 0.5 {
		a, b, f = p.Low, p.Mid, t*2
	} else {
		a, b, f = p.Mid, p.High, (t-0.5)*2
	}
	return color.RGBA{
		R: channel(a[0] + (b[0]-a[0])*f),
		G: channel(a[1] + (b[1]-a[1])*f),
		B: channel(a[2] + (b[2]-a[2])*f),
		A: 255,
	}
}

// Colorize paints a w x h field into dst, which must be w x h. Row 0 of the
// field is the top row of the image.
func (p Palette) Colorize(dst *image.RGBA, cells []float32, w, h int, gain float32) {
	for y := 0; y < h; y++ {
		row := cells[y*w : (y+1)*w]
		for x, v := range row {
			dst.SetRGBA(x, y, p.At(v*gain))
		}
	}
}

// Image allocates and paints a new image of the field.
func (p Palette) Image(cells []float32, w, h int, gain float32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	p.Colorize(img, cells, w, h, gain)
	return img
}

func channel(v float32) uint8 {
	return uint8(v*255 + 0.5)
}
