// Package renderer presents the trail field in a raylib window.
package renderer

import (
	"fmt"
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/mould/camera"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/shaders"
)

// FieldRenderer draws the trail field as a screen-filling textured quad
// through the colormap shader. Intensities are uploaded pre-scaled into the
// red channel; the shader applies exposure and the palette.
type FieldRenderer struct {
	program *gpu.GraphicsProgram
	shader  rl.Shader
	gainLoc int32

	tex    rl.Texture2D
	texW   int
	texH   int
	pixels []color.RGBA
	gain   float32
}

// NewFieldRenderer allocates a w x h texture and loads the colormap shader.
// gain maps cell values to [0,1]. Requires an open raylib window.
func NewFieldRenderer(w, h int, gain float32) (*FieldRenderer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid field size %dx%d", w, h)
	}

	shader := rl.LoadShaderFromMemory("", shaders.ColormapFragment)
	if shader.ID == 0 {
		return nil, fmt.Errorf("%w: %s", gpu.ErrCompile, shaders.Colormap)
	}

	img := rl.GenImageColor(w, h, rl.Black)
	tex := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	rl.SetTextureFilter(tex, rl.FilterBilinear)
	rl.SetTextureWrap(tex, rl.WrapRepeat)

	return &FieldRenderer{
		program: gpu.NewGraphicsProgram(shaders.Colormap, shader.ID, func() { rl.UnloadShader(shader) }),
		shader:  shader,
		gainLoc: rl.GetShaderLocation(shader, "gain"),
		tex:     tex,
		texW:    w,
		texH:    h,
		pixels:  make([]color.RGBA, w*h),
		gain:    gain,
	}, nil
}

// Program returns the linked colormap program.
func (r *FieldRenderer) Program() *gpu.GraphicsProgram { return r.program }

// Upload copies a published field into the texture.
func (r *FieldRenderer) Upload(cells []float32) error {
	if len(cells) != r.texW*r.texH {
		return fmt.Errorf("field of %d cells does not fit %dx%d texture", len(cells), r.texW, r.texH)
	}
	encodeIntensity(r.pixels, cells, r.gain)
	rl.UpdateTexture(r.tex, r.pixels)
	return nil
}

// Draw renders the part of the field the camera sees over the whole screen
// with the given exposure. A nil camera shows the whole field.
func (r *FieldRenderer) Draw(cam *camera.Camera, exposure float32) {
	rl.SetShaderValue(r.shader, r.gainLoc, []float32{exposure}, rl.ShaderUniformFloat)

	src := rl.Rectangle{X: 0, Y: 0, Width: float32(r.texW), Height: float32(r.texH)}
	if cam != nil {
		src.X, src.Y, src.Width, src.Height = cam.SourceRect()
	}
	dst := rl.Rectangle{X: 0, Y: 0, Width: float32(rl.GetScreenWidth()), Height: float32(rl.GetScreenHeight())}

	rl.BeginShaderMode(r.shader)
	rl.DrawTexturePro(r.tex, src, dst, rl.Vector2{}, 0, rl.White)
	rl.EndShaderMode()
}

// Unload frees GPU resources.
func (r *FieldRenderer) Unload() {
	r.program.Release()
	rl.UnloadTexture(r.tex)
}

// encodeIntensity stores clamp(v*gain, 0, 1) of each cell in the red channel.
func encodeIntensity(dst []color.RGBA, cells []float32, gain float32) {
	for i, v := range cells {
		t := v * gain
		if !(t > 0) {
			t = 0
		} else if t > 1 {
			t = 1
		}
		dst[i] = color.RGBA{R: uint8(t*255 + 0.5), A: 255}
	}
}
