package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/mould/camera"
	"github.com/pthm-cable/mould/config"
	"github.com/pthm-cable/mould/game"
	"github.com/pthm-cable/mould/renderer/colormap"
)

// OpenWindow creates the raylib window and its GL context. A hidden window
// still provides the context the opengl device needs.
func OpenWindow(screen config.ScreenConfig, title string, hidden bool) {
	var flags uint32 = rl.FlagWindowResizable | rl.FlagVsyncHint
	if hidden {
		flags = rl.FlagWindowHidden
	}
	rl.SetConfigFlags(flags)
	rl.InitWindow(int32(screen.Width), int32(screen.Height), title)
	if screen.TargetFPS > 0 {
		rl.SetTargetFPS(int32(screen.TargetFPS))
	}
	if screen.Fullscreen && !hidden {
		rl.ToggleFullscreen()
	}
}

// CloseWindow destroys the window and its context.
func CloseWindow() {
	rl.CloseWindow()
}

// zoomStep is the zoom multiplier per mouse wheel notch.
const zoomStep = 1.15

// Window presents every published frame on screen, with an optional overlay
// drawn on top. The mouse wheel zooms, right drag pans and R resets the view.
type Window struct {
	field    *FieldRenderer
	cam      *camera.Camera
	overlay  func() error
	exposure float32
}

// NewWindow creates a presenter for a w x h field. depositAmount sets the
// intensity that maps to the top of the palette.
func NewWindow(w, h int, depositAmount float32) (*Window, error) {
	field, err := NewFieldRenderer(w, h, colormap.Gain(depositAmount))
	if err != nil {
		return nil, err
	}
	cam := camera.New(float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()), float32(w), float32(h))
	return &Window{field: field, cam: cam, exposure: 1}, nil
}

// SetOverlay sets a function drawn after the field each frame.
func (w *Window) SetOverlay(draw func() error) {
	w.overlay = draw
}

// Exposure returns the brightness multiplier.
func (w *Window) Exposure() float32 { return w.exposure }

// SetExposure sets the brightness multiplier.
func (w *Window) SetExposure(e float32) {
	if e > 0 {
		w.exposure = e
	}
}

// Camera returns the view camera.
func (w *Window) Camera() *camera.Camera { return w.cam }

// Present uploads the frame and draws one screen.
func (w *Window) Present(f *game.Frame) error {
	if err := w.field.Upload(f.Cells); err != nil {
		return err
	}
	w.handleView()

	rl.BeginDrawing()
	defer rl.EndDrawing()

	rl.ClearBackground(rl.Black)
	w.field.Draw(w.cam, w.exposure)
	if w.overlay != nil {
		return w.overlay()
	}
	return nil
}

// handleView applies window resizes and mouse pan/zoom to the camera.
func (w *Window) handleView() {
	w.cam.Resize(float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()))

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		m := rl.GetMousePosition()
		factor := float32(zoomStep)
		if wheel < 0 {
			factor = 1 / factor
		}
		w.cam.ZoomAt(m.X, m.Y, factor)
	}
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		w.cam.Pan(-d.X, -d.Y)
	}
	if rl.IsKeyPressed(rl.KeyR) {
		w.cam.Reset()
	}
}

// Unload frees the window's GPU resources.
func (w *Window) Unload() {
	w.field.Unload()
}

var _ game.Presenter = (*Window)(nil)
