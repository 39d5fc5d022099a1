package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/mould/telemetry"
)

// Controls is the part of the running simulation the overlay drives.
type Controls interface {
	Paused() bool
	TogglePause()
	Step(dt float64) error
	StepsPerUpdate() int
	SetStepsPerUpdate(n int)
	Tick() uint32
	SimTime() float64
	Perf() telemetry.PerfStats
	// LastWindow returns the most recent stats window; ok is false before
	// the first one closes.
	LastWindow() (ws telemetry.WindowStats, ok bool)
}

// Display is the presentation state the overlay adjusts.
type Display interface {
	Exposure() float32
	SetExposure(e float32)
}

// Exposure slider bounds.
const (
	MinExposure = 0.1
	MaxExposure = 8
)

// ControlsPanel renders raygui buttons and sliders for the run.
type ControlsPanel struct {
	renderer *Renderer
	width    int32
	visible  bool
}

// controlsHeight is the fixed height of the controls panel.
const controlsHeight = 170

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(width int32) *ControlsPanel {
	return &ControlsPanel{
		renderer: NewRenderer(),
		width:    width,
		visible:  true,
	}
}

// IsVisible returns whether the panel is shown.
func (c *ControlsPanel) IsVisible() bool {
	return c.visible
}

// Toggle switches panel visibility.
func (c *ControlsPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Draw renders the panel at (x, y) and applies any interaction. A single
// step requested through the panel runs immediately with stepDT. It returns
// the panel height, 0 when hidden.
func (c *ControlsPanel) Draw(x, y int32, ctrl Controls, disp Display, stepDT float64) (int32, error) {
	if !c.visible {
		return 0, nil
	}

	col := c.renderer.Panel(x, y, c.width, controlsHeight)
	col.Header("Controls")

	pad := float32(c.renderer.Theme.Padding)
	left := float32(col.X)
	inner := float32(col.Width)
	half := (inner - pad) / 2
	slider := func() rl.Rectangle {
		return rl.Rectangle{X: left + 10, Y: float32(col.Y), Width: inner - 40, Height: 16}
	}

	top := float32(col.Y)
	if gui.Button(rl.Rectangle{X: left, Y: top, Width: half, Height: 24}, toggleText(ctrl.Paused(), "Resume", "Pause")) {
		ctrl.TogglePause()
	}
	if gui.Button(rl.Rectangle{X: left + half + pad, Y: top, Width: half, Height: 24}, "Step") {
		if err := ctrl.Step(stepDT); err != nil {
			return controlsHeight, err
		}
	}
	col.Skip(34)

	col.Text(fmt.Sprintf("Steps per frame: %d", ctrl.StepsPerUpdate()))
	steps := gui.SliderBar(slider(), "1", "64", float32(ctrl.StepsPerUpdate()), 1, 64)
	if n := int(steps + 0.5); n != ctrl.StepsPerUpdate() {
		ctrl.SetStepsPerUpdate(n)
	}
	col.Skip(26)

	col.Text(fmt.Sprintf("Exposure: %.2f", disp.Exposure()))
	if e := gui.SliderBar(slider(), "", "", disp.Exposure(), MinExposure, MaxExposure); e != disp.Exposure() {
		disp.SetExposure(e)
	}
	return controlsHeight, nil
}

func toggleText(on bool, whenOn, whenOff string) string {
	if on {
		return whenOn
	}
	return whenOff
}
