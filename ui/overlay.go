package ui

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Info is the fixed description of a run shown in the HUD.
type Info struct {
	Title  string
	Device string
	Agents int
	ResX   int
	ResY   int
	StepDT float64 // seconds per manual step
}

const legend = "[Space] pause  [N] step  [H] HUD  [C] controls  [P] perf  [F] field  [+/-] steps  [Wheel/RMB/R] view  [Esc] quit"

// Panel column placement.
const (
	panelX     = 10
	panelTop   = 100
	panelWidth = 260
	panelGap   = 10
)

// Overlay composes the HUD, the perf panel and the controls panel and owns
// their keyboard shortcuts.
type Overlay struct {
	ctrl Controls
	disp Display
	info Info

	hud      *HUD
	perf     *PerfPanel
	field    *FieldPanel
	controls *ControlsPanel

	showHUD   bool
	showPerf  bool
	showField bool
}

// NewOverlay creates an overlay for ctrl drawn over disp.
func NewOverlay(ctrl Controls, disp Display, info Info) *Overlay {
	return &Overlay{
		ctrl:     ctrl,
		disp:     disp,
		info:     info,
		hud:      NewHUD(),
		perf:     NewPerfPanel(panelWidth),
		field:    NewFieldPanel(panelWidth),
		controls: NewControlsPanel(panelWidth),
		showHUD:  true,
	}
}

// Key actions the overlay responds to.
type action int

const (
	actionNone action = iota
	actionPause
	actionStep
	actionHUD
	actionControls
	actionPerf
	actionField
	actionFaster
	actionSlower
)

var keyActions = []struct {
	key int32
	act action
}{
	{rl.KeySpace, actionPause},
	{rl.KeyN, actionStep},
	{rl.KeyH, actionHUD},
	{rl.KeyC, actionControls},
	{rl.KeyP, actionPerf},
	{rl.KeyF, actionField},
	{rl.KeyEqual, actionFaster},
	{rl.KeyKpAdd, actionFaster},
	{rl.KeyMinus, actionSlower},
	{rl.KeyKpSubtract, actionSlower},
}

// Draw handles input and draws the visible panels. Call between
// rl.BeginDrawing and rl.EndDrawing.
func (o *Overlay) Draw() error {
	for _, ka := range keyActions {
		if rl.IsKeyPressed(ka.key) {
			if err := o.apply(ka.act); err != nil {
				return err
			}
		}
	}
	if !o.showHUD {
		return nil
	}

	o.hud.Draw(HUDData{
		Title:   o.info.Title,
		Device:  o.info.Device,
		Agents:  o.info.Agents,
		ResX:    o.info.ResX,
		ResY:    o.info.ResY,
		Tick:    o.ctrl.Tick(),
		SimTime: o.ctrl.SimTime(),
		Steps:   o.ctrl.StepsPerUpdate(),
		FPS:     rl.GetFPS(),
		Paused:  o.ctrl.Paused(),
	})
	o.hud.DrawControls(int32(rl.GetScreenHeight()), legend)

	y := int32(panelTop)
	h, err := o.controls.Draw(panelX, y, o.ctrl, o.disp, o.info.StepDT)
	if err != nil {
		return err
	}
	if h > 0 {
		y += h + panelGap
	}
	if o.showField {
		ws, ok := o.ctrl.LastWindow()
		y += o.field.Draw(panelX, y, ws, ok) + panelGap
	}
	if o.showPerf {
		o.perf.Draw(panelX, y, o.ctrl.Perf())
	}
	return nil
}

// apply performs one keyboard action.
func (o *Overlay) apply(a action) error {
	switch a {
	case actionPause:
		o.ctrl.TogglePause()
	case actionStep:
		return o.ctrl.Step(o.info.StepDT)
	case actionHUD:
		o.showHUD = !o.showHUD
	case actionControls:
		o.controls.Toggle()
	case actionPerf:
		o.showPerf = !o.showPerf
	case actionField:
		o.showField = !o.showField
	case actionFaster:
		o.ctrl.SetStepsPerUpdate(o.ctrl.StepsPerUpdate() * 2)
	case actionSlower:
		o.ctrl.SetStepsPerUpdate(o.ctrl.StepsPerUpdate() / 2)
	}
	return nil
}
