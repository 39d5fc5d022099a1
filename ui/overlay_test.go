package ui

import (
	"errors"
	"testing"

	"github.com/pthm-cable/mould/renderer/colormap"
	"github.com/pthm-cable/mould/telemetry"
)

type fakeControls struct {
	paused  bool
	steps   int
	stepped []float64
	stepErr error
}

func (f *fakeControls) Paused() bool        { return f.paused }
func (f *fakeControls) TogglePause()        { f.paused = !f.paused }
func (f *fakeControls) StepsPerUpdate() int { return f.steps }
func (f *fakeControls) Tick() uint32        { return 0 }
func (f *fakeControls) SimTime() float64    { return 0 }
func (f *fakeControls) Perf() telemetry.PerfStats {
	return telemetry.PerfStats{}
}
func (f *fakeControls) LastWindow() (telemetry.WindowStats, bool) {
	return telemetry.WindowStats{}, false
}

func (f *fakeControls) SetStepsPerUpdate(n int) {
	f.steps = max(1, min(n, 64))
}

func (f *fakeControls) Step(dt float64) error {
	f.stepped = append(f.stepped, dt)
	return f.stepErr
}

type fakeDisplay struct{ exposure float32 }

func (d *fakeDisplay) Exposure() float32     { return d.exposure }
func (d *fakeDisplay) SetExposure(e float32) { d.exposure = e }

func TestOverlayActions(t *testing.T) {
	ctrl := &fakeControls{steps: 4}
	o := NewOverlay(ctrl, &fakeDisplay{exposure: 1}, Info{StepDT: 0.25})

	for _, a := range []action{actionPause, actionStep, actionFaster, actionFaster, actionSlower} {
		if err := o.apply(a); err != nil {
			t.Fatalf("apply(%d): %v", a, err)
		}
	}
	if !ctrl.paused {
		t.Error("pause action did not pause")
	}
	if len(ctrl.stepped) != 1 || ctrl.stepped[0] != 0.25 {
		t.Errorf("steps = %v, want [0.25]", ctrl.stepped)
	}
	if ctrl.steps != 8 {
		t.Errorf("steps per update = %d, want 8", ctrl.steps)
	}
}

func TestOverlayToggles(t *testing.T) {
	o := NewOverlay(&fakeControls{steps: 1}, &fakeDisplay{}, Info{})
	if !o.showHUD || o.showPerf || !o.controls.IsVisible() {
		t.Fatalf("initial visibility hud=%v perf=%v controls=%v", o.showHUD, o.showPerf, o.controls.IsVisible())
	}
	_ = o.apply(actionHUD)
	_ = o.apply(actionPerf)
	_ = o.apply(actionControls)
	_ = o.apply(actionField)
	if o.showHUD || !o.showPerf || o.controls.IsVisible() || !o.showField {
		t.Errorf("after toggles hud=%v perf=%v controls=%v field=%v", o.showHUD, o.showPerf, o.controls.IsVisible(), o.showField)
	}
}

func TestOverlayStepError(t *testing.T) {
	want := errors.New("device lost")
	o := NewOverlay(&fakeControls{steps: 1, stepErr: want}, &fakeDisplay{}, Info{})
	if err := o.apply(actionStep); !errors.Is(err, want) {
		t.Errorf("apply(step) = %v, want %v", err, want)
	}
}

func TestSlowerClampsAtOne(t *testing.T) {
	ctrl := &fakeControls{steps: 1}
	o := NewOverlay(ctrl, &fakeDisplay{}, Info{})
	_ = o.apply(actionSlower)
	if ctrl.steps != 1 {
		t.Errorf("steps = %d, want 1", ctrl.steps)
	}
}

func TestPhaseRows(t *testing.T) {
	stats := telemetry.PerfStats{PhasePct: map[string]float64{
		telemetry.PhaseDiffuse:      30,
		telemetry.PhaseSenseAndMove: 60,
	}}
	rows := PhaseRows(stats)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Name != telemetry.PhaseSenseAndMove || rows[1].Name != telemetry.PhaseDiffuse {
		t.Errorf("rows = %v, want tick order", rows)
	}
}

func TestClampPct(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-5, 0},
		{42, 42},
		{150, 100},
	}
	for _, c := range cases {
		if got := clampPct(c.in); got != c.want {
			t.Errorf("clampPct(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestThemeFollowsPalette(t *testing.T) {
	p := colormap.Palette{
		Low:  [3]float32{0, 0, 0.2},
		Mid:  [3]float32{0, 0.5, 0},
		High: [3]float32{1, 1, 1},
	}
	th := ThemeFor(p)

	if th.PanelBg.B != 51 || th.PanelBg.A != panelAlpha {
		t.Errorf("PanelBg = %+v, want the low stop at panel alpha", th.PanelBg)
	}
	if th.BarFill.G != 128 || th.BarFill.R != 0 {
		t.Errorf("BarFill = %+v, want the mid stop", th.BarFill)
	}
	if th.SectionHeader.R != 255 || th.SectionHeader.A != 255 {
		t.Errorf("SectionHeader = %+v, want the high stop", th.SectionHeader)
	}
	if th.BarBg.B != 102 {
		t.Errorf("BarBg = %+v, want the low stop brightened x2", th.BarBg)
	}
}

func TestFieldRows(t *testing.T) {
	rows := FieldRows(telemetry.WindowStats{
		WindowEndTick: 600,
		Mass:          12345.678,
		Max:           0.5,
		Coverage:      0.125,
		Contrast:      1.75,
	})
	want := map[string]string{
		"Window end": "tick 600",
		"Mass":       "12,345.68",
		"Peak":       "0.5000",
		"Coverage":   "12.5%",
		"Contrast":   "1.75",
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for _, r := range rows {
		if want[r[0]] != r[1] {
			t.Errorf("%s = %q, want %q", r[0], r[1], want[r[0]])
		}
	}
}

func TestStatusLines(t *testing.T) {
	lines := HUDData{Device: "lanes", Agents: 250000, ResX: 512, ResY: 384, Tick: 7, Steps: 2, FPS: 60}.StatusLines()
	if want := "Agents: 250,000 | Field: 512x384 | Device: lanes"; lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if want := "Tick: 7 | Time: 0.0s | Steps: 2x | FPS: 60"; lines[1] != want {
		t.Errorf("line 1 = %q, want %q", lines[1], want)
	}
}

func TestPanelHeight(t *testing.T) {
	r := NewRenderer()
	th := r.Theme
	base := r.PanelHeight(0, 0)
	if want := 2*th.Padding + th.LineHeight + 2; base != want {
		t.Errorf("empty panel height = %d, want %d", base, want)
	}
	if got := r.PanelHeight(2, 1) - base; got != 3*th.LineHeight+2 {
		t.Errorf("two labels and a bar add %d, want %d", got, 3*th.LineHeight+2)
	}
}
