package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/mould/telemetry"
)

// HUDData holds all the data needed to render the status lines.
type HUDData struct {
	Title   string
	Device  string
	Agents  int
	ResX    int
	ResY    int
	Tick    uint32
	SimTime float64
	Steps   int
	FPS     int32
	Paused  bool
}

// StatusLines returns the two status lines under the title.
func (d HUDData) StatusLines() [2]string {
	return [2]string{
		fmt.Sprintf("Agents: %s | Field: %dx%d | Device: %s", humanize.Comma(int64(d.Agents)), d.ResX, d.ResY, d.Device),
		fmt.Sprintf("Tick: %d | Time: %.1fs | Steps: %dx | FPS: %d", d.Tick, d.SimTime, d.Steps, d.FPS),
	}
}

// HUD renders the main heads-up display.
type HUD struct {
	theme Theme
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{theme: DefaultTheme()}
}

// Draw renders the HUD.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(data.Title, 10, 10, 20, h.theme.SectionHeader)
	for i, line := range data.StatusLines() {
		rl.DrawText(line, 10, 35+int32(i)*20, 16, h.theme.LabelColor)
	}
	if data.Paused {
		rl.DrawText("PAUSED", 10, 75, 16, h.theme.BarFillHigh)
	}
}

// DrawControls renders the key legend at the bottom of the screen.
func (h *HUD) DrawControls(screenHeight int32, legend string) {
	rl.DrawText(legend, 10, screenHeight-25, 14, rl.Gray)
}

// PerfPanel renders the per-phase timing breakdown.
type PerfPanel struct {
	renderer *Renderer
	width    int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(width int32) *PerfPanel {
	return &PerfPanel{renderer: NewRenderer(), width: width}
}

// Draw renders the panel at (x, y) and returns its height.
func (p *PerfPanel) Draw(x, y int32, stats telemetry.PerfStats) int32 {
	rows := PhaseRows(stats)
	h := p.renderer.PanelHeight(3, len(rows))

	col := p.renderer.Panel(x, y, p.width, h)
	col.Header("Tick Phases")
	col.Label("Tick avg/p95", fmt.Sprintf("%s / %s",
		stats.AvgTickDuration.Round(time.Microsecond), stats.P95TickDuration.Round(time.Microsecond)))
	col.Label("Ticks/s", fmt.Sprintf("%.0f", stats.TicksPerSecond))
	col.Label("Frame", stats.FrameDuration.Round(100*time.Microsecond).String())
	for _, row := range rows {
		col.PercentBar(row.Name, row.Percent)
	}
	return h
}

// PhaseRow is one line of the phase breakdown.
type PhaseRow struct {
	Name    string
	Percent float64
}

// PhaseRows lists the phases of stats in tick order, skipping phases that
// have not been timed yet.
func PhaseRows(stats telemetry.PerfStats) []PhaseRow {
	rows := make([]PhaseRow, 0, len(telemetry.Phases()))
	for _, name := range telemetry.Phases() {
		pct, ok := stats.PhasePct[name]
		if !ok {
			continue
		}
		rows = append(rows, PhaseRow{Name: name, Percent: pct})
	}
	return rows
}

// FieldPanel shows the statistics of the last closed stats window.
type FieldPanel struct {
	renderer *Renderer
	width    int32
}

// NewFieldPanel creates a field statistics panel.
func NewFieldPanel(width int32) *FieldPanel {
	return &FieldPanel{renderer: NewRenderer(), width: width}
}

// FieldRows formats a stats window as label/value pairs.
func FieldRows(ws telemetry.WindowStats) [][2]string {
	return [][2]string{
		{"Window end", fmt.Sprintf("tick %d", ws.WindowEndTick)},
		{"Mass", humanize.FormatFloat("#,###.##", ws.Mass)},
		{"Peak", fmt.Sprintf("%.4f", ws.Max)},
		{"Coverage", fmt.Sprintf("%.1f%%", ws.Coverage*100)},
		{"Contrast", fmt.Sprintf("%.2f", ws.Contrast)},
	}
}

// Draw renders the panel at (x, y) and returns its height. ok false means no
// window has closed yet.
func (p *FieldPanel) Draw(x, y int32, ws telemetry.WindowStats, ok bool) int32 {
	rows := FieldRows(ws)
	if !ok {
		rows = [][2]string{{"Window", "collecting"}}
	}
	h := p.renderer.PanelHeight(len(rows), 0)

	col := p.renderer.Panel(x, y, p.width, h)
	col.Header("Trail Field")
	for _, r := range rows {
		col.Label(r[0], r[1])
	}
	return h
}
