// Package terminal shows the trail field as a half-block heatmap in a
// terminal and turns key presses into stop and pause requests.
package terminal

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/pthm-cable/mould/game"
	"github.com/pthm-cable/mould/renderer/colormap"
)

// Pauser is toggled by the space bar.
type Pauser interface {
	TogglePause()
}

// Display is a game.Presenter and game.StopSignal backed by a tcell screen.
// All methods must be called from the simulation goroutine.
type Display struct {
	screen  tcell.Screen
	palette colormap.Palette
	gain    float32
	pauser  Pauser

	events chan tcell.Event
	done   chan struct{}

	stopped  bool
	paused   bool
	minFrame time.Duration
	lastDraw time.Time
	now      func() time.Time
	sleep    func(time.Duration)
}

// New initializes screen and starts reading its events. gain maps cell
// values to the palette; fps > 0 caps the redraw rate by sleeping in Present.
func New(screen tcell.Screen, gain float32, fps int) (*Display, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("initializing terminal: %w", err)
	}
	screen.HideCursor()
	screen.Clear()

	d := &Display{
		screen:  screen,
		palette: colormap.Default,
		gain:    gain,
		events:  make(chan tcell.Event, 64),
		done:    make(chan struct{}),
		now:     time.Now,
		sleep:   time.Sleep,
	}
	if fps > 0 {
		d.minFrame = time.Second / time.Duration(fps)
	}
	go d.poll()
	return d, nil
}

// SetPauser sets the target of the space bar.
func (d *Display) SetPauser(p Pauser) {
	d.pauser = p
}

// Continue reports false once Esc, Ctrl-C or q was pressed.
func (d *Display) Continue() bool {
	d.drain()
	return !d.stopped
}

// Present draws one frame, sleeping first if the previous one was too recent.
func (d *Display) Present(f *game.Frame) error {
	d.drain()
	if d.minFrame > 0 {
		if wait := d.lastDraw.Add(d.minFrame).Sub(d.now()); wait > 0 {
			d.sleep(wait)
		}
	}
	d.draw(f)
	d.lastDraw = d.now()
	return nil
}

// Close stops event polling and restores the terminal.
func (d *Display) Close() {
	close(d.done)
	d.screen.Fini()
}

func (d *Display) poll() {
	for {
		ev := d.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case d.events <- ev:
		case <-d.done:
			return
		}
	}
}

func (d *Display) drain() {
	for {
		select {
		case ev := <-d.events:
			d.handle(ev)
		default:
			return
		}
	}
}

func (d *Display) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch {
		case ev.Key() == tcell.KeyEscape, ev.Key() == tcell.KeyCtrlC:
			d.stopped = true
		case ev.Key() == tcell.KeyRune && ev.Rune() == 'q':
			d.stopped = true
		case ev.Key() == tcell.KeyRune && ev.Rune() == ' ':
			d.paused = !d.paused
			if d.pauser != nil {
				d.pauser.TogglePause()
			}
		}
	case *tcell.EventResize:
		d.screen.Sync()
	}
}

// draw samples the field onto the screen, two field rows per text row using
// the upper half block: foreground is the top sample, background the bottom.
// The last text row is the status line.
func (d *Display) draw(f *game.Frame) {
	sw, sh := d.screen.Size()
	rows := sh - 1
	if sw <= 0 || rows <= 0 || f.W <= 0 || f.H <= 0 {
		return
	}

	for cy := 0; cy < rows; cy++ {
		top := (2 * cy) * f.H / (2 * rows)
		bottom := (2*cy + 1) * f.H / (2 * rows)
		for cx := 0; cx < sw; cx++ {
			x := cx * f.W / sw
			style := tcell.StyleDefault.
				Foreground(d.color(f.Cells[top*f.W+x])).
				Background(d.color(f.Cells[bottom*f.W+x]))
			d.screen.SetContent(cx, cy, '▀', nil, style)
		}
	}

	status := fmt.Sprintf(" tick %d", f.Tick)
	if d.paused {
		status += " | paused"
	}
	status += " | [space] pause [q] quit"
	for cx := 0; cx < sw; cx++ {
		r := ' '
		if cx < len(status) {
			r = rune(status[cx])
		}
		d.screen.SetContent(cx, sh-1, r, nil, tcell.StyleDefault)
	}
	d.screen.Show()
}

func (d *Display) color(v float32) tcell.Color {
	c := d.palette.At(v * d.gain)
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

var (
	_ game.Presenter  = (*Display)(nil)
	_ game.StopSignal = (*Display)(nil)
)
