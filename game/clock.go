package game

import (
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Clock reports the seconds elapsed since its previous call.
type Clock interface {
	Elapsed() float64
}

// FixedClock returns the same step every call. Headless and tool runs use it
// so a seed reproduces a run on the same device.
type FixedClock struct {
	DT float64
}

// Elapsed implements Clock.
func (c FixedClock) Elapsed() float64 { return sanitizeDT(c.DT) }

// WallClock measures real time between calls, clamped to MaxDT so a stalled
// frame does not produce one huge step.
type WallClock struct {
	MaxDT float64 // 0 = unclamped
	now   func() time.Time
	last  time.Time
}

// NewWallClock starts a wall clock at the current time.
func NewWallClock(maxDT float64) *WallClock {
	return newWallClock(maxDT, time.Now)
}

func newWallClock(maxDT float64, now func() time.Time) *WallClock {
	return &WallClock{MaxDT: maxDT, now: now, last: now()}
}

// Elapsed implements Clock.
func (c *WallClock) Elapsed() float64 {
	t := c.now()
	dt := t.Sub(c.last).Seconds()
	c.last = t
	return clampDT(dt, c.MaxDT)
}

// FrameClock uses raylib's measured frame time. Requires an open window.
type FrameClock struct {
	MaxDT float64
}

// Elapsed implements Clock.
func (c FrameClock) Elapsed() float64 {
	return clampDT(float64(rl.GetFrameTime()), c.MaxDT)
}

func clampDT(dt, maxDT float64) float64 {
	dt = sanitizeDT(dt)
	if maxDT > 0 && dt > maxDT {
		return maxDT
	}
	return dt
}
