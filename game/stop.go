package game

import (
	"context"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// StopSignal is polled once per tick boundary. The run ends the first time
// Continue returns false.
type StopSignal interface {
	Continue() bool
}

// ContinueFunc adapts a function to StopSignal.
type ContinueFunc func() bool

// Continue implements StopSignal.
func (f ContinueFunc) Continue() bool { return f() }

// All continues while every signal continues. Signals are polled in order
// and polling stops at the first one that ends the run.
func All(signals ...StopSignal) StopSignal {
	return ContinueFunc(func() bool {
		for _, s := range signals {
			if s != nil && !s.Continue() {
				return false
			}
		}
		return true
	})
}

// UntilTick continues while the orchestrator has completed fewer than limit
// ticks. limit <= 0 never stops.
func UntilTick(o *Orchestrator, limit int) StopSignal {
	return ContinueFunc(func() bool {
		return limit <= 0 || int(o.TickCount()) < limit
	})
}

// UntilDone continues until ctx is cancelled, such as by an OS signal
// through signal.NotifyContext.
func UntilDone(ctx context.Context) StopSignal {
	return ContinueFunc(func() bool {
		return ctx.Err() == nil
	})
}

// WindowOpen continues while the raylib window has not been asked to close.
// raylib reports Escape as a close request.
func WindowOpen() StopSignal {
	return ContinueFunc(func() bool {
		return !rl.WindowShouldClose()
	})
}
