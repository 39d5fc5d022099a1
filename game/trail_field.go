package game

import (
	"fmt"

	"github.com/pthm-cable/mould/gpu"
)

// TrailField owns the two simulation slots and the display slot of the
// trail field. The read index changes only through SetRead, which the
// orchestrator calls in Publish.
type TrailField struct {
	slots   [2]gpu.FieldBuffer
	display gpu.FieldBuffer
	read    int
	w, h    int
}

// NewTrailField allocates three zeroed w x h fields on dev.
func NewTrailField(dev gpu.Device, w, h int) (*TrailField, error) {
	f := &TrailField{w: w, h: h}
	for i := range f.slots {
		buf, err := dev.NewField(w, h)
		if err != nil {
			f.Release()
			return nil, fmt.Errorf("allocating trail slot %d: %w", i, err)
		}
		f.slots[i] = buf
	}
	display, err := dev.NewField(w, h)
	if err != nil {
		f.Release()
		return nil, fmt.Errorf("allocating display slot: %w", err)
	}
	f.display = display
	return f, nil
}

// Size returns the field resolution.
func (f *TrailField) Size() (int, int) { return f.w, f.h }

// ReadIndex is the slot sampled by the next tick.
func (f *TrailField) ReadIndex() int { return f.read }

// Read returns the slot sampled by the agent stage.
func (f *TrailField) Read() gpu.FieldBuffer { return f.slots[f.read] }

// Deposit returns the slot the agent stage writes into.
func (f *TrailField) Deposit() gpu.FieldBuffer { return f.slots[1-f.read] }

// Slot returns simulation slot i (0 or 1).
func (f *TrailField) Slot(i int) gpu.FieldBuffer { return f.slots[i] }

// Display returns the slot presenters read from.
func (f *TrailField) Display() gpu.FieldBuffer { return f.display }

// SetRead makes slot i the read slot.
func (f *TrailField) SetRead(i int) {
	if i != 0 && i != 1 {
		panic(fmt.Sprintf("game: trail slot index %d out of range", i))
	}
	f.read = i
}

// Release frees all three slots.
func (f *TrailField) Release() {
	for i, s := range f.slots {
		if s != nil {
			s.Release()
			f.slots[i] = nil
		}
	}
	if f.display != nil {
		f.display.Release()
		f.display = nil
	}
}
