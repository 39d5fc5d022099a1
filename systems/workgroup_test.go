package systems

import "testing"

func TestGroupCount(t *testing.T) {
	tests := []struct {
		n, g, want int
	}{
		{64, 8, 8},
		{65, 8, 9},
		{1, 64, 1},
		{0, 8, 0},
		{-3, 8, 0},
		{100000, 64, 1563},
	}
	for _, tt := range tests {
		if got := GroupCount(tt.n, tt.g); got != tt.want {
			t.Errorf("GroupCount(%d, %d) = %d, want %d", tt.n, tt.g, got, tt.want)
		}
	}
}

func TestGroupCountRejectsZeroWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero group width")
		}
	}()
	GroupCount(10, 0)
}

func TestGroupGrid(t *testing.T) {
	gx, gy := GroupGrid(512, 385, 8, 8)
	if gx != 64 || gy != 49 {
		t.Errorf("GroupGrid(512, 385, 8, 8) = %d, %d; want 64, 49", gx, gy)
	}
}
