package camera

import (
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 0.01
}

func TestNewFitsField(t *testing.T) {
	cam := New(1024, 768, 512, 384)

	if cam.X != 256 || cam.Y != 192 {
		t.Errorf("center = (%v, %v), want (256, 192)", cam.X, cam.Y)
	}
	if cam.Zoom != 2 || cam.MinZoom != 2 || cam.MaxZoom != 32 {
		t.Errorf("zoom = %v [%v, %v], want 2 [2, 32]", cam.Zoom, cam.MinZoom, cam.MaxZoom)
	}

	x, y, w, h := cam.SourceRect()
	if x != 0 || y != 0 || w != 512 || h != 384 {
		t.Errorf("SourceRect() = (%v, %v, %v, %v), want whole field", x, y, w, h)
	}
}

func TestMinZoomPreventsDeadSpace(t *testing.T) {
	cam := New(800, 600, 1600, 800)

	// max(800/1600, 600/800) = 0.75
	if !near(cam.MinZoom, 0.75) {
		t.Errorf("MinZoom = %v, want 0.75", cam.MinZoom)
	}
	if visibleH := cam.ViewportH / cam.Zoom; !near(visibleH, cam.WorldH) {
		t.Errorf("visible height %v, want field height %v", visibleH, cam.WorldH)
	}
}

func TestScreenToWorldRoundtrip(t *testing.T) {
	cam := New(1024, 768, 512, 384)
	cam.SetZoom(5)

	for _, tc := range []struct{ sx, sy float32 }{
		{512, 384},
		{100, 100},
		{1000, 700},
	} {
		wx, wy := cam.ScreenToWorld(tc.sx, tc.sy)
		sx, sy := cam.WorldToScreen(wx, wy)
		if !near(sx, tc.sx) || !near(sy, tc.sy) {
			t.Errorf("roundtrip (%v,%v) -> (%v,%v) -> (%v,%v)", tc.sx, tc.sy, wx, wy, sx, sy)
		}
	}
}

func TestToroidalWrap(t *testing.T) {
	cam := New(1024, 768, 512, 384)
	cam.SetZoom(4)
	cam.X = 10

	// A cell at the far right edge is closer across the seam.
	if sx, _ := cam.WorldToScreen(500, 192); sx >= 512 {
		t.Errorf("cell across the seam drawn at x=%v, want left of center", sx)
	}

	x, _, _, _ := cam.SourceRect()
	if x >= 0 {
		t.Errorf("SourceRect x = %v, want negative when straddling the seam", x)
	}
}

func TestPanWraps(t *testing.T) {
	cam := New(1024, 768, 512, 384)
	cam.X = 10

	cam.Pan(-100, 0) // 50 cells at zoom 2
	if !near(cam.X, 472) {
		t.Errorf("X = %v, want 472", cam.X)
	}
}

func TestZoomClamp(t *testing.T) {
	cam := New(1024, 768, 512, 384)

	cam.SetZoom(0.1)
	if cam.Zoom != cam.MinZoom {
		t.Errorf("zoom = %v, want clamped to %v", cam.Zoom, cam.MinZoom)
	}
	cam.SetZoom(1000)
	if cam.Zoom != cam.MaxZoom {
		t.Errorf("zoom = %v, want clamped to %v", cam.Zoom, cam.MaxZoom)
	}
}

func TestZoomAtKeepsCursorCell(t *testing.T) {
	cam := New(1024, 768, 512, 384)
	wx, wy := cam.ScreenToWorld(200, 300)

	cam.ZoomAt(200, 300, 3)
	if cam.Zoom != 6 {
		t.Fatalf("zoom = %v, want 6", cam.Zoom)
	}
	gx, gy := cam.ScreenToWorld(200, 300)
	if !near(gx, wx) || !near(gy, wy) {
		t.Errorf("cell under cursor moved from (%v,%v) to (%v,%v)", wx, wy, gx, gy)
	}
}

func TestResizeReclampsZoom(t *testing.T) {
	cam := New(1024, 768, 512, 384)
	cam.Resize(2048, 1536)
	if cam.Zoom != 4 {
		t.Errorf("zoom after growing the window = %v, want 4", cam.Zoom)
	}
}

func TestReset(t *testing.T) {
	cam := New(1024, 768, 512, 384)
	cam.X, cam.Y = 10, 20
	cam.SetZoom(9)

	cam.Reset()
	if cam.X != 256 || cam.Y != 192 || cam.Zoom != cam.MinZoom {
		t.Errorf("after Reset: (%v, %v) zoom %v", cam.X, cam.Y, cam.Zoom)
	}
}
