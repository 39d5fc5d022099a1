package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/mould/game"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readConfig(t *testing.T, conn *websocket.Conn) ConfigMessage {
	t.Helper()
	var cfg ConfigMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&cfg); err != nil {
		t.Fatalf("reading config: %v", err)
	}
	return cfg
}

func readFrame(t *testing.T, conn *websocket.Conn) (uint32, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", kind)
	}
	tick, _, _, cells, err := DecodeFrame(msg)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	return tick, cells
}

func TestHubStreamsFrames(t *testing.T) {
	hub := NewHub(2, 2, 0.5, 1)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	cfg := readConfig(t, conn)
	if cfg.Type != "config" || cfg.W != 2 || cfg.H != 2 || cfg.EveryNTicks != 1 {
		t.Fatalf("config = %+v", cfg)
	}

	f := &game.Frame{Tick: 7, W: 2, H: 2, Cells: []float32{0, 1, 2, 4}}
	if err := hub.Present(f); err != nil {
		t.Fatalf("Present: %v", err)
	}

	tick, cells := readFrame(t, conn)
	if tick != 7 {
		t.Errorf("tick = %d, want 7", tick)
	}
	want := []byte{0, 128, 255, 255}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d = %d, want %d", i, cells[i], want[i])
		}
	}
}

func TestHubEveryNTicks(t *testing.T) {
	hub := NewHub(1, 1, 1, 2)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	readConfig(t, conn)

	for tick := uint32(1); tick <= 5; tick++ {
		if err := hub.Present(&game.Frame{Tick: tick, W: 1, H: 1, Cells: []float32{0}}); err != nil {
			t.Fatalf("Present(%d): %v", tick, err)
		}
	}

	for _, want := range []uint32{1, 3, 5} {
		if got, _ := readFrame(t, conn); got != want {
			t.Errorf("frame tick = %d, want %d", got, want)
		}
	}
}

func TestHubWithoutClientsSkips(t *testing.T) {
	hub := NewHub(1, 1, 1, 1)
	if err := hub.Present(&game.Frame{Tick: 1, W: 1, H: 1, Cells: []float32{1}}); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if hub.sent {
		t.Error("frame marked sent with no clients")
	}
}

func TestHubRejectsWrongSize(t *testing.T) {
	hub := NewHub(4, 4, 1, 1)
	if err := hub.Present(&game.Frame{W: 2, H: 2, Cells: make([]float32, 4)}); err == nil {
		t.Error("Present accepted a mismatched frame")
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub(1, 1, 1, 1)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	readConfig(t, conn)
	if n := hub.Clients(); n != 1 {
		t.Fatalf("Clients() = %d, want 1", n)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.Clients(); n != 0 {
		t.Errorf("Clients() = %d after disconnect, want 0", n)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	if _, _, _, _, err := DecodeFrame([]byte{1, 2, 3}); err == nil {
		t.Error("short message decoded")
	}
	msg := EncodeFrame(&game.Frame{W: 2, H: 2, Cells: make([]float32, 4)}, 1)
	if _, _, _, _, err := DecodeFrame(msg[:len(msg)-1]); err == nil {
		t.Error("truncated cells decoded")
	}
}
