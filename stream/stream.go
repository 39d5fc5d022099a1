// Package stream publishes trail snapshots to websocket clients. Each client
// first receives a JSON config message, then binary frames: a 12-byte
// little-endian header (tick, width, height as uint32) followed by one byte
// of quantized intensity per cell, row-major.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/mould/game"
)

// HeaderSize is the byte length of a frame header.
const HeaderSize = 12

// sendQueue is the number of frames buffered per client before frames are
// dropped for it.
const sendQueue = 4

// ConfigMessage is the first message every client receives.
type ConfigMessage struct {
	Type        string `json:"type"`
	W           int    `json:"w"`
	H           int    `json:"h"`
	EveryNTicks int    `json:"every_n_ticks"`
}

// Hub fans frames out to connected clients.
type Hub struct {
	w, h  int
	gain  float32
	every uint32

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	sent     bool
	lastTick uint32
	srv      *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates a hub for a w x h field. gain maps cell values to [0,1]
// before quantization; every is the minimum tick distance between frames.
func NewHub(w, h int, gain float32, every int) *Hub {
	return &Hub{
		w:        w,
		h:        h,
		gain:     gain,
		every:    uint32(max(every, 1)),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueue), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	// Frames queue in c.send until the write loop starts after the config.
	cfg := ConfigMessage{Type: "config", W: h.w, H: h.h, EveryNTicks: int(h.every)}
	if err := conn.WriteJSON(cfg); err != nil {
		h.remove(c)
		return
	}
	slog.Info("stream client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writeLoop(c)

	// Client messages are ignored; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	slog.Info("stream client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Present encodes the frame and queues it for every client, at most once per
// every ticks. Slow clients drop frames rather than stall the simulation.
func (h *Hub) Present(f *game.Frame) error {
	if h.sent && f.Tick-h.lastTick < h.every {
		return nil
	}
	if f.W != h.w || f.H != h.h {
		return fmt.Errorf("stream: frame %dx%d does not match %dx%d", f.W, f.H, h.w, h.h)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return nil
	}
	h.sent = true
	h.lastTick = f.Tick

	msg := EncodeFrame(f, h.gain)
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// Start listens on addr and serves the hub at /ws in the background.
func (h *Hub) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("stream server stopped", "error", err)
		}
	}()
	slog.Info("stream listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Close stops the server and disconnects every client.
func (h *Hub) Close() error {
	var err error
	if h.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = h.srv.Shutdown(ctx)
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	clear(h.clients)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	return err
}

// EncodeFrame builds one binary frame message.
func EncodeFrame(f *game.Frame, gain float32) []byte {
	msg := make([]byte, HeaderSize+len(f.Cells))
	binary.LittleEndian.PutUint32(msg[0:], f.Tick)
	binary.LittleEndian.PutUint32(msg[4:], uint32(f.W))
	binary.LittleEndian.PutUint32(msg[8:], uint32(f.H))
	for i, v := range f.Cells {
		t := v * gain
		if !(t > 0) {
			t = 0
		} else if t > 1 {
			t = 1
		}
		msg[HeaderSize+i] = uint8(t*255 + 0.5)
	}
	return msg
}

// DecodeFrame splits a binary frame message into its header and cells.
func DecodeFrame(msg []byte) (tick uint32, w, h int, cells []byte, err error) {
	if len(msg) < HeaderSize {
		return 0, 0, 0, nil, fmt.Errorf("stream: frame of %d bytes is shorter than its header", len(msg))
	}
	tick = binary.LittleEndian.Uint32(msg[0:])
	w = int(binary.LittleEndian.Uint32(msg[4:]))
	h = int(binary.LittleEndian.Uint32(msg[8:]))
	cells = msg[HeaderSize:]
	if len(cells) != w*h {
		return 0, 0, 0, nil, fmt.Errorf("stream: %dx%d frame carries %d cells", w, h, len(cells))
	}
	return tick, w, h, cells, nil
}

var _ game.Presenter = (*Hub)(nil)
