// Package stream pushes render frames to websocket clients as msgpack.
package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

const (
	writeWait  = 5 * time.Second
	clientSlot = 4 // frames buffered per client before frames are skipped
)

// Hub is a tracking.Publisher that keeps the latest frame and fans frames
// out to websocket clients at a bounded rate. Slow clients skip frames.
type Hub struct {
	lg       *log.Logger
	minGap   time.Duration
	upgrader websocket.Upgrader

	mu       sync.Mutex
	latest   tracking.Snapshot
	has      bool
	lastSent time.Time
	clients  map[*client]struct{}
	closed   bool
	txBytes  int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub sending at most rate frames per second to clients; a
// rate <= 0 sends every frame.
func NewHub(rate int, lg *log.Logger) *Hub {
	var gap time.Duration
	if rate > 0 {
		gap = time.Second / time.Duration(rate)
	}
	return &Hub{
		lg:      lg,
		minGap:  gap,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			EnableCompression: false,
			// origin policy is enforced by the CORS layer in front
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Publish records snap as the latest frame and forwards it to clients
func (h *Hub) Publish(snap tracking.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest, h.has = snap, true
	if h.closed || len(h.clients) == 0 {
		return
	}
	if !h.lastSent.IsZero() && snap.At.Sub(h.lastSent) < h.minGap {
		return
	}

	msg, err := msgpack.Marshal(snap)
	if err != nil {
		h.lg.Errorf("stream: encode frame %d: %v", snap.Seq, err)
		return
	}
	h.lastSent = snap.At

	for c := range h.clients {
		select {
		case c.send <- msg:
			h.txBytes += int64(len(msg))
		default:
			// client is behind; it gets a later frame
		}
	}
}

// Latest returns the most recently published frame
func (h *Hub) Latest() (tracking.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.has
}

// Clients is the number of connected websocket clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// TxBytes is the number of frame bytes queued to clients so far
func (h *Hub) TxBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.txBytes
}

// ServeHTTP upgrades the request and streams frames until the client goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warnf("stream: unable to upgrade websocket: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSlot)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.lg.Debug("stream client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop drains client messages so close frames are seen
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			var cerr *websocket.CloseError
			if !errors.As(err, &cerr) {
				h.lg.Debug("stream client read ended", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := c.conn.NextWriter(websocket.BinaryMessage)
		if err != nil {
			h.remove(c)
			return
		}
		if _, err := w.Write(msg); err != nil {
			h.remove(c)
			return
		}
		if err := w.Close(); err != nil {
			h.remove(c)
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

// Close disconnects every client; later connections are refused
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}
