package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"thermoctl/pkg/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Live view runs on localhost; cross-origin pages may embed it
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveHandler pushes samples to websocket clients as they are taken.
// It implements control.Notifier.
type LiveHandler struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan model.Sample
	last    *model.Sample
}

func NewLiveHandler() *LiveHandler {
	return &LiveHandler{clients: make(map[*websocket.Conn]chan model.Sample)}
}

// Handle serves GET /api/live, upgrading to a websocket that receives one
// JSON message per sample.
func (h *LiveHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan model.Sample, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	// Send the latest sample right away so a new client sees state immediately
	if h.last != nil {
		select {
		case ch <- *h.last:
		default:
		}
	}
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
	go h.readLoop(conn)
}

func (h *LiveHandler) writeLoop(conn *websocket.Conn, ch <-chan model.Sample) {
	for s := range ch {
		if err := conn.WriteJSON(s); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

// readLoop discards client messages and detects disconnects.
func (h *LiveHandler) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *LiveHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// Notify implements control.Notifier. Slow clients miss samples rather than
// stalling the control loop.
func (h *LiveHandler) Notify(s model.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &s
	for _, ch := range h.clients {
		select {
		case ch <- s:
		default:
		}
	}
}

// Close disconnects all clients.
func (h *LiveHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
}
