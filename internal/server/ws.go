package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/posecam/internal/detector"
	"github.com/ayusman/posecam/internal/metrics"
	"github.com/gorilla/websocket"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// LandmarkSource runs the pose model on the latest frame.
type LandmarkSource interface {
	Landmarks(ctx context.Context) detector.Result
}

// LandmarksHandler pushes landmarks to websocket clients. One detection per
// tick is shared by every connected client, and nothing runs while no client
// is connected.
type LandmarksHandler struct {
	source   LandmarkSource
	interval time.Duration
	metrics  *metrics.Metrics
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
}

// NewLandmarksHandler creates a new LandmarksHandler. Call Run to start pushing.
func NewLandmarksHandler(source LandmarkSource, interval time.Duration, m *metrics.Metrics) *LandmarksHandler {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &LandmarksHandler{
		source:   source,
		interval: interval,
		metrics:  m,
		clients:  make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.add(conn)
	defer h.remove(conn)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *LandmarksHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *LandmarksHandler) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	h.metrics.ClientConnected(1)
	slog.Debug("websocket client connected", "remote", conn.RemoteAddr().String())
}

func (h *LandmarksHandler) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		h.metrics.ClientConnected(-1)
		slog.Debug("websocket client disconnected", "remote", conn.RemoteAddr().String())
	}
}

// Run broadcasts landmarks every interval until ctx is cancelled, then
// closes all client connections.
func (h *LandmarksHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

// broadcast sends one landmark payload to all connected clients.
func (h *LandmarksHandler) broadcast(ctx context.Context) {
	if h.Clients() == 0 {
		return
	}

	msg := encodeLandmarks(h.source.Landmarks(ctx))

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(conn)
			conn.Close()
		}
	}
}

func (h *LandmarksHandler) closeAll() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
	}
}
