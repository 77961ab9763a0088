// Package gateway pushes live trading status snapshots to WebSocket
// clients so dashboards do not have to poll the REST endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/logger"
	"papertrader/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// StatusSource is anything that can produce a live status snapshot.
type StatusSource interface {
	Status() model.LiveStatus
}

// Hub fans live status snapshots out to connected WebSocket clients on a
// fixed cadence. Clients that fail a write are dropped.
type Hub struct {
	source   StatusSource
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub broadcasting from source every interval.
func NewHub(source StatusSource, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		source:   source,
		interval: interval,
		clients:  make(map[*websocket.Conn]bool),
	}
}

// HandleWS upgrades the request and registers the client. The first
// snapshot is sent immediately so new clients do not wait a full tick.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[gateway] ws upgrade: %v", err)
		return
	}

	payload, err := json.Marshal(h.source.Status())
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, payload)
	}

	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	logger.Info("[gateway] client connected (%d total)", n)

	// Reader goroutine: discard inbound frames, detect close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Run broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcast()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast() {
	payload, err := json.Marshal(h.source.Status())
	if err != nil {
		logger.Error("[gateway] marshal status: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
