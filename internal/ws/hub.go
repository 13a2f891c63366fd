package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/xtrntr/crash/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans engine events out to connected websocket clients. Publish
// never blocks: events go through a buffered channel and are dropped
// (with a log line) when the buffer is full, so a slow client can never
// stall the round loop.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	events chan engine.Event
	done   chan struct{}
}

// NewHub creates a hub. Call Run in a goroutine to start delivery.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]bool),
		events:  make(chan engine.Event, 256),
		done:    make(chan struct{}),
	}
}

// Publish implements engine.Sink
func (h *Hub) Publish(ev engine.Event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("event buffer full, dropping event", "type", ev.Type)
	}
}

// Run delivers queued events until Close is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

// Close stops delivery and disconnects all clients
func (h *Hub) Close() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) broadcast(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.logger.Info("dropping client after write failure", "error", err)
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		c.conn.Close()
		delete(h.clients, c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades HTTP requests to websocket connections
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("failed to upgrade connection", "error", err)
			return
		}

		c := &client{conn: conn}
		h.mu.Lock()
		h.clients[c] = true
		h.mu.Unlock()

		// Keep connection alive and handle disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(c)
				break
			}
		}
	}
}
