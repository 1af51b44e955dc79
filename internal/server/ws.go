package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/punchcounter/internal/app"
)

const (
	eventBuffer  = 256
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventHub broadcasts run progress to websocket clients.
type EventHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	events  chan app.Progress
	done    chan struct{}
	once    sync.Once
}

// NewEventHub creates a hub and starts its broadcast loop.
func NewEventHub() *EventHub {
	h := &EventHub{
		clients: make(map[*websocket.Conn]bool),
		events:  make(chan app.Progress, eventBuffer),
		done:    make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// Publish queues a progress event. It never blocks; events are dropped
// when the queue is full.
func (h *EventHub) Publish(p app.Progress) {
	select {
	case h.events <- p:
	default:
		slog.Debug("progress event dropped", "run_id", p.RunID, "stage", p.Stage)
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the broadcast loop and disconnects every client.
func (h *EventHub) Close() {
	h.once.Do(func() {
		close(h.done)

		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.mu.Unlock()
	})
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends queued events to all connected clients.
func (h *EventHub) broadcast() {
	for {
		select {
		case <-h.done:
			return
		case p := <-h.events:
			msg, err := json.Marshal(p)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					slog.Debug("dropping websocket client", "error", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}
