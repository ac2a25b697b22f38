// Package websocket streams run progress to connected UI clients.
package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the set of connected clients and fans broadcast messages
// out to them.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	logger     *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
		clients:    make(map[*Client]bool),
	}
}

// Run processes registration and broadcast events. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Infof("WebSocket client connected (total: %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Infof("WebSocket client disconnected (total: %d)", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than block a run.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. Messages are
// dropped when the queue is full; the event stream is advisory.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one connected WebSocket peer.
type Client struct {
	send chan []byte
}

// NewClient creates a client ready for registration.
func NewClient() *Client {
	return &Client{send: make(chan []byte, 256)}
}

// Send returns the client's outbound message channel.
func (c *Client) Send() chan []byte {
	return c.send
}
