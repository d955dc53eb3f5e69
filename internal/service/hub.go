package service

import (
	"sync"

	"CasinoApi/pkg/logger"

	"github.com/gorilla/websocket"
)

// envelope is the wire format for every realtime message, both directions.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client is one live websocket connection.
type Client struct {
	ID   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Send writes one named message to the client. A write failure closes the
// connection; the read loop then runs the normal disconnect path.
func (c *Client) Send(event string, data interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(envelope{Type: event, Data: data}); err != nil {
		logger.Error("Failed to send %s to %s: %v", event, c.ID, err)
		c.conn.Close()
	}
}

// Hub is the fan-out gateway: it tracks live connections and broadcasts named
// messages to all of them or to one.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Broadcast sends a named message to every connected client.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.Send(event, data)
	}
}

// SendTo sends a named message to a single connection if it is still live.
func (h *Hub) SendTo(id, event string, data interface{}) {
	h.mu.Lock()
	c, ok := h.clients[id]
	h.mu.Unlock()

	if ok {
		c.Send(event, data)
	}
}
