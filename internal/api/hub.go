package api

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// Message is the frame sent to dashboard websocket clients
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const TypeFleetUpdate = "fleet_update"

// Hub fans fleet pushes out to connected dashboard clients
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
		stopCh:     make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client buffer full, skip
				}
			}
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// BroadcastFleet re-broadcasts a fleet snapshot to every connected client.
// When nobody is connected or the buffer is saturated the frame is dropped;
// clients always get the next one.
func (h *Hub) BroadcastFleet(snap models.FleetSnapshot) {
	devices := make([]models.TelemetrySnapshot, 0, len(snap))
	for _, d := range snap {
		devices = append(devices, d)
	}

	payload, err := json.Marshal(devices)
	if err != nil {
		log.Printf("hub: marshaling fleet update: %v", err)
		return
	}
	frame, err := json.Marshal(Message{
		Type:      TypeFleetUpdate,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("hub: marshaling frame: %v", err)
		return
	}

	select {
	case h.broadcast <- frame:
	case <-h.stopCh:
	default:
	}
}

// wsClient is one connected dashboard socket
type wsClient struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, 64),
	}
}

// readPump drains inbound frames until the peer goes away. Clients have
// no inbound protocol; reading only serves close detection and pongs.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopCh:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes broadcast frames and keepalive pings to the peer
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
