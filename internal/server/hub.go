// Package server exposes the operator surface: the health endpoint, the
// recent-alert query, and the live alert subscription websocket.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tickwatch/tickwatch/internal/logger"
	"github.com/tickwatch/tickwatch/internal/models"
)

const (
	clientSendBuffer = 16
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// event is the wire envelope pushed to subscribers.
type event struct {
	Event   string       `json:"event"`
	Payload models.Alert `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected subscribers and fans alerts out to them. New
// subscribers only receive alerts fired after they connect. A client
// whose send buffer stays full is dropped rather than allowed to stall
// the broadcast.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan models.Alert
}

// NewHub returns a hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.Alert, 64),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			logger.Debug("Subscriber connected: %s", c.conn.RemoteAddr())
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			logger.Debug("Subscriber disconnected: %s", c.conn.RemoteAddr())
		case alert := <-h.broadcast:
			data, err := json.Marshal(event{Event: "alert", Payload: alert})
			if err != nil {
				logger.Error("Failed to marshal alert event: %v", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					delete(h.clients, c)
					close(c.send)
					logger.Warn("Dropping slow subscriber: %s", c.conn.RemoteAddr())
				}
			}
		}
	}
}

// Broadcast queues an alert for fan-out. Best-effort: if the hub is
// backed up the alert is dropped for live subscribers (it is still
// persisted independently).
func (h *Hub) Broadcast(alert models.Alert) {
	select {
	case h.broadcast <- alert:
	default:
		logger.Warn("Broadcast queue full, dropping alert for %s", alert.Symbol)
	}
}

// ServeWS upgrades an HTTP request to an alert subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.register <- c

	go c.writeLoop()
	go c.readLoop(h)
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards inbound messages; its job is detecting disconnects.
func (c *client) readLoop(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
