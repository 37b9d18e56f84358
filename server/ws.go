package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Reverse-Call-Center/voice-playbook/session"
)

// wsEvent is one monitoring message: a call lifecycle change.
type wsEvent struct {
	Type string             `json:"type"` // "call_started" or "call_ended"
	Call session.CallStatus `json:"call"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans call lifecycle events out to websocket monitoring clients.
type Hub struct {
	logger     *slog.Logger
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan wsEvent
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsEvent
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan wsEvent, 64),
	}
}

// Run owns the client set. It exits when the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case ev := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- ev:
				default:
					// Slow consumer; cut it loose rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) CallStarted(call *session.Call) {
	h.publish(wsEvent{Type: "call_started", Call: statusOf(call)})
}

func (h *Hub) CallEnded(call *session.Call) {
	h.publish(wsEvent{Type: "call_ended", Call: statusOf(call)})
}

func (h *Hub) publish(ev wsEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("monitor broadcast queue full, dropping event", "type", ev.Type)
	}
}

func statusOf(call *session.Call) session.CallStatus {
	return session.CallStatus{
		ID:       call.Info.ID,
		CallerID: call.Info.CallerID,
		State:    call.State().String(),
		Started:  call.Info.StartTime,
	}
}

// ServeWS upgrades a monitoring connection and streams call events to it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsEvent, 16)}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, nil)
}

// readPump drains inbound frames; monitoring is one-way, reads only exist to
// notice the peer going away.
func (c *wsClient) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
