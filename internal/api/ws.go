package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
)

// writeWait bounds each WebSocket write.
const writeWait = 5 * time.Second

// clientBuffer is the per-client send queue. A client that falls this far
// behind is dropped; the feed is latest-only status, not a log.
const clientBuffer = 8

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The debug server runs on the rig's private network; the page and the
	// socket are same-origin in practice but tools connect from scripts.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand is a client request on the socket.
type wsCommand struct {
	Command string `json:"command"`
}

// wsReply is the envelope for server-initiated and reply messages that are
// not enhanced payloads.
type wsReply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Hub tracks connected WebSocket clients and broadcasts enhanced payloads
// to them.
type Hub struct {
	manager *DataManager

	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub over manager. Wire manager.OnEnhanced to
// hub.Broadcast.
func NewHub(manager *DataManager) *Hub {
	return &Hub{
		manager: manager,
		clients: make(map[*client]bool),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues payload for every connected client. Clients that cannot
// keep up are disconnected.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeWS upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("ws: upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	monitoring.Logf("ws: client connected (%d total)", count)

	welcome, _ := json.Marshal(wsReply{Type: "welcome", Message: "teleop debug feed connected"})
	select {
	case c.send <- welcome:
	default:
	}

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			break
		}
	}
	c.conn.Close()
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer h.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleCommand(ctx, c, data)
	}
}

func (h *Hub) handleCommand(ctx context.Context, c *client, data []byte) {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.reply(c, wsReply{Type: "error", Message: "invalid command payload"})
		return
	}
	switch cmd.Command {
	case "reset_trajectory":
		if err := h.manager.ResetTrajectory(ctx); err != nil {
			h.reply(c, wsReply{Type: "error", Message: err.Error()})
			return
		}
		h.reply(c, wsReply{Type: "ack", Message: "trajectory reset"})
	case "export_data":
		export, err := h.manager.ExportData(ctx)
		if err != nil {
			h.reply(c, wsReply{Type: "error", Message: err.Error()})
			return
		}
		h.reply(c, wsReply{Type: "export", Payload: export})
	default:
		h.reply(c, wsReply{Type: "error", Message: "unknown command: " + cmd.Command})
	}
}

func (h *Hub) reply(c *client, r wsReply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	c.conn.Close()
	monitoring.Logf("ws: client disconnected (%d total)", count)
}
