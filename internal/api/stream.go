package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamSendBuffer = 32
)

// StreamMessage is the envelope for pushed events.
type StreamMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// StreamHandler pushes subsystem events to websocket clients. Slow
// clients are disconnected rather than allowed to stall the fan-out.
type StreamHandler struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewStreamHandler() *StreamHandler {
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local control surface, same-origin enforcement is not useful here
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     slog.With("component", "stream"),
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// HandleStream upgrades the connection and streams events until the
// client disconnects.
// GET /api/stream
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, streamSendBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("Stream client connected", "clients", n)

	go h.writeLoop(conn, send)
	h.readLoop(conn)
}

// readLoop discards inbound frames; it exists to notice a disconnect.
func (h *StreamHandler) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, send chan []byte) {
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

// Broadcast sends one event to all connected clients.
func (h *StreamHandler) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(StreamMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.log.Error("Failed to marshal stream message", "type", msgType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			h.log.Warn("Dropping slow stream client")
			delete(h.clients, conn)
			close(send)
		}
	}
}

// Close disconnects all clients.
func (h *StreamHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		delete(h.clients, conn)
		close(send)
	}
}

func (h *StreamHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	conn.Close()
}
