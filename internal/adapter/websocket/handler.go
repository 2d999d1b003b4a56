package websocket

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 64 * 1024

// Handler upgrades GET /ws and pumps each received frame into the relay.
type Handler struct {
	hub      *Hub
	relay    *Relay
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, relay *Relay, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		hub:   hub,
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.New()
	if err := h.hub.Register(id, conn); err != nil {
		slog.Warn("Relay registration failed", "client_id", id, "error", err)
		return
	}
	defer h.hub.Unregister(id)

	conn.SetReadLimit(maxMessageSize)
	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Relay read failed", "client_id", id, "error", err)
			}
			return
		}
		h.relay.Publish(ctx, Message{Type: msgType, Data: data})
	}
}
