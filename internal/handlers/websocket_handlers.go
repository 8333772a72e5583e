package handlers

import (
	"net/http"

	ws "direct-chat/internal/websocket"
	"direct-chat/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandlers accepts sockets from allowedOrigin, or from any
// origin when it is "*".
func NewWebSocketHandlers(hub *ws.Hub, allowedOrigin string) *WebSocketHandlers {
	return &WebSocketHandlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleWebSocket upgrades the request. The socket identifies its user
// later, through the authenticate event.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	ws.NewClient(h.hub, conn).Serve()
}
