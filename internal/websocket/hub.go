package websocket

import (
	"context"
	"sync"
	"time"

	"direct-chat/internal/config"
	"direct-chat/internal/models"
	"direct-chat/pkg/logger"
)

// Authenticator verifies the credential sent in the authenticate handshake.
type Authenticator interface {
	GetUserFromToken(ctx context.Context, token string) (*models.User, error)
}

// MessageSender persists and routes the message events a socket may send.
type MessageSender interface {
	Send(ctx context.Context, senderID string, req *models.SendMessageRequest) (*models.Message, error)
	MarkRead(ctx context.Context, readerID, senderID string) (int64, error)
}

// LastSeenRecorder stores when a user's live connection went away.
type LastSeenRecorder interface {
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Hub owns every accepted socket and the components they share: the
// registry, the router, presence and typing. It lives from server start
// until Shutdown.
type Hub struct {
	Registry *Registry
	Router   *Router
	Presence *PresenceTracker
	Typing   *TypingRelay

	auth     Authenticator
	messages MessageSender
	lastSeen LastSeenRecorder
	cfg      config.WebSocketConfig

	mu       sync.Mutex
	clients  map[*Client]bool
	shutdown bool
}

func NewHub(registry *Registry, router *Router, auth Authenticator, messages MessageSender, lastSeen LastSeenRecorder, cfg config.WebSocketConfig) *Hub {
	presence := NewPresenceTracker(registry, router)
	registry.Observe(presence)

	h := &Hub{
		Registry: registry,
		Router:   router,
		Presence: presence,
		Typing:   NewTypingRelay(router),
		auth:     auth,
		messages: messages,
		lastSeen: lastSeen,
		cfg:      cfg,
		clients:  make(map[*Client]bool),
	}
	registry.Observe(h)
	return h
}

// Joined is part of MembershipObserver; presence handles announcements.
func (h *Hub) Joined(userID string) {}

// Left records last seen for every removed entry, whether the read loop
// ended or the router evicted a failing connection.
func (h *Hub) Left(userID string) {
	h.recordLastSeen(userID)
}

func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.clients[c] = true
	return true
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount counts accepted sockets, authenticated or not.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown empties the registry and closes every socket, including ones
// that never authenticated.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.shutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.Registry.Close()
	for _, c := range clients {
		c.Close()
	}
	logger.Info("WebSocket hub shut down, closed %d connections", len(clients))
}

func (h *Hub) recordLastSeen(userID string) {
	if h.lastSeen == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := h.lastSeen.UpdateLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		logger.Error("Error updating last seen for %s: %v", userID, err)
	}
}
