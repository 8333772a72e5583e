package websocket

import (
	"encoding/json"

	"direct-chat/internal/models"
	"direct-chat/pkg/logger"
)

// Router pushes events to a user's live connection, if it has one.
// It never queues or retries; durable fallback is the caller's concern.
type Router struct {
	registry *Registry
	log      *logger.Logger
}

func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		log:      logger.With("component", "router"),
	}
}

func (r *Router) Deliver(userID string, event *models.Event) models.DeliveryStatus {
	conn, ok := r.registry.Lookup(userID)
	if !ok {
		return models.NotLive
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error("Error marshaling %s event: %v", event.Type, err)
		return models.NotLive
	}

	if !r.push(userID, conn, payload) {
		return models.NotLive
	}
	return models.Delivered
}

// push writes payload to conn. A failed write is handled like an
// unexpected disconnect: the entry is dropped and the connection closed.
func (r *Router) push(userID string, conn Conn, payload []byte) bool {
	if err := conn.Send(payload); err != nil {
		r.log.Debug("Dropping connection %s of user %s: %v", conn.ID(), userID, err)
		r.registry.Unregister(userID, conn)
		conn.Close()
		return false
	}
	return true
}
