package websocket

import (
	"encoding/json"

	"direct-chat/internal/models"
	"direct-chat/pkg/logger"
)

// PresenceTracker turns registry membership changes into userStatus
// broadcasts. It keeps no state of its own.
type PresenceTracker struct {
	registry *Registry
	router   *Router
	log      *logger.Logger
}

func NewPresenceTracker(registry *Registry, router *Router) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		router:   router,
		log:      logger.With("component", "presence"),
	}
}

func (p *PresenceTracker) Joined(userID string) {
	n := p.broadcast(models.NewUserStatusEvent(userID, models.StatusOnline), userID)
	p.log.Info("User %s online, notified %d connections", userID, n)
}

func (p *PresenceTracker) Left(userID string) {
	n := p.broadcast(models.NewUserStatusEvent(userID, models.StatusOffline), "")
	p.log.Info("User %s offline, notified %d connections", userID, n)
}

// broadcast pushes event to every registered connection except exclude's
// and returns how many pushes succeeded. One failing target does not stop
// the rest.
func (p *PresenceTracker) broadcast(event *models.Event, exclude string) int {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Error marshaling presence update: %v", err)
		return 0
	}

	delivered := 0
	for userID, conn := range p.registry.Snapshot() {
		if userID == exclude {
			continue
		}
		if p.router.push(userID, conn, payload) {
			delivered++
		}
	}
	return delivered
}
