package websocket

import "direct-chat/internal/models"

// TypingRelay forwards typing indicators. Nothing is stored; an offline
// recipient simply misses the signal.
type TypingRelay struct {
	router *Router
}

func NewTypingRelay(router *Router) *TypingRelay {
	return &TypingRelay{router: router}
}

func (t *TypingRelay) Relay(senderID, recipientID string, isTyping bool) {
	if recipientID == "" || recipientID == senderID {
		return
	}
	t.router.Deliver(recipientID, &models.Event{
		Type: models.EventUserTyping,
		Data: models.UserTypingPayload{UserID: senderID, IsTyping: isTyping},
	})
}
