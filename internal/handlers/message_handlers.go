package handlers

import (
	"net/http"

	"direct-chat/internal/auth"
	"direct-chat/internal/models"
	"direct-chat/internal/services"
)

type MessageHandlers struct {
	messageService *services.MessageService
	authService    *auth.Service
}

func NewMessageHandlers(messageService *services.MessageService, authService *auth.Service) *MessageHandlers {
	return &MessageHandlers{
		messageService: messageService,
		authService:    authService,
	}
}

// History serves GET /api/messages/{userId}.
func (h *MessageHandlers) History(w http.ResponseWriter, r *http.Request) {
	user, err := getUserFromRequest(h.authService, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	messages, err := h.messageService.History(r.Context(), user.ID, r.PathValue("userId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send serves POST /api/messages.
func (h *MessageHandlers) Send(w http.ResponseWriter, r *http.Request) {
	user, err := getUserFromRequest(h.authService, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	msg, err := h.messageService.Send(r.Context(), user.ID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead serves PUT /api/messages/read/{senderId}.
func (h *MessageHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, err := getUserFromRequest(h.authService, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	updated, err := h.messageService.MarkRead(r.Context(), user.ID, r.PathValue("senderId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MarkReadResponse{Message: "Messages marked as read", Updated: updated})
}

// Delete serves DELETE /api/messages/{messageId}.
func (h *MessageHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := getUserFromRequest(h.authService, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.messageService.Delete(r.Context(), user.ID, r.PathValue("messageId")); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Message deleted"})
}

func getUserFromRequest(authService *auth.Service, r *http.Request) (*models.User, error) {
	return authService.GetUserFromToken(r.Context(), auth.TokenFromRequest(r))
}
