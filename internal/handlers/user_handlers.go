package handlers

import (
	"net/http"

	"direct-chat/internal/auth"
	"direct-chat/internal/services"
)

type UserHandlers struct {
	userService *services.UserService
	authService *auth.Service
}

func NewUserHandlers(userService *services.UserService, authService *auth.Service) *UserHandlers {
	return &UserHandlers{
		userService: userService,
		authService: authService,
	}
}

// ListUsers serves GET /api/users: every other user with live presence.
func (h *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, err := getUserFromRequest(h.authService, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	users, err := h.userService.ListKnownUsers(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
