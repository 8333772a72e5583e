package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"direct-chat/internal/auth"
	"direct-chat/internal/database"
	"direct-chat/internal/services"
	"direct-chat/pkg/logger"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// writeServiceError maps service and storage errors onto status codes.
// Storage failures are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, database.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidMessage), errors.Is(err, auth.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
