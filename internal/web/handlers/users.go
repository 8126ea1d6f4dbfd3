package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attend"
)

// UsersHandler serves registered identities.
type UsersHandler struct {
	system *attend.System
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(system *attend.System) *UsersHandler {
	return &UsersHandler{system: system}
}

// List returns every registered identity with its photo count.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.system.ListUsers(r.Context())
	if err != nil {
		log.Printf("list users failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// LastEvent returns the most recent attendance record for a user.
func (h *UsersHandler) LastEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "user id is required")
		return
	}

	rec, err := h.system.LastEvent(r.Context(), id)
	if err != nil {
		log.Printf("last event for %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to query attendance")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "no attendance recorded for user")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
