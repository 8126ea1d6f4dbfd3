package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/extractor"
)

// RegisterHandler handles face enrollment requests.
type RegisterHandler struct {
	system *attend.System
}

// NewRegisterHandler creates a new register handler.
func NewRegisterHandler(system *attend.System) *RegisterHandler {
	return &RegisterHandler{system: system}
}

// Register enrolls a new face photo under the user_id form value.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	image, err := readImageFile(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	identity, key, err := h.system.Enroll(r.Context(), userID, image)
	if err != nil {
		switch {
		case errors.Is(err, attend.ErrInvalidIdentity):
			respondError(w, http.StatusBadRequest, "user_id must contain letters or digits")
		case errors.Is(err, extractor.ErrNoFace):
			respondError(w, http.StatusUnprocessableEntity, "no face found in the photo")
		default:
			log.Printf("enroll %s failed: %v", sanitizeForLog(userID), err)
			respondError(w, http.StatusInternalServerError, "enrollment failed")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"user_id": identity,
		"photo":   key,
	})
}
