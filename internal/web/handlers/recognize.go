package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// RecognizeHandler handles face recognition requests.
type RecognizeHandler struct {
	system *attend.System
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(system *attend.System) *RecognizeHandler {
	return &RecognizeHandler{system: system}
}

type recognizeResponse struct {
	Faces  []matcher.Result `json:"faces"`
	Logged []string         `json:"logged,omitempty"`
}

// Recognize accepts a photo, matches every detected face against the
// registered embeddings and optionally logs attendance for the matches.
// Pass log=true as a form value to record attendance.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	image, err := readImageFile(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.system.Recognize(r.Context(), image)
	if err != nil {
		if errors.Is(err, attend.ErrEmbeddingsUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "no registered faces yet")
			return
		}
		log.Printf("recognize failed: %v", err)
		respondError(w, http.StatusInternalServerError, "recognition failed")
		return
	}

	resp := recognizeResponse{Faces: results}
	if r.FormValue("log") == "true" {
		source := r.FormValue("source")
		if source == "" {
			source = "api"
		}
		for _, result := range results {
			logged, err := h.system.LogAttendance(r.Context(), result, source)
			if err != nil {
				log.Printf("attendance for %s failed: %v", sanitizeForLog(result.Identity), err)
				continue
			}
			if logged {
				resp.Logged = append(resp.Logged, result.Identity)
			}
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
