package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// AttendanceHandler serves the attendance ledger.
type AttendanceHandler struct {
	system *attend.System
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(system *attend.System) *AttendanceHandler {
	return &AttendanceHandler{system: system}
}

type logRequest struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
}

// Log records a manual attendance event for a user.
func (h *AttendanceHandler) Log(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	identity := attend.NormalizeIdentity(req.UserID)
	if identity == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	source := req.Source
	if source == "" {
		source = "manual"
	}

	logged, err := h.system.LogAttendance(r.Context(), matcher.Result{Identity: identity}, source)
	if err != nil {
		if errors.Is(err, ledger.ErrOutsideSchedule) {
			respondError(w, http.StatusForbidden, "attendance outside scheduled hours")
			return
		}
		log.Printf("attendance for %s failed: %v", sanitizeForLog(identity), err)
		respondError(w, http.StatusInternalServerError, "failed to log attendance")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": identity,
		"logged":  logged,
	})
}

// parseFilter extracts an attendance filter from query parameters. The
// from and to values accept RFC 3339 timestamps or plain 2006-01-02 dates.
func parseFilter(r *http.Request) (ledger.Filter, error) {
	var f ledger.Filter
	f.Identity = attend.NormalizeIdentity(r.URL.Query().Get("user_id"))

	parse := func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", s)
	}

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := parse(s)
		if err != nil {
			return f, errors.New("invalid from timestamp")
		}
		f.Start = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := parse(s)
		if err != nil {
			return f, errors.New("invalid to timestamp")
		}
		f.End = t
	}
	return f, nil
}

// Query returns attendance records matching the user_id, from and to
// query parameters, ordered by timestamp.
func (h *AttendanceHandler) Query(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	seq, err := h.system.QueryAttendance(r.Context(), filter)
	if err != nil {
		log.Printf("attendance query failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query attendance")
		return
	}

	records := []ledger.Record{}
	for rec := range seq {
		records = append(records, rec)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// Export streams matching attendance records as a CSV download.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	seq, err := h.system.QueryAttendance(r.Context(), filter)
	if err != nil {
		log.Printf("attendance export failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query attendance")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		"attachment; filename=attendance-"+time.Now().UTC().Format("20060102")+".csv")

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"user_id", "timestamp", "source", "session_id"})
	count := 0
	for rec := range seq {
		_ = cw.Write([]string{
			rec.Identity,
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Source,
			rec.SessionKey,
		})
		count++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("attendance export aborted after %d records: %v", count, err)
	}
}
