package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize limits uploaded images to 10 MB.
const maxUploadSize = 10 << 20

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// readImageFile reads the "image" part of a multipart form and rejects
// anything that does not look like a JPEG or PNG upload.
func readImageFile(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, errBadUpload("failed to parse multipart form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, errBadUpload("image file is required")
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg", ".png":
	default:
		return nil, errBadUpload("only jpg, jpeg and png files are accepted")
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		return nil, errBadUpload("failed to read image")
	}
	if len(data) == 0 {
		return nil, errBadUpload("image file is empty")
	}
	return data, nil
}

type errBadUpload string

func (e errBadUpload) Error() string { return string(e) }

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
