package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

func TestRecognize(t *testing.T) {
	ext := &extractor.Mock{Faces: []extractor.Face{
		{Embedding: []float32{1, 0, 0}, BBox: []float64{0, 0, 10, 10}},
		{Embedding: []float32{9, 9, 9}},
	}}
	env := newTestEnv(t, ext)
	env.registry.Seed(map[string][]float32{"alice": {1, 0, 0}})
	handler := NewRecognizeHandler(env.system)

	body, contentType := multipartImage(t, "frame.jpg", []byte("img"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	var resp recognizeResponse
	rec := doRequest(t, handler.Recognize, req, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(resp.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(resp.Faces))
	}
	if resp.Faces[0].Identity != "alice" {
		t.Errorf("first face = %q, want alice", resp.Faces[0].Identity)
	}
	if resp.Faces[1].Identity != matcher.Unknown {
		t.Errorf("second face = %q, want %q", resp.Faces[1].Identity, matcher.Unknown)
	}
	if len(resp.Logged) != 0 {
		t.Errorf("attendance logged without log=true: %v", resp.Logged)
	}
}

func TestRecognizeLogsAttendance(t *testing.T) {
	ext := &extractor.Mock{Faces: []extractor.Face{
		{Embedding: []float32{1, 0, 0}},
		{Embedding: []float32{9, 9, 9}},
	}}
	env := newTestEnv(t, ext)
	env.registry.Seed(map[string][]float32{"alice": {1, 0, 0}})
	handler := NewRecognizeHandler(env.system)

	body, contentType := multipartImage(t, "frame.jpg", []byte("img"),
		map[string]string{"log": "true", "source": "camera-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	var resp recognizeResponse
	rec := doRequest(t, handler.Recognize, req, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	// only the known face is logged, the unknown one is dropped
	if len(resp.Logged) != 1 || resp.Logged[0] != "alice" {
		t.Errorf("logged = %v, want [alice]", resp.Logged)
	}
}

func TestRecognizeNoRegisteredFaces(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	handler := NewRecognizeHandler(env.system)

	body, contentType := multipartImage(t, "frame.jpg", []byte("img"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, handler.Recognize, req, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRecognizeRejectsBadUploads(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	env.registry.Seed(map[string][]float32{"alice": {1, 0, 0}})
	handler := NewRecognizeHandler(env.system)

	t.Run("wrong extension", func(t *testing.T) {
		body, contentType := multipartImage(t, "frame.gif", []byte("img"), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
		req.Header.Set("Content-Type", contentType)

		rec := doRequest(t, handler.Recognize, req, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", nil)

		rec := doRequest(t, handler.Recognize, req, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		body, contentType := multipartImage(t, "frame.jpg", nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
		req.Header.Set("Content-Type", contentType)

		rec := doRequest(t, handler.Recognize, req, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}
