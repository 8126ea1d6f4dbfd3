package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)

	var resp map[string]string
	rec := doRequest(t, HealthCheck, req, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want ok", resp["status"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\nFAKE LOG LINE\r"); got != "aliceFAKE LOG LINE" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}
