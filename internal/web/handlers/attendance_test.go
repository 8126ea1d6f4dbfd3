package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/ledger"
)

func seedRecord(t *testing.T, env *testEnv, identity string, ts time.Time) {
	t.Helper()
	ok, err := env.ledger.InsertUnique(context.Background(), ledger.Record{
		Identity:   identity,
		Timestamp:  ts,
		Source:     "camera-1",
		SessionKey: ts.UTC().Format("20060102"),
	})
	if err != nil || !ok {
		t.Fatalf("seed record for %s: ok=%v err=%v", identity, ok, err)
	}
}

func TestAttendanceLog(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	handler := NewAttendanceHandler(env.system)

	post := func(body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		var resp map[string]any
		rec := doRequest(t, handler.Log, req, &resp)
		return rec, resp
	}

	rec, resp := post(`{"user_id": "Alice", "source": "kiosk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if resp["user_id"] != "alice" {
		t.Errorf("user_id = %v, want alice", resp["user_id"])
	}
	if resp["logged"] != true {
		t.Error("first attempt not logged")
	}

	// second attempt within the cooldown window is suppressed, not an error
	rec, resp = post(`{"user_id": "alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp["logged"] != false {
		t.Error("duplicate within cooldown was logged")
	}
}

func TestAttendanceLogBadRequests(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	handler := NewAttendanceHandler(env.system)

	for name, body := range map[string]string{
		"invalid json":    `{user_id}`,
		"missing user_id": `{"source": "kiosk"}`,
		"blank user_id":   `{"user_id": "---"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", strings.NewReader(body))
			rec := doRequest(t, handler.Log, req, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAttendanceQuery(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	handler := NewAttendanceHandler(env.system)

	seedRecord(t, env, "alice", time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))
	seedRecord(t, env, "bob", time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC))
	seedRecord(t, env, "alice", time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC))

	get := func(query string) (*httptest.ResponseRecorder, struct {
		Records []ledger.Record `json:"records"`
		Count   int             `json:"count"`
	}) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance"+query, nil)
		var resp struct {
			Records []ledger.Record `json:"records"`
			Count   int             `json:"count"`
		}
		rec := doRequest(t, handler.Query, req, &resp)
		return rec, resp
	}

	rec, resp := get("")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Count != 3 {
		t.Errorf("count = %d, want 3", resp.Count)
	}
	for i := 1; i < len(resp.Records); i++ {
		if resp.Records[i].Timestamp.Before(resp.Records[i-1].Timestamp) {
			t.Error("records not ordered by timestamp")
		}
	}

	rec, resp = get("?user_id=alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Count != 2 {
		t.Errorf("alice count = %d, want 2", resp.Count)
	}

	rec, resp = get("?from=2026-03-06&to=2026-03-07")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Count != 1 || resp.Records[0].Identity != "alice" {
		t.Errorf("date filter: count=%d records=%+v", resp.Count, resp.Records)
	}
}

func TestAttendanceQueryInvalidDates(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	handler := NewAttendanceHandler(env.system)

	for _, query := range []string{"?from=yesterday", "?to=03/05/2026"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance"+query, nil)
		rec := doRequest(t, handler.Query, req, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %s: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestAttendanceExport(t *testing.T) {
	env := newTestEnv(t, &extractor.Mock{})
	handler := NewAttendanceHandler(env.system)

	seedRecord(t, env, "alice", time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))
	seedRecord(t, env, "bob", time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/export", nil)
	rec := httptest.NewRecorder()
	handler.Export(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), rec.Body.String())
	}
	if lines[0] != "user_id,timestamp,source,session_id" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "alice,2026-03-05T10:00:00Z") {
		t.Errorf("unexpected first row: %q", lines[1])
	}
}
