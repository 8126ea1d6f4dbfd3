package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/assets"
	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

// testEnv bundles a system with its in-memory backends so tests can seed
// and inspect them directly.
type testEnv struct {
	system   *attend.System
	registry *registry.MemoryStore
	assets   *assets.MemoryStore
	ledger   *ledger.MemoryStore
}

func newTestEnv(t *testing.T, ext extractor.Client) *testEnv {
	t.Helper()
	regStore := registry.NewMemoryStore()
	assetStore := assets.NewMemoryStore()
	ledgerStore := ledger.NewMemoryStore()
	led := ledger.New(ledgerStore, ledger.CooldownPolicy{Window: time.Hour})
	return &testEnv{
		system:   attend.New(registry.New(regStore, 3), led, ext, assetStore, 0.5),
		registry: regStore,
		assets:   assetStore,
		ledger:   ledgerStore,
	}
}

// multipartImage builds a multipart request body with an image part and
// extra form fields.
func multipartImage(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// doRequest runs a handler and decodes the JSON response into out.
func doRequest(t *testing.T, handler http.HandlerFunc, req *http.Request, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}
