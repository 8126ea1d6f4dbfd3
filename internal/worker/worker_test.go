package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/assets"
	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

func newTestWorker(t *testing.T, ext extractor.Client, cfg config.MQTTConfig) (*Worker, *registry.MemoryStore) {
	t.Helper()
	regStore := registry.NewMemoryStore()
	led := ledger.New(ledger.NewMemoryStore(), ledger.CooldownPolicy{Window: time.Hour})
	system := attend.New(registry.New(regStore, 3), led, ext, assets.NewMemoryStore(), 0.5)
	return New(system, cfg), regStore
}

func frame(t *testing.T, requestID, source string) []byte {
	t.Helper()
	data, err := json.Marshal(FrameRequest{
		RequestID: requestID,
		Payload:   base64.StdEncoding.EncodeToString([]byte("img")),
		Source:    source,
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func TestHandleFrame(t *testing.T) {
	ext := &extractor.Mock{Faces: []extractor.Face{{Embedding: []float32{1, 0, 0}}}}
	w, regStore := newTestWorker(t, ext, config.MQTTConfig{ResultTopic: "attendance/results"})
	regStore.Seed(map[string][]float32{"alice": {1, 0, 0}})

	data, topic := w.HandleFrame(context.Background(), frame(t, "req-1", "camera-1"))
	if topic != "attendance/results/req-1" {
		t.Errorf("topic = %q, want attendance/results/req-1", topic)
	}

	var resp FrameResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("request_id = %q, want req-1", resp.RequestID)
	}
	if len(resp.Faces) != 1 || resp.Faces[0].Identity != "alice" {
		t.Errorf("unexpected faces: %+v", resp.Faces)
	}
	if resp.Error != "" {
		t.Errorf("unexpected error: %q", resp.Error)
	}
	if len(resp.Logged) != 0 {
		t.Errorf("attendance logged without LogResults: %v", resp.Logged)
	}
}

func TestHandleFrameLogsAttendance(t *testing.T) {
	ext := &extractor.Mock{Faces: []extractor.Face{{Embedding: []float32{1, 0, 0}}}}
	w, regStore := newTestWorker(t, ext, config.MQTTConfig{ResultTopic: "r", LogResults: true})
	regStore.Seed(map[string][]float32{"alice": {1, 0, 0}})

	data, _ := w.HandleFrame(context.Background(), frame(t, "req-1", "camera-1"))
	var resp FrameResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Logged) != 1 || resp.Logged[0] != "alice" {
		t.Errorf("logged = %v, want [alice]", resp.Logged)
	}

	// same identity within the cooldown window is suppressed
	data, _ = w.HandleFrame(context.Background(), frame(t, "req-2", "camera-1"))
	resp = FrameResponse{}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Logged) != 0 {
		t.Errorf("duplicate logged: %v", resp.Logged)
	}
}

func TestHandleFrameErrors(t *testing.T) {
	w, regStore := newTestWorker(t, &extractor.Mock{}, config.MQTTConfig{ResultTopic: "r"})
	regStore.Seed(map[string][]float32{"alice": {1, 0, 0}})

	t.Run("unparseable frame dropped", func(t *testing.T) {
		data, topic := w.HandleFrame(context.Background(), []byte("not json"))
		if data != nil || topic != "" {
			t.Errorf("expected dropped frame, got data=%q topic=%q", data, topic)
		}
	})

	t.Run("invalid base64 reported", func(t *testing.T) {
		payload, _ := json.Marshal(FrameRequest{RequestID: "req-3", Payload: "%%%"})
		data, _ := w.HandleFrame(context.Background(), payload)
		var resp FrameResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Error == "" {
			t.Error("expected error in response")
		}
	})

	t.Run("empty registry reported", func(t *testing.T) {
		w, _ := newTestWorker(t, &extractor.Mock{}, config.MQTTConfig{ResultTopic: "r"})
		data, _ := w.HandleFrame(context.Background(), frame(t, "req-4", ""))
		var resp FrameResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Error == "" {
			t.Error("expected error for empty registry")
		}
	})
}
