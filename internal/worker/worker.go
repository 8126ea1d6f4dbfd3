// Package worker runs an MQTT edge worker that recognizes faces in camera
// frames published by kiosks and answers on a per-request response topic.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// FrameRequest is one camera frame published on the frame topic. The image
// is base64 encoded JPEG or PNG data.
type FrameRequest struct {
	RequestID string `json:"request_id"`
	Payload   string `json:"payload"`
	Source    string `json:"source"`
}

// FrameResponse is published on <result topic>/<request id>.
type FrameResponse struct {
	RequestID string           `json:"request_id"`
	Faces     []matcher.Result `json:"faces"`
	Logged    []string         `json:"logged,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Worker consumes frames from an MQTT broker and recognizes them.
type Worker struct {
	system *attend.System
	cfg    config.MQTTConfig
	client mqtt.Client
}

// New creates a worker. Connect is deferred to Run.
func New(system *attend.System, cfg config.MQTTConfig) *Worker {
	return &Worker{system: system, cfg: cfg}
}

// HandleFrame processes one raw frame payload and returns the response
// payload to publish. It never returns an empty payload: recognition
// failures are reported inside the response.
func (w *Worker) HandleFrame(ctx context.Context, payload []byte) ([]byte, string) {
	var req FrameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("[worker] dropping unparseable frame: %v", err)
		return nil, ""
	}

	resp := FrameResponse{RequestID: req.RequestID}
	image, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		resp.Error = "invalid base64 payload"
	} else {
		results, err := w.system.Recognize(ctx, image)
		if err != nil {
			log.Printf("[worker] %s recognize failed: %v", req.RequestID, err)
			resp.Error = err.Error()
		} else {
			resp.Faces = results
			if w.cfg.LogResults {
				resp.Logged = w.logResults(ctx, results, req.Source)
			}
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[worker] %s marshal response failed: %v", req.RequestID, err)
		return nil, ""
	}
	topic := w.cfg.ResultTopic + "/" + req.RequestID
	return data, topic
}

func (w *Worker) logResults(ctx context.Context, results []matcher.Result, source string) []string {
	if source == "" {
		source = "mqtt"
	}
	var logged []string
	for _, result := range results {
		ok, err := w.system.LogAttendance(ctx, result, source)
		if err != nil {
			log.Printf("[worker] attendance for %s failed: %v", result.Identity, err)
			continue
		}
		if ok {
			logged = append(logged, result.Identity)
		}
	}
	return logged
}

// Run connects to the broker, subscribes to the frame topic and blocks
// until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(w.cfg.Broker).
		SetClientID(w.cfg.ClientID).
		SetConnectTimeout(30 * time.Second).
		SetAutoReconnect(true)

	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("[worker] connected to %s", w.cfg.Broker)
		token := c.Subscribe(w.cfg.FrameTopic, 0, func(c mqtt.Client, m mqtt.Message) {
			go func() {
				data, topic := w.HandleFrame(ctx, m.Payload())
				if data == nil {
					return
				}
				c.Publish(topic, 0, false, data).Wait()
			}()
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("[worker] subscribe failed: %v", token.Error())
		}
	}

	w.client = mqtt.NewClient(opts)
	if token := w.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to MQTT broker %s: %w", w.cfg.Broker, token.Error())
	}

	<-ctx.Done()
	w.client.Disconnect(250)
	log.Println("[worker] disconnected")
	return nil
}
