package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telemetry-alarms/internal/eventing"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

type stubPublisher struct {
	keys     []string
	payloads []string
	err      error
}

func (s *stubPublisher) PublishRaw(_ context.Context, payload []byte, key string, _ time.Time) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	s.payloads = append(s.payloads, string(payload))
	return "msg-" + key, nil
}

func TestIngestAcceptsReading(t *testing.T) {
	publisher := &stubPublisher{}
	handler, err := NewIngestHandler(publisher, zerolog.Nop())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	body := `{"deviceId":"device-1","metric":"temperature","value":85,"timestamp":"2026-03-01T08:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["message_id"] != "msg-device-1|temperature" {
		t.Fatalf("unexpected response %v", out)
	}
	if publisher.payloads[0] != body {
		t.Fatalf("expected raw payload to be enqueued unchanged")
	}
}

func TestIngestEnqueuesNonNumericValues(t *testing.T) {
	publisher := &stubPublisher{}
	handler, _ := NewIngestHandler(publisher, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(`{"deviceId":"device-1","type":"humidity","value":"wet"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("non-numeric values are classified downstream, got %d", resp.Code)
	}
	if publisher.keys[0] != "device-1|humidity" {
		t.Fatalf("expected legacy type field as metric, got %q", publisher.keys[0])
	}
}

func TestIngestBatch(t *testing.T) {
	publisher := &stubPublisher{}
	handler, _ := NewIngestHandler(publisher, zerolog.Nop())
	body := `[{"deviceId":"device-1","metric":"temperature","value":1},{"deviceId":"device-2","metric":"humidity","value":2}]`
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if len(publisher.keys) != 2 {
		t.Fatalf("expected 2 enqueued readings, got %d", len(publisher.keys))
	}
}

func TestIngestRejectsMalformed(t *testing.T) {
	handler, _ := NewIngestHandler(&stubPublisher{}, zerolog.Nop())
	for _, body := range []string{`{not json`, `{"deviceId":"d","metric":"m","value":1,"timestamp":"yesterday"}`, `[]`} {
		req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(body))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.Code)
		}
	}
}

func TestIngestQueueUnavailable(t *testing.T) {
	handler, _ := NewIngestHandler(&stubPublisher{err: eventing.ErrQueueClosed}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(`{"deviceId":"d","metric":"m","value":1}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestIngestMethodNotAllowed(t *testing.T) {
	handler, _ := NewIngestHandler(&stubPublisher{}, zerolog.Nop())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/telemetry", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

type stubHistory struct {
	points []telemetry.Point
}

func (s stubHistory) Query(deviceID, metric string) []telemetry.Point {
	return s.points
}

func TestHistoryHandler(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	handler, err := NewHistoryHandler(stubHistory{points: []telemetry.Point{{DeviceID: "device-1", Metric: "temperature", Value: 1, Timestamp: at}}})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/history?deviceId=device-1&metric=temperature", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out struct {
		Points []telemetry.Point `json:"points"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Points) != 1 || !out.Points[0].Timestamp.Equal(at) {
		t.Fatalf("unexpected points %+v", out.Points)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/history?deviceId=device-1", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without metric, got %d", resp.Code)
	}
}
