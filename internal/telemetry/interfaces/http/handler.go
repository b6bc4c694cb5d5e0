package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"telemetry-alarms/internal/eventing"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

const maxIngestBody = 1 << 20

// RawPublisher enqueues an encoded reading.
type RawPublisher interface {
	PublishRaw(ctx context.Context, payload []byte, key string, receivedAt time.Time) (string, error)
}

// HistoryReader returns recent points of a series.
type HistoryReader interface {
	Query(deviceID, metric string) []telemetry.Point
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// IngestHandler accepts wire readings and enqueues them for processing.
type IngestHandler struct {
	publisher RawPublisher
	clock     Clock
	logger    zerolog.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(publisher RawPublisher, logger zerolog.Logger) (*IngestHandler, error) {
	if publisher == nil {
		return nil, errors.New("telemetry ingest: nil publisher")
	}
	return &IngestHandler{
		publisher: publisher,
		clock:     systemClock{},
		logger:    logger.With().Str("component", "telemetry_ingest").Logger(),
	}, nil
}

// ServeHTTP handles POST /api/telemetry with one reading or an array of readings.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		h.logger.Warn().Err(err).Msg("read body error")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	receivedAt := h.clock.Now().UTC()
	body = bytes.TrimSpace(body)
	batch := len(body) > 0 && body[0] == '['

	var payloads []json.RawMessage
	if batch {
		if err := json.Unmarshal(body, &payloads); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	} else {
		payloads = []json.RawMessage{body}
	}
	if len(payloads) == 0 {
		http.Error(w, "no readings", http.StatusBadRequest)
		return
	}

	keys := make([]string, len(payloads))
	for i, payload := range payloads {
		reading, err := telemetry.DecodeReading(payload, receivedAt)
		if err != nil {
			http.Error(w, "invalid reading: "+err.Error(), http.StatusBadRequest)
			return
		}
		keys[i] = reading.Key()
	}

	ctx := r.Context()
	if id := r.Header.Get("X-Request-ID"); id != "" {
		ctx = eventing.WithCorrelationID(ctx, id)
	}
	ids := make([]string, 0, len(payloads))
	for i, payload := range payloads {
		id, err := h.publisher.PublishRaw(ctx, payload, keys[i], receivedAt)
		if err != nil {
			h.logger.Error().Err(err).Str("key", keys[i]).Msg("enqueue failed")
			http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
			return
		}
		ids = append(ids, id)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if batch {
		_ = json.NewEncoder(w).Encode(map[string]any{"message_ids": ids})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"message_id": ids[0]})
}

// HistoryHandler serves GET /api/history?deviceId=&metric=.
type HistoryHandler struct {
	history HistoryReader
}

// NewHistoryHandler constructs a history handler.
func NewHistoryHandler(history HistoryReader) (*HistoryHandler, error) {
	if history == nil {
		return nil, errors.New("telemetry history: nil reader")
	}
	return &HistoryHandler{history: history}, nil
}

// ServeHTTP returns the in-window points of a series in ascending order.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	deviceID := query.Get("deviceId")
	if deviceID == "" {
		deviceID = query.Get("device_id")
	}
	metric := query.Get("metric")
	if deviceID == "" || metric == "" {
		http.Error(w, "deviceId and metric are required", http.StatusBadRequest)
		return
	}
	points := h.history.Query(deviceID, metric)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"deviceId": deviceID,
		"metric":   metric,
		"points":   points,
	})
}
