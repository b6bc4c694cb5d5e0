package eventing

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope wraps a queued payload with delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Key           string          `json:"key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Attempt       int             `json:"attempt"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
}

// BuildEnvelope constructs an envelope for payload. The key selects the shard,
// so every message with the same key is handled in order by one worker.
func BuildEnvelope(eventType, key string, payload []byte, meta Meta) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, errors.New("eventing: empty event type")
	}
	if len(payload) == 0 {
		return Envelope{}, errors.New("eventing: empty payload")
	}

	eventID := meta.EventID
	if eventID == "" {
		eventID = NewEventID()
	}
	correlationID := meta.CorrelationID
	if correlationID == "" {
		correlationID = eventID
	}
	occurredAt := meta.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		Key:           key,
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlationID,
		Payload:       append(json.RawMessage(nil), payload...),
	}, nil
}
