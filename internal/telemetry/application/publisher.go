package application

import (
	"context"
	"errors"
	"time"

	"telemetry-alarms/internal/eventing"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

// EventTypeReading is the envelope type of a wire reading.
const EventTypeReading = "telemetry.reading"

// EnvelopePublisher enqueues envelopes.
type EnvelopePublisher interface {
	Publish(ctx context.Context, env eventing.Envelope) error
}

// ReadingPublisher puts readings on the queue keyed by device metric.
type ReadingPublisher struct {
	queue EnvelopePublisher
}

// NewReadingPublisher constructs a publisher.
func NewReadingPublisher(queue EnvelopePublisher) (*ReadingPublisher, error) {
	if queue == nil {
		return nil, errors.New("reading publisher: nil queue")
	}
	return &ReadingPublisher{queue: queue}, nil
}

// PublishRaw enqueues an already encoded wire reading and returns its message id.
// The payload is kept as received so the consumer records exactly what arrived.
func (p *ReadingPublisher) PublishRaw(ctx context.Context, payload []byte, key string, receivedAt time.Time) (string, error) {
	meta := eventing.MetaFromContext(ctx)
	meta.OccurredAt = receivedAt
	env, err := eventing.BuildEnvelope(EventTypeReading, key, payload, meta)
	if err != nil {
		return "", err
	}
	if err := p.queue.Publish(ctx, env); err != nil {
		return "", err
	}
	return env.EventID, nil
}

// Publish encodes and enqueues a reading.
func (p *ReadingPublisher) Publish(ctx context.Context, reading telemetry.Reading) (string, error) {
	payload, err := telemetry.EncodeReading(reading)
	if err != nil {
		return "", err
	}
	receivedAt := reading.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return p.PublishRaw(ctx, payload, reading.Key(), receivedAt)
}
