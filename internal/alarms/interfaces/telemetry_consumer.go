package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
	alarms "telemetry-alarms/internal/alarms/domain"
	"telemetry-alarms/internal/eventing"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

// ConsumerName identifies the alarm pipeline in the processed store.
const ConsumerName = "alarms.telemetry"

// Processor runs readings through the ingest pipeline.
type Processor interface {
	Process(ctx context.Context, reading telemetry.Reading) (alarmapp.Outcome, error)
	Reject(ctx context.Context, reading telemetry.Reading, reason alarmapp.InvalidReason) alarmapp.Outcome
}

// TelemetryConsumer adapts queued wire readings to the ingest pipeline.
type TelemetryConsumer struct {
	pipeline Processor
	logger   zerolog.Logger
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*TelemetryConsumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger zerolog.Logger) ConsumerOption {
	return func(c *TelemetryConsumer) {
		c.logger = logger
	}
}

// NewTelemetryConsumer constructs a consumer.
func NewTelemetryConsumer(pipeline Processor, opts ...ConsumerOption) (*TelemetryConsumer, error) {
	if pipeline == nil {
		return nil, errors.New("telemetry consumer: nil pipeline")
	}
	c := &TelemetryConsumer{pipeline: pipeline, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "telemetry_consumer").Logger()
	return c, nil
}

// Handle processes one envelope. Malformed payloads are recorded as invalid and
// acknowledged, dated at receive time when their own timestamp is unusable. A
// corrupted registry panics so the worker stops instead of breaking the
// one-ticket-per-key rule.
func (c *TelemetryConsumer) Handle(ctx context.Context, env eventing.Envelope) error {
	receivedAt := env.OccurredAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	reading, err := telemetry.DecodeReading(env.Payload, receivedAt)
	reading.MessageID = env.EventID
	if err != nil {
		if reading.Timestamp.IsZero() {
			reading.Timestamp = receivedAt.UTC()
		}
		logger := c.deliveryLogger(ctx)
		logger.Warn().Err(err).Msg("malformed reading acknowledged")
		c.pipeline.Reject(ctx, reading, alarmapp.ReasonMalformed)
		return nil
	}

	_, err = c.pipeline.Process(ctx, reading)
	if errors.Is(err, alarms.ErrRegistryCorrupted) {
		panic(fmt.Sprintf("telemetry consumer: %v", err))
	}
	if err != nil {
		logger := c.deliveryLogger(ctx)
		logger.Warn().Err(err).Str("key", reading.Key()).Msg("process reading failed")
	}
	return err
}

// deliveryLogger tags the logger with the delivery attached by the queue.
func (c *TelemetryConsumer) deliveryLogger(ctx context.Context) zerolog.Logger {
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		return c.logger
	}
	return c.logger.With().
		Str("event_id", env.EventID).
		Str("correlation_id", env.CorrelationID).
		Int("attempt", env.Attempt).
		Logger()
}
