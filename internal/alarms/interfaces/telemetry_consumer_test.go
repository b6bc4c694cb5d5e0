package interfaces

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
	alarms "telemetry-alarms/internal/alarms/domain"
	"telemetry-alarms/internal/eventing"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

type stubProcessor struct {
	processed []telemetry.Reading
	rejected  []alarmapp.InvalidReason
	dropped   []telemetry.Reading
	err       error
}

func (s *stubProcessor) Process(_ context.Context, reading telemetry.Reading) (alarmapp.Outcome, error) {
	s.processed = append(s.processed, reading)
	return alarmapp.Outcome{}, s.err
}

func (s *stubProcessor) Reject(_ context.Context, reading telemetry.Reading, reason alarmapp.InvalidReason) alarmapp.Outcome {
	s.rejected = append(s.rejected, reason)
	s.dropped = append(s.dropped, reading)
	return alarmapp.Outcome{Kind: alarmapp.OutcomeInvalid, Reason: reason, Reading: reading}
}

func envelope(t *testing.T, payload string) eventing.Envelope {
	t.Helper()
	env, err := eventing.BuildEnvelope("telemetry.reading", "k", []byte(payload), eventing.Meta{
		OccurredAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestConsumerProcessesReading(t *testing.T) {
	processor := &stubProcessor{}
	consumer, err := NewTelemetryConsumer(processor)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	env := envelope(t, `{"deviceId":"device-1","metric":"temperature","value":85}`)
	if err := consumer.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(processor.processed) != 1 {
		t.Fatalf("expected one processed reading")
	}
	got := processor.processed[0]
	if got.MessageID != env.EventID || !got.Timestamp.Equal(env.OccurredAt) {
		t.Fatalf("expected message id and receive time, got %+v", got)
	}
}

func TestConsumerRejectsMalformed(t *testing.T) {
	processor := &stubProcessor{}
	consumer, _ := NewTelemetryConsumer(processor)
	if err := consumer.Handle(context.Background(), envelope(t, `{"deviceId":`)); err != nil {
		t.Fatalf("malformed payload must be acknowledged, got %v", err)
	}
	if len(processor.processed) != 0 || len(processor.rejected) != 1 || processor.rejected[0] != alarmapp.ReasonMalformed {
		t.Fatalf("expected malformed rejection, got processed=%d rejected=%v", len(processor.processed), processor.rejected)
	}
}

func TestConsumerPanicsOnCorruption(t *testing.T) {
	processor := &stubProcessor{err: fmt.Errorf("%w: index mismatch", alarms.ErrRegistryCorrupted)}
	consumer, _ := NewTelemetryConsumer(processor)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on registry corruption")
		}
	}()
	_ = consumer.Handle(context.Background(), envelope(t, `{"deviceId":"d","metric":"m","value":1}`))
}

func TestConsumerReturnsOtherErrors(t *testing.T) {
	processor := &stubProcessor{err: errors.New("transient")}
	consumer, _ := NewTelemetryConsumer(processor)
	if err := consumer.Handle(context.Background(), envelope(t, `{"deviceId":"d","metric":"m","value":1}`)); err == nil {
		t.Fatalf("expected error to be returned for redelivery")
	}
}

func TestConsumerDatesUnparseableTimestampAtReceipt(t *testing.T) {
	processor := &stubProcessor{}
	consumer, _ := NewTelemetryConsumer(processor)
	env := envelope(t, `{"deviceId":"device-1","metric":"temperature","value":85,"timestamp":"yesterday"}`)
	if err := consumer.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(processor.dropped) != 1 {
		t.Fatalf("expected one rejected reading, got %d", len(processor.dropped))
	}
	got := processor.dropped[0]
	if !got.Timestamp.Equal(env.OccurredAt) {
		t.Fatalf("expected receive time %s, got %s", env.OccurredAt, got.Timestamp)
	}
	if got.DeviceID != "device-1" || got.MessageID != env.EventID {
		t.Fatalf("expected decoded identity to be kept, got %+v", got)
	}

	processor = &stubProcessor{}
	consumer, _ = NewTelemetryConsumer(processor)
	_ = consumer.Handle(context.Background(), envelope(t, `{"deviceId":`))
	if len(processor.dropped) != 1 || processor.dropped[0].Timestamp.IsZero() {
		t.Fatalf("expected undecodable payload to be dated, got %+v", processor.dropped)
	}
}

func TestConsumerLogsDeliveryFromContext(t *testing.T) {
	var buf bytes.Buffer
	processor := &stubProcessor{}
	consumer, _ := NewTelemetryConsumer(processor, WithConsumerLogger(zerolog.New(&buf)))
	env := envelope(t, `{"deviceId":`)
	env.Attempt = 2
	ctx := eventing.WithEnvelope(context.Background(), env)
	if err := consumer.Handle(ctx, env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	line := buf.String()
	for _, want := range []string{`"event_id":"` + env.EventID + `"`, `"attempt":2`, `"component":"telemetry_consumer"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in log %q", want, line)
		}
	}
}
