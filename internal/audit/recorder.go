package audit

import (
	"context"
	"errors"

	alarmapp "telemetry-alarms/internal/alarms/application"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

// Recorder turns pipeline outcomes into message log entries.
type Recorder struct {
	logger Logger
}

// NewRecorder constructs a recorder writing to logger.
func NewRecorder(logger Logger) (*Recorder, error) {
	if logger == nil {
		return nil, errors.New("audit recorder: nil logger")
	}
	return &Recorder{logger: logger}, nil
}

// RecordOutcome implements application.OutcomeRecorder.
func (r *Recorder) RecordOutcome(ctx context.Context, outcome alarmapp.Outcome) error {
	return r.logger.Log(ctx, EntryFromOutcome(outcome))
}

// EntryFromOutcome builds the log entry for one processed reading.
func EntryFromOutcome(outcome alarmapp.Outcome) Entry {
	reading := outcome.Reading
	entry := Entry{
		ID:           reading.MessageID,
		Timestamp:    reading.Timestamp.UTC(),
		DeviceID:     reading.DeviceID,
		Metric:       reading.Metric,
		Value:        reading.Value,
		TicketStatus: outcome.TicketStatus(),
		Reason:       string(outcome.Reason),
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if outcome.Ticket != nil {
		entry.TicketNumber = outcome.Ticket.Number
	}
	if payload, err := telemetry.EncodeReading(reading); err == nil {
		entry.Message = string(payload)
	}
	return entry
}
