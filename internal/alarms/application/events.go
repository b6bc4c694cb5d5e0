package application

import (
	"context"
	"time"

	alarms "telemetry-alarms/internal/alarms/domain"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventCreated      EventType = "created"
	EventUpdated      EventType = "updated"
	EventResolved     EventType = "resolved"
	EventInvalid      EventType = "invalid"
	EventSnoozed      EventType = "snoozed"
	EventUnsnoozed    EventType = "un-snoozed"
	EventAcknowledged EventType = "acknowledged"
	EventEscalated    EventType = "escalated"
)

// Event is a lifecycle update handed to notifiers.
type Event struct {
	Type       EventType      `json:"type"`
	Ticket     *alarms.Ticket `json:"ticket,omitempty"`
	DeviceID   string         `json:"device_id"`
	Metric     string         `json:"metric"`
	Value      *float64       `json:"value,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier publishes lifecycle events. Implementations must not block the caller
// for long; wrap slow channels in an async notifier.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

func eventForTransition(status alarms.Status) EventType {
	switch status {
	case alarms.StatusSnoozed:
		return EventSnoozed
	case alarms.StatusUnsnoozed:
		return EventUnsnoozed
	case alarms.StatusAcknowledged:
		return EventAcknowledged
	default:
		return EventType(status)
	}
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
