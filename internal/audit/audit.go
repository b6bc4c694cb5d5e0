package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Ticket status labels written to the message log.
const (
	StatusInvalid  = "invalid"
	StatusNoTicket = "no ticket"
	StatusCreated  = "generated"
	StatusUpdated  = "updated/open"
	StatusResolved = "resolved"
)

// Entry is one processed message in the message log.
type Entry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	DeviceID     string    `json:"device_id"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"-"`
	TicketStatus string    `json:"ticket_status"`
	TicketNumber int64     `json:"ticket_number,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Message      string    `json:"message"`
}

// ValueString renders the value as written to the log. NaN renders empty.
func (e Entry) ValueString() string {
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return ""
	}
	return strconv.FormatFloat(e.Value, 'f', -1, 64)
}

// MarshalJSON renders the value as a string so NaN survives encoding.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(struct {
		plain
		Value string `json:"value"`
	}{plain: plain(e), Value: e.ValueString()})
}

// TicketNumberString renders the ticket number, empty when there is none.
func (e Entry) TicketNumberString() string {
	if e.TicketNumber == 0 {
		return ""
	}
	return strconv.FormatInt(e.TicketNumber, 10)
}

// Counted reports whether the status counts as a ticket in the daily summary.
func (e Entry) Counted() bool {
	switch e.TicketStatus {
	case StatusCreated, StatusUpdated, StatusResolved:
		return true
	default:
		return false
	}
}

// Logger writes message log entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a message log entry id.
func NewID() string {
	return "msg-" + uuid.NewString()
}

// MultiLogger writes every entry to each logger and joins their errors.
type MultiLogger []Logger

// Log implements Logger.
func (m MultiLogger) Log(ctx context.Context, entry Entry) error {
	var errs []error
	for _, logger := range m {
		if logger == nil {
			continue
		}
		if err := logger.Log(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
