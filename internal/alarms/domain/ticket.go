package alarms

import (
	"strings"
	"time"
	"unicode"
)

// Status is a ticket lifecycle state.
type Status string

const (
	StatusOpen         Status = "open"
	StatusResolved     Status = "resolved"
	StatusSnoozed      Status = "snoozed"
	StatusUnsnoozed    Status = "un-snoozed"
	StatusAcknowledged Status = "acknowledged"
)

// Valid returns true for known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusResolved, StatusSnoozed, StatusUnsnoozed, StatusAcknowledged:
		return true
	default:
		return false
	}
}

// Manual returns true for statuses an operator may set directly.
func (s Status) Manual() bool {
	switch s {
	case StatusSnoozed, StatusUnsnoozed, StatusAcknowledged:
		return true
	default:
		return false
	}
}

// StatusForAction maps an operator action name to its target status.
func StatusForAction(action string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "snooze", "snoozed":
		return StatusSnoozed, true
	case "unsnooze", "un-snooze", "un-snoozed", "unsnoozed":
		return StatusUnsnoozed, true
	case "acknowledge", "acknowledged", "ack":
		return StatusAcknowledged, true
	default:
		return "", false
	}
}

// Key is the dedup key of a ticket.
type Key struct {
	DeviceID string
	Metric   string
}

// KeyOf builds a dedup key.
func KeyOf(deviceID, metric string) Key {
	return Key{DeviceID: deviceID, Metric: metric}
}

func (k Key) String() string {
	return k.DeviceID + "|" + k.Metric
}

// Ticket is an alarm record for one device metric.
type Ticket struct {
	Number        int64     `json:"ticket_number"`
	DeviceID      string    `json:"device_id"`
	Metric        string    `json:"metric"`
	Status        Status    `json:"status"`
	Priority      string    `json:"priority"`
	Name          string    `json:"name"`
	Site          string    `json:"site"`
	Assignee      string    `json:"assignee"`
	Value         float64   `json:"value"`
	Rule          Rule      `json:"rule"`
	ObservedAt    time.Time `json:"observed_at"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Comments      []string  `json:"comments"`
}

// Key returns the ticket dedup key.
func (t Ticket) Key() Key {
	return KeyOf(t.DeviceID, t.Metric)
}

// Clone returns a copy that shares no mutable state.
func (t Ticket) Clone() Ticket {
	out := t
	out.Comments = append([]string{}, t.Comments...)
	return out
}

// TicketName builds the display name for a new ticket.
func TicketName(deviceID, metric string) string {
	label := "Metric"
	if metric != "" {
		runes := []rune(metric)
		runes[0] = unicode.ToUpper(runes[0])
		label = string(runes)
	}
	return label + " Alert for Device " + deviceID
}
