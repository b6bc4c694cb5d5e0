package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
	alarms "telemetry-alarms/internal/alarms/domain"
	"telemetry-alarms/internal/observability/metrics"
)

// TicketReader loads the current state of a ticket.
type TicketReader interface {
	Get(number int64) (alarms.Ticket, error)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

// DefaultEvents are the lifecycle events sent when no filter is configured.
var DefaultEvents = []alarmapp.EventType{
	alarmapp.EventCreated,
	alarmapp.EventResolved,
	alarmapp.EventInvalid,
	alarmapp.EventSnoozed,
	alarmapp.EventUnsnoozed,
	alarmapp.EventAcknowledged,
	alarmapp.EventEscalated,
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders lifecycle events and sends them through a channel. Tickets
// created with a high priority are escalated when still open after a delay.
type Notifier struct {
	tickets        TicketReader
	channel        Channel
	template       *Template
	events         map[alarmapp.EventType]bool
	escalation     time.Duration
	clock          Clock
	logger         zerolog.Logger
	mu             sync.Mutex
	timers         map[int64]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout bounds escalation sends.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same ticket and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithEvents restricts which event types are sent.
func WithEvents(types ...alarmapp.EventType) Option {
	return func(n *Notifier) {
		if len(types) == 0 {
			return
		}
		n.events = make(map[alarmapp.EventType]bool, len(types))
		for _, t := range types {
			n.events[t] = true
		}
	}
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(tickets TicketReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if tickets == nil {
		return nil, errors.New("alarm notifier: nil ticket reader")
	}
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		tickets:        tickets,
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         zerolog.Nop(),
		timers:         make(map[int64]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	WithEvents(DefaultEvents...)(n)
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With().Str("component", "alarm_notifier").Logger()
	return n, nil
}

// Notify implements application.Notifier.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.Event) {
	if n == nil || n.channel == nil {
		return
	}
	if n.events[event.Type] {
		n.dispatch(ctx, event)
	}
	if event.Ticket == nil {
		return
	}

	switch event.Type {
	case alarmapp.EventCreated:
		n.scheduleEscalation(*event.Ticket)
	case alarmapp.EventUpdated:
		if event.Ticket.Status == alarms.StatusOpen {
			n.scheduleEscalationIfIdle(*event.Ticket)
		}
	case alarmapp.EventResolved, alarmapp.EventAcknowledged, alarmapp.EventSnoozed:
		n.cancelEscalation(event.Ticket.Number)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[int64]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, event alarmapp.Event) {
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		n.logger.Error().Err(err).Str("event", string(event.Type)).Msg("render notification failed")
		return
	}
	key := notificationKey(event)
	if !n.shouldSend(key, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncNotifyFailure()
		n.logger.Error().Err(err).Str("event", string(event.Type)).Str("key", key).Msg("send notification failed")
		return
	}
	n.markSent(key, content)
}

func (n *Notifier) scheduleEscalation(ticket alarms.Ticket) {
	if n.escalation <= 0 || !severityAtLeast(ticket.Priority, "high") {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[ticket.Number]; ok && existing != nil {
		existing.Stop()
	}
	number := ticket.Number
	n.timers[number] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(number)
	})
	n.mu.Unlock()
}

// scheduleEscalationIfIdle arms escalation for a re-opened ticket without
// pushing back a running timer or escalating the same episode twice.
func (n *Notifier) scheduleEscalationIfIdle(ticket alarms.Ticket) {
	n.mu.Lock()
	_, armed := n.timers[ticket.Number]
	n.mu.Unlock()
	if !armed {
		n.scheduleEscalation(ticket)
	}
}

func (n *Notifier) cancelEscalation(number int64) {
	n.mu.Lock()
	timer := n.timers[number]
	delete(n.timers, number)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(number int64) {
	// A nil entry marks the episode as escalated until the ticket is resolved.
	n.mu.Lock()
	n.timers[number] = nil
	n.mu.Unlock()

	ticket, err := n.tickets.Get(number)
	if err != nil || ticket.Status != alarms.StatusOpen {
		return
	}

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	value := ticket.Value
	n.dispatch(ctx, alarmapp.Event{
		Type:       alarmapp.EventEscalated,
		Ticket:     &ticket,
		DeviceID:   ticket.DeviceID,
		Metric:     ticket.Metric,
		Value:      &value,
		OccurredAt: n.clock.Now().UTC(),
	})
}

func buildTemplateData(event alarmapp.Event) TemplateData {
	data := TemplateData{
		Event:      string(event.Type),
		EventLabel: eventLabel(event.Type),
		DeviceID:   event.DeviceID,
		Metric:     event.Metric,
		Value:      "n/a",
		Reason:     event.Reason,
		Comment:    event.Comment,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
		Name:       "Invalid data from device " + event.DeviceID,
		Status:     "invalid",
	}
	if event.Value != nil {
		data.Value = formatFloat(*event.Value)
	}
	if ticket := event.Ticket; ticket != nil {
		data.TicketNumber = strconv.FormatInt(ticket.Number, 10)
		data.Name = ticket.Name
		data.DeviceID = ticket.DeviceID
		data.Metric = ticket.Metric
		data.Status = string(ticket.Status)
		data.Priority = ticket.Priority
		data.Site = ticket.Site
		data.Assignee = ticket.Assignee
		if ticket.Rule.Operator != "" {
			data.Threshold = fmt.Sprintf("%s %s", ticket.Rule.Operator, formatFloat(ticket.Rule.Threshold))
		}
	}
	data.Suggestion = suggestionFor(event.Type, data.Priority)
	return data
}

func eventLabel(event alarmapp.EventType) string {
	switch event {
	case alarmapp.EventCreated:
		return "Triggered"
	case alarmapp.EventUpdated:
		return "Updated"
	case alarmapp.EventResolved:
		return "Resolved"
	case alarmapp.EventInvalid:
		return "Invalid Data"
	case alarmapp.EventSnoozed:
		return "Snoozed"
	case alarmapp.EventUnsnoozed:
		return "Un-snoozed"
	case alarmapp.EventAcknowledged:
		return "Acknowledged"
	case alarmapp.EventEscalated:
		return "Escalated"
	default:
		return string(event)
	}
}

func suggestionFor(event alarmapp.EventType, priority string) string {
	switch event {
	case alarmapp.EventInvalid:
		return "Check the device configuration and the rules for this metric."
	case alarmapp.EventResolved:
		return "No action needed; the reading is back within its threshold."
	}
	switch strings.TrimSpace(strings.ToLower(priority)) {
	case "critical", "high":
		return "Investigate immediately and mitigate risk."
	case "medium":
		return "Verify the condition and take action if needed."
	default:
		return "Monitor the alarm condition."
	}
}

func severityAtLeast(value, target string) bool {
	return severityRank(value) >= severityRank(target)
}

func severityRank(value string) int {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(event alarmapp.Event) string {
	if event.Ticket != nil {
		return strconv.FormatInt(event.Ticket.Number, 10) + "|" + string(event.Type)
	}
	return event.DeviceID + "|" + event.Metric + "|" + string(event.Type)
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
