package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	alarms "telemetry-alarms/internal/alarms/domain"
	"telemetry-alarms/internal/observability/metrics"
)

// Service is the administrative surface over rules and tickets.
type Service struct {
	rules    *RuleStore
	registry *Registry
	notifier Notifier
	clock    Clock
	logger   zerolog.Logger
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithServiceNotifier publishes manual transitions.
func WithServiceNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithServiceClock overrides the event clock.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs the admin service.
func NewService(rules *RuleStore, registry *Registry, opts ...ServiceOption) (*Service, error) {
	if rules == nil {
		return nil, errors.New("alarm service: nil rule store")
	}
	if registry == nil {
		return nil, errors.New("alarm service: nil registry")
	}
	s := &Service{
		rules:    rules,
		registry: registry,
		clock:    systemClock{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "alarm_service").Logger()
	return s, nil
}

// GetRules returns a copy of the current rules.
func (s *Service) GetRules() alarms.RuleSet {
	return s.rules.Get()
}

// SetRules replaces every rule and returns what is now stored.
func (s *Service) SetRules(ctx context.Context, rules alarms.RuleSet) (alarms.RuleSet, error) {
	stored, err := s.rules.Set(ctx, rules)
	if err != nil {
		return nil, err
	}
	for deviceID, byMetric := range stored {
		for metric, rule := range byMetric {
			if !rule.Operator.Valid() {
				s.logger.Warn().
					Str("device_id", deviceID).
					Str("metric", metric).
					Str("operator", string(rule.Operator)).
					Msg("rule stored with unsupported operator")
			}
		}
	}
	s.logger.Info().Int("rules", stored.Len()).Msg("rules replaced")
	return stored, nil
}

// GetTicket returns a ticket by number.
func (s *Service) GetTicket(number int64) (alarms.Ticket, error) {
	return s.registry.Get(number)
}

// FindTicket returns the ticket of a device metric.
func (s *Service) FindTicket(deviceID, metric string) (alarms.Ticket, error) {
	ticket, ok := s.registry.Find(deviceID, metric)
	if !ok {
		return alarms.Ticket{}, alarms.ErrNotFound
	}
	return ticket, nil
}

// ListTickets returns every ticket, newest created first.
func (s *Service) ListTickets() []alarms.Ticket {
	return s.registry.List()
}

// Transition applies an operator action (snooze, unsnooze, acknowledge) to a ticket.
func (s *Service) Transition(ctx context.Context, number int64, action, comment string) (alarms.Ticket, error) {
	status, ok := alarms.StatusForAction(action)
	if !ok {
		return alarms.Ticket{}, alarms.ErrInvalidTransition
	}
	ticket, previous, err := s.registry.Transition(number, status, comment)
	if err != nil {
		return alarms.Ticket{}, err
	}

	eventType := eventForTransition(status)
	metrics.IncTicketEvent(string(eventType))
	s.logger.Info().
		Int64("ticket_number", ticket.Number).
		Str("from", string(previous)).
		Str("to", string(ticket.Status)).
		Msg("ticket transitioned")

	if s.notifier != nil {
		snapshot := ticket.Clone()
		value := ticket.Value
		s.notifier.Notify(ctx, Event{
			Type:       eventType,
			Ticket:     &snapshot,
			DeviceID:   ticket.DeviceID,
			Metric:     ticket.Metric,
			Value:      &value,
			Comment:    comment,
			OccurredAt: s.clock.Now().UTC(),
		})
	}
	return ticket, nil
}
