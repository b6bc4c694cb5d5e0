package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	alarms "telemetry-alarms/internal/alarms/domain"
	masterdata "telemetry-alarms/internal/masterdata/domain"
	"telemetry-alarms/internal/observability/metrics"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

// OutcomeKind classifies the result of processing one reading.
type OutcomeKind string

const (
	OutcomeInvalid        OutcomeKind = "invalid"
	OutcomeNoTicket       OutcomeKind = "no_ticket"
	OutcomeTicketUpserted OutcomeKind = "ticket_upserted"
)

// Outcome is what Process did with a reading.
type Outcome struct {
	Kind     OutcomeKind
	Reason   InvalidReason
	Reading  telemetry.Reading
	Breached bool
	Ticket   *alarms.Ticket
	Created  bool
	Resolved bool
}

// TicketStatus returns the message log label of the outcome.
func (o Outcome) TicketStatus() string {
	switch o.Kind {
	case OutcomeInvalid:
		return "invalid"
	case OutcomeNoTicket:
		return "no ticket"
	}
	switch {
	case o.Created:
		return "generated"
	case o.Ticket != nil && o.Ticket.Status == alarms.StatusResolved:
		return "resolved"
	default:
		return "updated/open"
	}
}

// EventType returns the lifecycle event the outcome reports.
func (o Outcome) EventType() EventType {
	switch {
	case o.Kind == OutcomeInvalid:
		return EventInvalid
	case o.Kind == OutcomeNoTicket:
		return ""
	case o.Created:
		return EventCreated
	case o.Resolved:
		return EventResolved
	default:
		return EventUpdated
	}
}

// OutcomeRecorder receives every outcome after processing, for example a message log.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

// DeviceCatalog is the read side of the device catalog used by the pipeline.
type DeviceCatalog interface {
	MetricCatalog
	Get(deviceID string) (masterdata.DeviceProfile, bool)
}

// HistoryAppender stores valid samples for charting.
type HistoryAppender interface {
	Append(point telemetry.Point)
}

// Pipeline runs one reading through classification, evaluation, the registry and history.
type Pipeline struct {
	catalog   DeviceCatalog
	rules     *RuleStore
	evaluator *RuleEvaluator
	registry  *Registry
	history   HistoryAppender
	recorder  OutcomeRecorder
	notifier  Notifier
	clock     Clock
	logger    zerolog.Logger
}

// PipelineOption configures the pipeline.
type PipelineOption func(*Pipeline)

// WithHistory sets the history buffer.
func WithHistory(history HistoryAppender) PipelineOption {
	return func(p *Pipeline) {
		p.history = history
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(recorder OutcomeRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithNotifier sets the lifecycle notifier.
func WithNotifier(notifier Notifier) PipelineOption {
	return func(p *Pipeline) {
		p.notifier = notifier
	}
}

// WithPipelineClock overrides the clock used for event times and latency.
func WithPipelineClock(clock Clock) PipelineOption {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline constructs a pipeline.
func NewPipeline(catalog DeviceCatalog, rules *RuleStore, registry *Registry, opts ...PipelineOption) (*Pipeline, error) {
	if catalog == nil {
		return nil, errors.New("ingest pipeline: nil catalog")
	}
	if rules == nil {
		return nil, errors.New("ingest pipeline: nil rule store")
	}
	if registry == nil {
		return nil, errors.New("ingest pipeline: nil registry")
	}
	p := &Pipeline{
		catalog:  catalog,
		rules:    rules,
		registry: registry,
		clock:    systemClock{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "ingest_pipeline").Logger()
	p.evaluator = NewRuleEvaluator(p.logger)
	return p, nil
}

// Process handles one reading. Invalid readings are returned as an outcome,
// never as an error; the only error is a registry failure.
func (p *Pipeline) Process(ctx context.Context, reading telemetry.Reading) (Outcome, error) {
	start := p.clock.Now()

	classification := Classify(reading, p.catalog, p.rules.Snapshot())
	if !classification.Valid {
		outcome := p.Reject(ctx, reading, classification.Reason)
		metrics.ObserveProcess(metrics.OutcomeInvalid, p.clock.Now().Sub(start))
		return outcome, nil
	}

	if p.history != nil {
		p.history.Append(reading.Point())
	}

	rule := classification.Rule
	breached := p.evaluator.Evaluate(reading.DeviceID, reading.Metric, reading.Value, rule)

	profile, _ := p.catalog.Get(reading.DeviceID)
	result, err := p.registry.Upsert(UpsertInput{
		DeviceID:   reading.DeviceID,
		Metric:     reading.Metric,
		Breached:   breached,
		Value:      reading.Value,
		ObservedAt: reading.Timestamp,
		Rule:       rule,
		Site:       firstNonEmpty(reading.Site, profile.Site),
		Assignee:   firstNonEmpty(reading.Assignee, profile.Assignee),
		Priority:   reading.Priority,
	})
	if err != nil {
		p.logger.Error().Err(err).
			Str("device_id", reading.DeviceID).
			Str("metric", reading.Metric).
			Msg("ticket upsert failed")
		return Outcome{}, err
	}

	outcome := Outcome{
		Kind:     OutcomeNoTicket,
		Reading:  reading,
		Breached: breached,
	}
	label := metrics.OutcomeNoTicket
	if result.Found {
		ticket := result.Ticket
		outcome.Kind = OutcomeTicketUpserted
		outcome.Ticket = &ticket
		outcome.Created = result.Created
		outcome.Resolved = result.Resolved
		label = metrics.OutcomeUpserted
	}

	metrics.IncReading(label, "")
	p.finish(ctx, outcome)
	metrics.ObserveProcess(label, p.clock.Now().Sub(start))
	return outcome, nil
}

// Reject records a reading that cannot be evaluated. It never touches the
// registry or the history.
func (p *Pipeline) Reject(ctx context.Context, reading telemetry.Reading, reason InvalidReason) Outcome {
	outcome := Outcome{
		Kind:    OutcomeInvalid,
		Reason:  reason,
		Reading: reading,
	}
	metrics.IncReading(metrics.OutcomeInvalid, string(reason))
	p.logger.Warn().
		Str("device_id", reading.DeviceID).
		Str("metric", reading.Metric).
		Str("reason", string(reason)).
		Msg("invalid reading")
	p.finish(ctx, outcome)
	return outcome
}

func (p *Pipeline) finish(ctx context.Context, outcome Outcome) {
	if p.recorder != nil {
		if err := p.recorder.RecordOutcome(ctx, outcome); err != nil {
			p.logger.Error().Err(err).Msg("record outcome failed")
		}
	}

	eventType := outcome.EventType()
	if eventType == "" {
		return
	}
	metrics.IncTicketEvent(string(eventType))
	if outcome.Ticket != nil {
		p.logger.Info().
			Str("event", string(eventType)).
			Int64("ticket_number", outcome.Ticket.Number).
			Str("device_id", outcome.Ticket.DeviceID).
			Str("metric", outcome.Ticket.Metric).
			Str("status", string(outcome.Ticket.Status)).
			Msg("ticket event")
	}
	if p.notifier == nil {
		return
	}
	event := Event{
		Type:       eventType,
		Ticket:     outcome.Ticket,
		DeviceID:   outcome.Reading.DeviceID,
		Metric:     outcome.Reading.Metric,
		Reason:     string(outcome.Reason),
		OccurredAt: p.clock.Now().UTC(),
	}
	if outcome.Reading.Finite() {
		value := outcome.Reading.Value
		event.Value = &value
	}
	p.notifier.Notify(ctx, event)
}
