package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "alarms_"

	outcomeInvalid  = "invalid"
	outcomeNoTicket = "no_ticket"
	outcomeUpserted = "upserted"
)

var (
	registerOnce sync.Once

	readingsTotal   *prometheus.CounterVec
	processLatency  *prometheus.HistogramVec
	ticketEvents    *prometheus.CounterVec
	configAnomalies *prometheus.CounterVec

	queueRedeliveries prometheus.Counter
	deadLetters       prometheus.Counter
	notifyDropped     prometheus.Counter
	notifyFailures    prometheus.Counter
)

// Init registers pipeline metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Total processed telemetry readings by outcome",
			},
			[]string{"outcome", "reason"},
		)
		processLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "process_latency_seconds",
				Help:    "Pipeline processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		ticketEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticket_events_total",
				Help: "Total ticket lifecycle events by type",
			},
			[]string{"event"},
		)
		configAnomalies = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "config_anomalies_total",
				Help: "Rules evaluated with an unsupported operator",
			},
			[]string{"device", "metric"},
		)
		queueRedeliveries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "queue_redeliveries_total",
				Help: "Messages handed to a consumer again after a failure",
			},
		)
		deadLetters = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "queue_dead_letters_total",
				Help: "Messages moved to the dead letter store",
			},
		)
		notifyDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_dropped_total",
				Help: "Notifications dropped because the buffer was full",
			},
		)
		notifyFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_failures_total",
				Help: "Notifications that failed to send",
			},
		)

		prometheus.MustRegister(
			readingsTotal,
			processLatency,
			ticketEvents,
			configAnomalies,
			queueRedeliveries,
			deadLetters,
			notifyDropped,
			notifyFailures,
		)
	})
}

// IncReading counts a processed reading.
func IncReading(outcome, reason string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if readingsTotal != nil {
		readingsTotal.WithLabelValues(outcome, reason).Inc()
	}
}

// ObserveProcess records pipeline latency.
func ObserveProcess(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if processLatency != nil {
		processLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// IncTicketEvent increments ticket lifecycle counters.
func IncTicketEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if ticketEvents != nil {
		ticketEvents.WithLabelValues(event).Inc()
	}
}

// IncConfigAnomaly counts a rule with an unsupported operator.
func IncConfigAnomaly(deviceID, metric string) {
	if configAnomalies != nil {
		configAnomalies.WithLabelValues(deviceID, metric).Inc()
	}
}

// IncQueueRedelivery counts a retried message.
func IncQueueRedelivery() {
	if queueRedeliveries != nil {
		queueRedeliveries.Inc()
	}
}

// IncDeadLetter counts a dead-lettered message.
func IncDeadLetter() {
	if deadLetters != nil {
		deadLetters.Inc()
	}
}

// IncNotifyDropped counts a dropped notification.
func IncNotifyDropped() {
	if notifyDropped != nil {
		notifyDropped.Inc()
	}
}

// IncNotifyFailure counts a failed notification.
func IncNotifyFailure() {
	if notifyFailures != nil {
		notifyFailures.Inc()
	}
}

// Exported constants for callers.
const (
	OutcomeInvalid  = outcomeInvalid
	OutcomeNoTicket = outcomeNoTicket
	OutcomeUpserted = outcomeUpserted
)
