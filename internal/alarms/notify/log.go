package notify

import (
	"context"

	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
)

// LogNotifier writes events to the log. Used when no webhook is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alarm_log_notifier").Logger()}
}

// Notify implements application.Notifier.
func (l *LogNotifier) Notify(_ context.Context, event alarmapp.Event) {
	if l == nil || event.Type == alarmapp.EventUpdated {
		return
	}
	entry := l.logger.Info().Str("event", string(event.Type)).Str("device_id", event.DeviceID).Str("metric", event.Metric)
	if event.Ticket != nil {
		entry = entry.Int64("ticket", event.Ticket.Number).Str("status", string(event.Ticket.Status))
	}
	if event.Reason != "" {
		entry = entry.Str("reason", event.Reason)
	}
	entry.Msg("alarm notification")
}
