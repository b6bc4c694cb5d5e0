package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
	"telemetry-alarms/internal/observability/metrics"
)

const defaultAsyncBuffer = 128

// AsyncNotifier hands events to a background worker so slow channels never
// stall the ingest pipeline. Events are dropped when the buffer is full.
type AsyncNotifier struct {
	next      alarmapp.Notifier
	events    chan alarmapp.Event
	logger    zerolog.Logger
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncNotifier wraps next with a bounded buffer.
func NewAsyncNotifier(next alarmapp.Notifier, buffer int, logger zerolog.Logger) *AsyncNotifier {
	if buffer <= 0 {
		buffer = defaultAsyncBuffer
	}
	return &AsyncNotifier{
		next:   next,
		events: make(chan alarmapp.Event, buffer),
		logger: logger.With().Str("component", "async_notifier").Logger(),
		done:   make(chan struct{}),
	}
}

// Notify enqueues the event without blocking.
func (a *AsyncNotifier) Notify(_ context.Context, event alarmapp.Event) {
	if a == nil || a.next == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.IncNotifyDropped()
		return
	}
	select {
	case a.events <- event:
	default:
		metrics.IncNotifyDropped()
		a.logger.Warn().Str("event", string(event.Type)).Msg("notification buffer full, dropping event")
	}
}

// Run delivers buffered events until Close is called and the buffer drains.
func (a *AsyncNotifier) Run(ctx context.Context) {
	defer close(a.done)
	for event := range a.events {
		a.next.Notify(ctx, event)
	}
}

// Close stops accepting events. Run returns once the remaining events are delivered.
func (a *AsyncNotifier) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.events)
		a.mu.Unlock()
	})
}

// Done is closed when Run has returned.
func (a *AsyncNotifier) Done() <-chan struct{} {
	return a.done
}

// Pending returns the number of buffered events.
func (a *AsyncNotifier) Pending() int {
	if a == nil {
		return 0
	}
	return len(a.events)
}
