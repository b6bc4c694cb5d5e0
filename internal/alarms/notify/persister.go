package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
	alarms "telemetry-alarms/internal/alarms/domain"
)

// TicketSaver stores a ticket snapshot.
type TicketSaver interface {
	Save(ctx context.Context, ticket alarms.Ticket) error
}

// TicketPersister writes the affected ticket to a store on every ticket event.
type TicketPersister struct {
	store  TicketSaver
	logger zerolog.Logger
}

// NewTicketPersister constructs a persister.
func NewTicketPersister(store TicketSaver, logger zerolog.Logger) (*TicketPersister, error) {
	if store == nil {
		return nil, errors.New("ticket persister: nil store")
	}
	return &TicketPersister{
		store:  store,
		logger: logger.With().Str("component", "ticket_persister").Logger(),
	}, nil
}

// Notify implements application.Notifier.
func (p *TicketPersister) Notify(ctx context.Context, event alarmapp.Event) {
	if p == nil || event.Ticket == nil || event.Type == alarmapp.EventEscalated {
		return
	}
	if err := p.store.Save(ctx, *event.Ticket); err != nil {
		p.logger.Error().Err(err).Int64("ticket", event.Ticket.Number).Msg("persist ticket failed")
	}
}
