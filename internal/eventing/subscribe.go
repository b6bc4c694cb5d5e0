package eventing

import (
	"context"
	"time"
)

// Handler processes one delivered envelope.
type Handler func(ctx context.Context, env Envelope) error

// ProcessedStore provides idempotency checks.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// DLQStore records deliveries that exhausted their attempts.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// WrapHandler enforces idempotency per consumer. A redelivered event id that
// was already handled is acknowledged without calling handler.
func WrapHandler(consumerName string, handler Handler, store ProcessedStore) Handler {
	if store == nil {
		return handler
	}
	return func(ctx context.Context, env Envelope) error {
		if env.EventID == "" {
			return handler(ctx, env)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, env); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
