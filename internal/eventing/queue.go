package eventing

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telemetry-alarms/internal/observability/metrics"
)

// ErrQueueClosed indicates a publish after Close.
var ErrQueueClosed = errors.New("eventing: queue closed")

const (
	defaultShards      = 4
	defaultBuffer      = 256
	defaultMaxAttempts = 3
)

// Queue is an in-process at-least-once queue. Envelopes are routed to a shard
// by key and every shard is drained by exactly one worker, so deliveries for a
// key are serialized and ordered while different keys run in parallel.
type Queue struct {
	shards      []chan Envelope
	maxAttempts int
	retryDelay  time.Duration
	dlq         DLQStore
	logger      zerolog.Logger

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// QueueOption configures the queue.
type QueueOption func(*queueConfig)

type queueConfig struct {
	shards      int
	buffer      int
	maxAttempts int
	retryDelay  time.Duration
	dlq         DLQStore
	logger      zerolog.Logger
}

// WithShards sets the number of workers.
func WithShards(n int) QueueOption {
	return func(c *queueConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithBuffer sets the per-shard buffer.
func WithBuffer(n int) QueueOption {
	return func(c *queueConfig) {
		if n >= 0 {
			c.buffer = n
		}
	}
}

// WithMaxAttempts sets how many times a failing delivery is tried.
func WithMaxAttempts(n int) QueueOption {
	return func(c *queueConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay waits between attempts.
func WithRetryDelay(d time.Duration) QueueOption {
	return func(c *queueConfig) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithDLQ stores deliveries that exhausted their attempts.
func WithDLQ(store DLQStore) QueueOption {
	return func(c *queueConfig) {
		c.dlq = store
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger zerolog.Logger) QueueOption {
	return func(c *queueConfig) {
		c.logger = logger
	}
}

// NewQueue constructs a queue.
func NewQueue(opts ...QueueOption) *Queue {
	cfg := queueConfig{
		shards:      defaultShards,
		buffer:      defaultBuffer,
		maxAttempts: defaultMaxAttempts,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &Queue{
		shards:      make([]chan Envelope, cfg.shards),
		maxAttempts: cfg.maxAttempts,
		retryDelay:  cfg.retryDelay,
		dlq:         cfg.dlq,
		logger:      cfg.logger.With().Str("component", "queue").Logger(),
		done:        make(chan struct{}),
	}
	for i := range q.shards {
		q.shards[i] = make(chan Envelope, cfg.buffer)
	}
	return q
}

// Publish enqueues env. It blocks while the shard is full until ctx is done.
func (q *Queue) Publish(ctx context.Context, env Envelope) error {
	if q == nil {
		return ErrQueueClosed
	}
	if env.EventID == "" {
		return errors.New("eventing: empty event id")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	shard := q.shards[q.shardFor(env.Key)]
	select {
	case shard <- env:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of envelopes waiting across shards.
func (q *Queue) Depth() int {
	if q == nil {
		return 0
	}
	total := 0
	for _, shard := range q.shards {
		total += len(shard)
	}
	return total
}

// Close stops accepting envelopes. Workers drain what is already queued.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		for _, shard := range q.shards {
			close(shard)
		}
		q.mu.Unlock()
	})
}

// Run starts one worker per shard and blocks until ctx is done or the queue
// is closed and drained. It must be called once.
func (q *Queue) Run(ctx context.Context, consumerName string, handler Handler) {
	if q == nil || handler == nil {
		return
	}
	var wg sync.WaitGroup
	for i, shard := range q.shards {
		wg.Add(1)
		go func(id int, ch <-chan Envelope) {
			defer wg.Done()
			logger := q.logger.With().Str("consumer", consumerName).Int("shard", id).Logger()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-ch:
					if !ok {
						return
					}
					q.deliver(ctx, logger, handler, env)
				}
			}
		}(i, shard)
	}
	wg.Wait()
}

func (q *Queue) deliver(ctx context.Context, logger zerolog.Logger, handler Handler, env Envelope) {
	var err error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		env.Attempt = attempt
		err = handler(WithEnvelope(ctx, env), env)
		if err == nil {
			return
		}
		if attempt == q.maxAttempts {
			break
		}
		metrics.IncQueueRedelivery()
		logger.Warn().Err(err).
			Str("event_id", env.EventID).
			Int("attempt", attempt).
			Msg("delivery failed, retrying")
		if !sleepContext(ctx, q.retryDelay) {
			return
		}
	}

	metrics.IncDeadLetter()
	logger.Error().Err(err).
		Str("event_id", env.EventID).
		Str("key", env.Key).
		Int("attempts", env.Attempt).
		Msg("delivery exhausted, dead lettering")
	if q.dlq != nil {
		if dlqErr := q.dlq.RecordFailure(ctx, env, err); dlqErr != nil {
			logger.Error().Err(dlqErr).Str("event_id", env.EventID).Msg("dead letter store failed")
		}
	}
}

func (q *Queue) shardFor(key string) int {
	if len(q.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.shards)))
}
