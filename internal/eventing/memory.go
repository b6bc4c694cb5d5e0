package eventing

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultProcessedCapacity = 100000

// MemoryProcessedStore remembers handled event ids per consumer. The oldest
// ids are forgotten once capacity is reached.
type MemoryProcessedStore struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// NewMemoryProcessedStore constructs a store. Non-positive capacity uses the default.
func NewMemoryProcessedStore(capacity int) *MemoryProcessedStore {
	if capacity <= 0 {
		capacity = defaultProcessedCapacity
	}
	return &MemoryProcessedStore{
		seen:     make(map[string]struct{}),
		capacity: capacity,
	}
}

// HasProcessed checks if event was already processed.
func (s *MemoryProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	if eventID == "" || consumerName == "" {
		return false, errors.New("processed store: invalid arguments")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[consumerName+"|"+eventID]
	return ok, nil
}

// MarkProcessed records an event as processed.
func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	key := consumerName + "|" + eventID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return nil
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	if len(s.order) > s.capacity {
		drop := len(s.order) - s.capacity
		for _, old := range s.order[:drop] {
			delete(s.seen, old)
		}
		s.order = append(s.order[:0], s.order[drop:]...)
	}
	return nil
}

// DeadLetter is a failed delivery kept by MemoryDLQ.
type DeadLetter struct {
	Envelope   Envelope  `json:"envelope"`
	Error      string    `json:"error"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MemoryDLQ keeps the most recent dead letters.
type MemoryDLQ struct {
	mu       sync.Mutex
	letters  []DeadLetter
	capacity int
}

// NewMemoryDLQ constructs a dead letter store holding up to capacity entries.
func NewMemoryDLQ(capacity int) *MemoryDLQ {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryDLQ{capacity: capacity}
}

// RecordFailure stores a failed delivery.
func (d *MemoryDLQ) RecordFailure(_ context.Context, env Envelope, err error) error {
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	message := ""
	if err != nil {
		message = err.Error()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, DeadLetter{Envelope: env, Error: message, RecordedAt: time.Now().UTC()})
	if len(d.letters) > d.capacity {
		d.letters = append(d.letters[:0], d.letters[len(d.letters)-d.capacity:]...)
	}
	return nil
}

// List returns stored dead letters, oldest first.
func (d *MemoryDLQ) List() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DeadLetter(nil), d.letters...)
}
