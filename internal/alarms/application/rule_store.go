package application

import (
	"context"
	"sync"
	"sync/atomic"

	alarms "telemetry-alarms/internal/alarms/domain"
)

// RuleWriter persists a full rule mapping.
type RuleWriter interface {
	Replace(ctx context.Context, rules alarms.RuleSet) error
}

// RuleStore holds the current rule mapping as an immutable snapshot.
// Readers never lock; writers replace the whole snapshot.
type RuleStore struct {
	current atomic.Pointer[alarms.RuleSet]
	mu      sync.Mutex
	writer  RuleWriter
}

// RuleStoreOption configures the store.
type RuleStoreOption func(*RuleStore)

// WithRuleWriter writes every replacement through to writer before it becomes visible.
func WithRuleWriter(writer RuleWriter) RuleStoreOption {
	return func(s *RuleStore) {
		s.writer = writer
	}
}

// NewRuleStore constructs a store seeded with initial.
func NewRuleStore(initial alarms.RuleSet, opts ...RuleStoreOption) *RuleStore {
	s := &RuleStore{}
	for _, opt := range opts {
		opt(s)
	}
	snapshot := initial.Clone()
	s.current.Store(&snapshot)
	return s
}

// Snapshot returns the live snapshot. Callers must not mutate it.
func (s *RuleStore) Snapshot() alarms.RuleSet {
	if s == nil {
		return nil
	}
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil
	}
	return *snapshot
}

// Get returns a copy of the current mapping.
func (s *RuleStore) Get() alarms.RuleSet {
	return s.Snapshot().Clone()
}

// Lookup returns the rule for a device metric.
func (s *RuleStore) Lookup(deviceID, metric string) (alarms.Rule, bool) {
	return s.Snapshot().Lookup(deviceID, metric)
}

// Set replaces the whole mapping. There is no merge; the last write wins.
func (s *RuleStore) Set(ctx context.Context, rules alarms.RuleSet) (alarms.RuleSet, error) {
	snapshot := rules.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		if err := s.writer.Replace(ctx, snapshot); err != nil {
			return nil, err
		}
	}
	s.current.Store(&snapshot)
	return snapshot.Clone(), nil
}
