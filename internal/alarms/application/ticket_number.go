package application

import "sync"

// TicketNumberer issues ticket numbers. Numbers must never repeat.
type TicketNumberer interface {
	Next() int64
}

// ClockNumberer issues millisecond timestamps, bumped to stay strictly increasing.
type ClockNumberer struct {
	mu    sync.Mutex
	clock Clock
	last  int64
}

// NewClockNumberer constructs a numberer. A nil clock uses wall time.
func NewClockNumberer(clock Clock) *ClockNumberer {
	if clock == nil {
		clock = systemClock{}
	}
	return &ClockNumberer{clock: clock}
}

// Next returns a fresh number.
func (n *ClockNumberer) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.clock.Now().UnixMilli()
	if next <= n.last {
		next = n.last + 1
	}
	n.last = next
	return next
}

// Observe raises the floor so restored numbers are never issued again.
func (n *ClockNumberer) Observe(number int64) {
	n.mu.Lock()
	if number > n.last {
		n.last = number
	}
	n.mu.Unlock()
}
