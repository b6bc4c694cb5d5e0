package audit

import (
	"context"
	"sync"
	"time"
)

const defaultRingCapacity = 10000

// Ring keeps the most recent entries in memory.
type Ring struct {
	mu       sync.RWMutex
	entries  []Entry
	next     int
	full     bool
	capacity int
}

// NewRing constructs a ring. Non-positive capacity uses the default.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Ring{entries: make([]Entry, capacity), capacity: capacity}
}

// Log implements Logger.
func (r *Ring) Log(_ context.Context, entry Entry) error {
	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// Entries returns the stored entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, r.capacity)
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.capacity
	}
	return r.next
}

// CountSince counts entries with status observed at or after since.
func (r *Ring) CountSince(status string, since time.Time) int {
	count := 0
	for _, entry := range r.Entries() {
		if entry.TicketStatus == status && !entry.Timestamp.Before(since) {
			count++
		}
	}
	return count
}
