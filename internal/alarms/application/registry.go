package application

import (
	"fmt"
	"sort"
	"sync"
	"time"

	alarms "telemetry-alarms/internal/alarms/domain"
)

const (
	DefaultPriority = "high"
	DefaultSite     = "Demo Site"
	DefaultAssignee = "system"
)

// UpsertInput carries one evaluated reading into the registry.
type UpsertInput struct {
	DeviceID   string
	Metric     string
	Breached   bool
	Value      float64
	ObservedAt time.Time
	Rule       alarms.Rule
	Site       string
	Assignee   string
	Priority   string
}

// UpsertResult describes what Upsert did.
type UpsertResult struct {
	Ticket         alarms.Ticket
	Found          bool
	Created        bool
	Resolved       bool
	PreviousStatus alarms.Status
}

// Registry owns every ticket. There is at most one ticket per device metric
// and it is never removed. All mutations are serialized.
type Registry struct {
	mu       sync.Mutex
	byKey    map[alarms.Key]*alarms.Ticket
	byNumber map[int64]*alarms.Ticket
	order    []*alarms.Ticket

	numbers         TicketNumberer
	clock           Clock
	defaultPriority string
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithTicketNumberer overrides ticket number generation.
func WithTicketNumberer(numbers TicketNumberer) RegistryOption {
	return func(r *Registry) {
		if numbers != nil {
			r.numbers = numbers
		}
	}
}

// WithRegistryClock overrides the clock used for lastUpdatedAt.
func WithRegistryClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithDefaultPriority sets the priority of new tickets when the reading has none.
func WithDefaultPriority(priority string) RegistryOption {
	return func(r *Registry) {
		if priority != "" {
			r.defaultPriority = priority
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byKey:           make(map[alarms.Key]*alarms.Ticket),
		byNumber:        make(map[int64]*alarms.Ticket),
		clock:           systemClock{},
		defaultPriority: DefaultPriority,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.numbers == nil {
		r.numbers = NewClockNumberer(r.clock)
	}
	return r
}

// Upsert applies an evaluated reading. An existing ticket for the device metric
// always absorbs the reading, whatever its status; a new ticket is only opened
// on a breach.
func (r *Registry) Upsert(in UpsertInput) (UpsertResult, error) {
	key := alarms.KeyOf(in.DeviceID, in.Metric)
	now := r.clock.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		if indexed := r.byNumber[existing.Number]; indexed != existing {
			return UpsertResult{}, fmt.Errorf("%w: ticket %d for %s missing from number index", alarms.ErrRegistryCorrupted, existing.Number, key)
		}
		previous := existing.Status
		existing.Status = alarms.StatusResolved
		if in.Breached {
			existing.Status = alarms.StatusOpen
		}
		existing.Value = in.Value
		existing.Rule = in.Rule
		existing.ObservedAt = in.ObservedAt.UTC()
		existing.LastUpdatedAt = now
		return UpsertResult{
			Ticket:         existing.Clone(),
			Found:          true,
			Resolved:       previous == alarms.StatusOpen && existing.Status == alarms.StatusResolved,
			PreviousStatus: previous,
		}, nil
	}

	if !in.Breached {
		return UpsertResult{}, nil
	}

	ticket := &alarms.Ticket{
		Number:        r.nextNumberLocked(),
		DeviceID:      in.DeviceID,
		Metric:        in.Metric,
		Status:        alarms.StatusOpen,
		Priority:      firstNonEmpty(in.Priority, r.defaultPriority),
		Name:          alarms.TicketName(in.DeviceID, in.Metric),
		Site:          firstNonEmpty(in.Site, DefaultSite),
		Assignee:      firstNonEmpty(in.Assignee, DefaultAssignee),
		Value:         in.Value,
		Rule:          in.Rule,
		ObservedAt:    in.ObservedAt.UTC(),
		CreatedAt:     now,
		LastUpdatedAt: now,
		Comments:      []string{},
	}
	r.insertLocked(ticket)
	return UpsertResult{
		Ticket:  ticket.Clone(),
		Found:   true,
		Created: true,
	}, nil
}

// Transition sets a manual status and appends the comment.
// It returns the updated ticket and the status it had before.
func (r *Registry) Transition(number int64, status alarms.Status, comment string) (alarms.Ticket, alarms.Status, error) {
	if !status.Manual() {
		return alarms.Ticket{}, "", alarms.ErrInvalidTransition
	}
	now := r.clock.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.byNumber[number]
	if !ok {
		return alarms.Ticket{}, "", alarms.ErrNotFound
	}
	previous := ticket.Status
	ticket.Status = status
	if comment != "" {
		ticket.Comments = append(ticket.Comments, comment)
	}
	ticket.LastUpdatedAt = now
	return ticket.Clone(), previous, nil
}

// Get returns a ticket by number.
func (r *Registry) Get(number int64) (alarms.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.byNumber[number]
	if !ok {
		return alarms.Ticket{}, alarms.ErrNotFound
	}
	return ticket.Clone(), nil
}

// Find returns the ticket for a device metric.
func (r *Registry) Find(deviceID, metric string) (alarms.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.byKey[alarms.KeyOf(deviceID, metric)]
	if !ok {
		return alarms.Ticket{}, false
	}
	return ticket.Clone(), true
}

// List returns all tickets, newest created first.
func (r *Registry) List() []alarms.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alarms.Ticket, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.order[i].Clone())
	}
	return out
}

// Len returns the number of tickets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Restore loads previously persisted tickets. It fails without changing
// anything when a ticket would duplicate a dedup key or a number.
func (r *Registry) Restore(tickets []alarms.Ticket) error {
	sorted := make([]alarms.Ticket, len(tickets))
	copy(sorted, tickets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].Number < sorted[j].Number
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make(map[alarms.Key]struct{}, len(sorted))
	numbers := make(map[int64]struct{}, len(sorted))
	for _, ticket := range sorted {
		key := ticket.Key()
		if ticket.DeviceID == "" || ticket.Metric == "" || !ticket.Status.Valid() {
			return fmt.Errorf("alarm: invalid ticket %d", ticket.Number)
		}
		if _, dup := keys[key]; dup {
			return fmt.Errorf("%w: %s", alarms.ErrDuplicateTicket, key)
		}
		if _, dup := r.byKey[key]; dup {
			return fmt.Errorf("%w: %s", alarms.ErrDuplicateTicket, key)
		}
		if _, dup := numbers[ticket.Number]; dup {
			return fmt.Errorf("%w: number %d", alarms.ErrDuplicateTicket, ticket.Number)
		}
		if _, dup := r.byNumber[ticket.Number]; dup {
			return fmt.Errorf("%w: number %d", alarms.ErrDuplicateTicket, ticket.Number)
		}
		keys[key] = struct{}{}
		numbers[ticket.Number] = struct{}{}
	}

	observer, _ := r.numbers.(interface{ Observe(int64) })
	for _, ticket := range sorted {
		restored := ticket.Clone()
		if restored.Comments == nil {
			restored.Comments = []string{}
		}
		r.insertLocked(&restored)
		if observer != nil {
			observer.Observe(restored.Number)
		}
	}
	return nil
}

func (r *Registry) insertLocked(ticket *alarms.Ticket) {
	r.byKey[ticket.Key()] = ticket
	r.byNumber[ticket.Number] = ticket
	r.order = append(r.order, ticket)
}

func (r *Registry) nextNumberLocked() int64 {
	for {
		number := r.numbers.Next()
		if _, taken := r.byNumber[number]; !taken {
			return number
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
