package application

import (
	"errors"
	"sync"
	"testing"
	"time"

	alarms "telemetry-alarms/internal/alarms/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

var tempRule = alarms.Rule{Operator: alarms.OperatorGreater, Threshold: 70}

func breach(deviceID, metric string, value float64, at time.Time) UpsertInput {
	return UpsertInput{
		DeviceID:   deviceID,
		Metric:     metric,
		Breached:   value > 70,
		Value:      value,
		ObservedAt: at,
		Rule:       tempRule,
	}
}

func TestRegistryCreatesOnlyOnBreach(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))

	result, err := registry.Upsert(breach("device-1", "temperature", 50, clock.Now()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if result.Found || result.Created {
		t.Fatalf("expected no ticket for a non-breaching first reading, got %+v", result)
	}
	if registry.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", registry.Len())
	}

	result, err = registry.Upsert(breach("device-1", "temperature", 85, clock.Now()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !result.Created || result.Ticket.Status != alarms.StatusOpen {
		t.Fatalf("expected created open ticket, got %+v", result)
	}
	ticket := result.Ticket
	if ticket.Name != "Temperature Alert for Device device-1" {
		t.Fatalf("unexpected ticket name %q", ticket.Name)
	}
	if ticket.Priority != DefaultPriority || ticket.Site != DefaultSite || ticket.Assignee != DefaultAssignee {
		t.Fatalf("unexpected defaults: %+v", ticket)
	}
	if ticket.Comments == nil {
		t.Fatalf("expected empty comments slice")
	}
}

func TestRegistryDedupAcrossManyBreaches(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))

	var number int64
	for i := 0; i < 20; i++ {
		value := 60.0
		if i%3 == 0 {
			value = 90
		}
		result, err := registry.Upsert(breach("device-1", "temperature", value, clock.Now()))
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
		if result.Found {
			if number == 0 {
				number = result.Ticket.Number
			}
			if result.Ticket.Number != number {
				t.Fatalf("ticket number changed from %d to %d", number, result.Ticket.Number)
			}
		}
		clock.Add(time.Second)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected exactly one ticket, got %d", registry.Len())
	}
}

func TestRegistryIdempotentUpsert(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))
	in := breach("device-2", "temperature", 75, clock.Now())

	first, err := registry.Upsert(in)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	clock.Add(time.Minute)
	second, err := registry.Upsert(in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.Ticket.Number != second.Ticket.Number {
		t.Fatalf("expected stable ticket number, got %d and %d", first.Ticket.Number, second.Ticket.Number)
	}
	if second.Created {
		t.Fatalf("second upsert must not create")
	}
	if !second.Ticket.LastUpdatedAt.After(first.Ticket.LastUpdatedAt) {
		t.Fatalf("expected lastUpdatedAt to advance: %s -> %s", first.Ticket.LastUpdatedAt, second.Ticket.LastUpdatedAt)
	}
}

func TestRegistryResolveAndReopen(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))

	created, err := registry.Upsert(breach("device-1", "temperature", 75, clock.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resolved, err := registry.Upsert(breach("device-1", "temperature", 60, clock.Now()))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved || resolved.Ticket.Status != alarms.StatusResolved {
		t.Fatalf("expected resolved transition, got %+v", resolved)
	}
	if resolved.Ticket.Number != created.Ticket.Number {
		t.Fatalf("resolve created a sibling ticket")
	}
	if resolved.Ticket.Value != 60 {
		t.Fatalf("expected value update, got %v", resolved.Ticket.Value)
	}

	again, err := registry.Upsert(breach("device-1", "temperature", 55, clock.Now()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.Resolved {
		t.Fatalf("resolved -> resolved must not report a resolved event")
	}

	reopened, err := registry.Upsert(breach("device-1", "temperature", 99, clock.Now()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Ticket.Status != alarms.StatusOpen || reopened.Created {
		t.Fatalf("expected reopen of the same ticket, got %+v", reopened)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one ticket, got %d", registry.Len())
	}
}

func TestRegistryAbsorbsReadingsAfterManualTransition(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))
	created, _ := registry.Upsert(breach("device-1", "temperature", 75, clock.Now()))

	if _, _, err := registry.Transition(created.Ticket.Number, alarms.StatusSnoozed, "later"); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	result, err := registry.Upsert(breach("device-1", "temperature", 80, clock.Now()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if result.Created || result.PreviousStatus != alarms.StatusSnoozed || result.Ticket.Status != alarms.StatusOpen {
		t.Fatalf("unexpected result after snooze: %+v", result)
	}
}

func TestRegistryTransition(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))
	created, _ := registry.Upsert(breach("device-3", "temperature", 75, clock.Now()))

	clock.Add(time.Minute)
	ticket, previous, err := registry.Transition(created.Ticket.Number, alarms.StatusAcknowledged, "on it")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if previous != alarms.StatusOpen || ticket.Status != alarms.StatusAcknowledged {
		t.Fatalf("unexpected transition %s -> %s", previous, ticket.Status)
	}
	if len(ticket.Comments) != 1 || ticket.Comments[0] != "on it" {
		t.Fatalf("unexpected comments %v", ticket.Comments)
	}
	if !ticket.LastUpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected lastUpdatedAt %s, got %s", clock.Now(), ticket.LastUpdatedAt)
	}

	ticket, _, err = registry.Transition(created.Ticket.Number, alarms.StatusSnoozed, "")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(ticket.Comments) != 1 {
		t.Fatalf("empty comment must not be appended, got %v", ticket.Comments)
	}

	if _, _, err := registry.Transition(42, alarms.StatusSnoozed, "x"); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := registry.Transition(created.Ticket.Number, alarms.StatusOpen, "x"); !errors.Is(err, alarms.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	stored, err := registry.Get(created.Ticket.Number)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != alarms.StatusSnoozed {
		t.Fatalf("failed transitions must not change state, got %s", stored.Status)
	}
}

func TestRegistryListNewestFirst(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))
	for _, device := range []string{"device-1", "device-2", "device-3"} {
		if _, err := registry.Upsert(breach(device, "temperature", 90, clock.Now())); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	// Updating the oldest ticket must not move it.
	clock.Add(time.Minute)
	if _, err := registry.Upsert(breach("device-1", "temperature", 95, clock.Now())); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(list))
	}
	want := []string{"device-3", "device-2", "device-1"}
	for i, ticket := range list {
		if ticket.DeviceID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], ticket.DeviceID)
		}
	}
	if list[0].Number <= list[1].Number {
		t.Fatalf("expected increasing ticket numbers, got %d then %d", list[1].Number, list[0].Number)
	}
}

func TestRegistryListReturnsCopies(t *testing.T) {
	registry := NewRegistry()
	created, _ := registry.Upsert(breach("device-1", "temperature", 90, time.Now()))
	list := registry.List()
	list[0].Comments = append(list[0].Comments, "mutated")
	list[0].Status = alarms.StatusResolved

	stored, _ := registry.Get(created.Ticket.Number)
	if stored.Status != alarms.StatusOpen || len(stored.Comments) != 0 {
		t.Fatalf("registry state leaked through List: %+v", stored)
	}
}

func TestRegistryFindByDeviceMetric(t *testing.T) {
	registry := NewRegistry()
	created, _ := registry.Upsert(breach("device-1", "temperature", 90, time.Now()))

	found, ok := registry.Find("device-1", "temperature")
	if !ok || found.Number != created.Ticket.Number {
		t.Fatalf("expected ticket %d, got %+v ok=%v", created.Ticket.Number, found, ok)
	}
	found.Status = alarms.StatusResolved
	if stored, _ := registry.Get(created.Ticket.Number); stored.Status != alarms.StatusOpen {
		t.Fatalf("registry state leaked through Find: %+v", stored)
	}
	if _, ok := registry.Find("device-1", "humidity"); ok {
		t.Fatalf("expected no ticket for an untracked metric")
	}
}

type fixedNumberer struct {
	numbers []int64
}

func (f *fixedNumberer) Next() int64 {
	n := f.numbers[0]
	if len(f.numbers) > 1 {
		f.numbers = f.numbers[1:]
	}
	return n
}

func TestRegistrySkipsCollidingNumbers(t *testing.T) {
	registry := NewRegistry(WithTicketNumberer(&fixedNumberer{numbers: []int64{7, 7, 7, 8}}))
	first, _ := registry.Upsert(breach("device-1", "temperature", 90, time.Now()))
	second, _ := registry.Upsert(breach("device-2", "temperature", 90, time.Now()))
	if first.Ticket.Number != 7 || second.Ticket.Number != 8 {
		t.Fatalf("expected numbers 7 and 8, got %d and %d", first.Ticket.Number, second.Ticket.Number)
	}
}

func TestRegistryRestore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))
	persisted := []alarms.Ticket{
		{Number: clock.Now().UnixMilli() + 1000, DeviceID: "device-2", Metric: "humidity", Status: alarms.StatusResolved, CreatedAt: clock.Now().Add(-time.Minute)},
		{Number: clock.Now().UnixMilli() + 5000, DeviceID: "device-1", Metric: "temperature", Status: alarms.StatusOpen, CreatedAt: clock.Now()},
	}
	if err := registry.Restore(persisted); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if registry.List()[0].DeviceID != "device-1" {
		t.Fatalf("expected restored tickets ordered by creation")
	}

	result, err := registry.Upsert(breach("device-1", "temperature", 90, clock.Now()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if result.Created || result.Ticket.Number != persisted[1].Number {
		t.Fatalf("expected restored ticket to absorb reading, got %+v", result)
	}

	created, err := registry.Upsert(breach("device-9", "temperature", 90, clock.Now()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.Ticket.Number <= persisted[1].Number {
		t.Fatalf("new number %d must exceed restored %d", created.Ticket.Number, persisted[1].Number)
	}
}

func TestRegistryRestoreRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	dupKey := []alarms.Ticket{
		{Number: 1, DeviceID: "device-1", Metric: "temperature", Status: alarms.StatusOpen},
		{Number: 2, DeviceID: "device-1", Metric: "temperature", Status: alarms.StatusOpen},
	}
	if err := registry.Restore(dupKey); !errors.Is(err, alarms.ErrDuplicateTicket) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	dupNumber := []alarms.Ticket{
		{Number: 1, DeviceID: "device-1", Metric: "temperature", Status: alarms.StatusOpen},
		{Number: 1, DeviceID: "device-2", Metric: "temperature", Status: alarms.StatusOpen},
	}
	if err := registry.Restore(dupNumber); !errors.Is(err, alarms.ErrDuplicateTicket) {
		t.Fatalf("expected duplicate number error, got %v", err)
	}
	if registry.Len() != 0 {
		t.Fatalf("failed restore must not change the registry, got %d tickets", registry.Len())
	}
}

func TestRegistryConcurrentUpsertsSameKey(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := registry.Upsert(breach("device-1", "temperature", 90, time.Now())); err != nil {
				t.Errorf("upsert: %v", err)
			}
		}()
	}
	wg.Wait()
	if registry.Len() != 1 {
		t.Fatalf("expected one ticket after concurrent breaches, got %d", registry.Len())
	}
}
