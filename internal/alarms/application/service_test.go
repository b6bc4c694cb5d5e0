package application

import (
	"context"
	"errors"
	"testing"
	"time"

	alarms "telemetry-alarms/internal/alarms/domain"
)

func TestServiceTransitionNotifies(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithRegistryClock(clock))
	notifier := &recordingNotifier{}
	service, err := NewService(NewRuleStore(nil), registry, WithServiceNotifier(notifier), WithServiceClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	created, _ := registry.Upsert(breach("device-1", "temperature", 90, clock.Now()))

	ticket, err := service.Transition(context.Background(), created.Ticket.Number, "snooze", "maintenance window")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ticket.Status != alarms.StatusSnoozed {
		t.Fatalf("expected snoozed, got %s", ticket.Status)
	}
	ticket, err = service.Transition(context.Background(), created.Ticket.Number, "unsnooze", "back")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ticket.Status != alarms.StatusUnsnoozed || len(ticket.Comments) != 2 {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	types := notifier.Types()
	if len(types) != 2 || types[0] != EventSnoozed || types[1] != EventUnsnoozed {
		t.Fatalf("unexpected events %v", types)
	}
	if notifier.events[0].Comment != "maintenance window" {
		t.Fatalf("expected comment on event, got %q", notifier.events[0].Comment)
	}
}

func TestServiceTransitionErrors(t *testing.T) {
	service, err := NewService(NewRuleStore(nil), NewRegistry())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := service.Transition(context.Background(), 1, "acknowledge", ""); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Transition(context.Background(), 1, "resolve", ""); !errors.Is(err, alarms.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := service.GetTicket(1); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceRules(t *testing.T) {
	service, err := NewService(NewRuleStore(nil), NewRegistry())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := service.GetRules(); got.Len() != 0 {
		t.Fatalf("expected no rules, got %d", got.Len())
	}
	stored, err := service.SetRules(context.Background(), alarms.RuleSet{
		"device-1": {"temperature": {Operator: alarms.OperatorGreater, Threshold: 70}},
	})
	if err != nil {
		t.Fatalf("set rules: %v", err)
	}
	if stored.Len() != 1 || service.GetRules().Len() != 1 {
		t.Fatalf("expected one rule")
	}
}
