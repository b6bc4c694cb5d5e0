package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	alarms "telemetry-alarms/internal/alarms/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTicketRepositorySaveAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTicketRepository(db, WithTicketsTable("alarm_tickets_test"))
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_tickets_test")

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ticket := alarms.Ticket{
		Number:        1001,
		DeviceID:      "device-1",
		Metric:        "temperature",
		Status:        alarms.StatusOpen,
		Priority:      "high",
		Name:          alarms.TicketName("device-1", "temperature"),
		Site:          "Factory A",
		Assignee:      "alice",
		Value:         85,
		Rule:          alarms.Rule{Operator: alarms.OperatorGreater, Threshold: 80},
		ObservedAt:    at,
		CreatedAt:     at,
		LastUpdatedAt: at,
	}
	if err := repo.Save(ctx, ticket); err != nil {
		t.Fatalf("save: %v", err)
	}
	ticket.Status = alarms.StatusAcknowledged
	ticket.Comments = []string{"on it"}
	ticket.LastUpdatedAt = at.Add(time.Minute)
	if err := repo.Save(ctx, ticket); err != nil {
		t.Fatalf("save update: %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(list))
	}
	got := list[0]
	if got.Status != alarms.StatusAcknowledged || len(got.Comments) != 1 || got.Rule.Operator != alarms.OperatorGreater {
		t.Fatalf("unexpected ticket %+v", got)
	}
	if !got.LastUpdatedAt.Equal(ticket.LastUpdatedAt) {
		t.Fatalf("expected last update %s, got %s", ticket.LastUpdatedAt, got.LastUpdatedAt)
	}
}

func TestRuleRepositoryReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepository(db, WithRulesTable("alarm_rules_test"))
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_rules_test")

	if _, ok, err := repo.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}
	first := alarms.RuleSet{"device-1": {"temperature": {Operator: alarms.OperatorGreater, Threshold: 80}}}
	if err := repo.Replace(ctx, first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	second := alarms.RuleSet{"device-2": {"humidity": {Operator: alarms.OperatorLess, Threshold: 10}}}
	if err := repo.Replace(ctx, second); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rules, ok, err := repo.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if _, found := rules.Lookup("device-1", "temperature"); found {
		t.Fatalf("replace must drop old rules")
	}
	if rule, found := rules.Lookup("device-2", "humidity"); !found || rule.Threshold != 10 {
		t.Fatalf("unexpected rules %+v", rules)
	}
}
