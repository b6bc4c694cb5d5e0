package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	alarms "telemetry-alarms/internal/alarms/domain"
)

const defaultTicketsTable = "alarm_tickets"

// TicketRepository keeps a snapshot of every ticket in Postgres.
type TicketRepository struct {
	db    *sql.DB
	table string
}

// TicketOption configures the repository.
type TicketOption func(*TicketRepository)

// WithTicketsTable overrides table name.
func WithTicketsTable(table string) TicketOption {
	return func(r *TicketRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewTicketRepository constructs a repository.
func NewTicketRepository(db *sql.DB, opts ...TicketOption) *TicketRepository {
	repo := &TicketRepository{db: db, table: defaultTicketsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the table when missing.
func (r *TicketRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("ticket repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	ticket_number BIGINT PRIMARY KEY,
	device_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	name TEXT NOT NULL,
	site TEXT NOT NULL,
	assignee TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	operator TEXT NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_updated_at TIMESTAMPTZ NOT NULL,
	comments JSONB NOT NULL DEFAULT '[]'::jsonb,
	UNIQUE (device_id, metric)
)`, r.table))
	return err
}

// Save upserts the ticket snapshot.
func (r *TicketRepository) Save(ctx context.Context, ticket alarms.Ticket) error {
	if r == nil || r.db == nil {
		return errors.New("ticket repo: nil db")
	}
	if ticket.Number == 0 || ticket.DeviceID == "" || ticket.Metric == "" {
		return errors.New("ticket repo: invalid ticket")
	}
	comments := ticket.Comments
	if comments == nil {
		comments = []string{}
	}
	payload, err := json.Marshal(comments)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	ticket_number, device_id, metric, status, priority, name, site, assignee,
	value, operator, threshold, observed_at, created_at, last_updated_at, comments
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14, $15
)
ON CONFLICT (ticket_number) DO UPDATE SET
	status = EXCLUDED.status,
	priority = EXCLUDED.priority,
	site = EXCLUDED.site,
	assignee = EXCLUDED.assignee,
	value = EXCLUDED.value,
	operator = EXCLUDED.operator,
	threshold = EXCLUDED.threshold,
	observed_at = EXCLUDED.observed_at,
	last_updated_at = EXCLUDED.last_updated_at,
	comments = EXCLUDED.comments`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		ticket.Number, ticket.DeviceID, ticket.Metric, string(ticket.Status), ticket.Priority,
		ticket.Name, ticket.Site, ticket.Assignee, sanitizeFloat(ticket.Value), string(ticket.Rule.Operator),
		ticket.Rule.Threshold, ticket.ObservedAt.UTC(), ticket.CreatedAt.UTC(), ticket.LastUpdatedAt.UTC(), payload)
	return err
}

// List returns every stored ticket ordered by creation time.
func (r *TicketRepository) List(ctx context.Context) ([]alarms.Ticket, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ticket repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT ticket_number, device_id, metric, status, priority, name, site, assignee,
	value, operator, threshold, observed_at, created_at, last_updated_at, comments
FROM %s
ORDER BY created_at ASC, ticket_number ASC`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarms.Ticket
	for rows.Next() {
		var (
			ticket   alarms.Ticket
			status   string
			operator string
			comments []byte
		)
		if err := rows.Scan(
			&ticket.Number,
			&ticket.DeviceID,
			&ticket.Metric,
			&status,
			&ticket.Priority,
			&ticket.Name,
			&ticket.Site,
			&ticket.Assignee,
			&ticket.Value,
			&operator,
			&ticket.Rule.Threshold,
			&ticket.ObservedAt,
			&ticket.CreatedAt,
			&ticket.LastUpdatedAt,
			&comments,
		); err != nil {
			return nil, err
		}
		ticket.Status = alarms.Status(status)
		ticket.Rule.Operator = alarms.Operator(operator)
		ticket.ObservedAt = ticket.ObservedAt.UTC()
		ticket.CreatedAt = ticket.CreatedAt.UTC()
		ticket.LastUpdatedAt = ticket.LastUpdatedAt.UTC()
		ticket.Comments = []string{}
		if len(comments) > 0 {
			if err := json.Unmarshal(comments, &ticket.Comments); err != nil {
				return nil, fmt.Errorf("ticket repo: decode comments of %d: %w", ticket.Number, err)
			}
		}
		out = append(out, ticket)
	}
	return out, rows.Err()
}
