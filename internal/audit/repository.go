package audit

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"
)

// Repository writes the message log to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a message log repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// EnsureSchema creates the message_log table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS message_log (
	id TEXT PRIMARY KEY,
	observed_at TIMESTAMPTZ NOT NULL,
	device_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	value DOUBLE PRECISION NULL,
	ticket_status TEXT NOT NULL,
	ticket_number BIGINT NULL,
	reason TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL
)`)
	return err
}

// Log writes an entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var value sql.NullFloat64
	if entry.ValueString() != "" {
		value = sql.NullFloat64{Float64: entry.Value, Valid: true}
	}
	var number sql.NullInt64
	if entry.TicketNumber != 0 {
		number = sql.NullInt64{Int64: entry.TicketNumber, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO message_log (
	id, observed_at, device_id, metric, value, ticket_status, ticket_number, reason, message
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (id) DO NOTHING`, entry.ID, entry.Timestamp.UTC(), entry.DeviceID, entry.Metric, value,
		entry.TicketStatus, number, entry.Reason, entry.Message)
	return err
}

// ListSince returns entries observed at or after since, oldest first.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, observed_at, device_id, metric, value, ticket_status, ticket_number, reason, message
FROM message_log
WHERE observed_at >= $1
ORDER BY observed_at ASC`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry  Entry
			value  sql.NullFloat64
			number sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.DeviceID, &entry.Metric, &value,
			&entry.TicketStatus, &number, &entry.Reason, &entry.Message); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entry.Value = math.NaN()
		if value.Valid {
			entry.Value = value.Float64
		}
		entry.TicketNumber = number.Int64
		out = append(out, entry)
	}
	return out, rows.Err()
}
