package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	alarms "telemetry-alarms/internal/alarms/domain"
)

const defaultRulesTable = "alarm_rules"

// RuleRepository stores the threshold rule mapping.
type RuleRepository struct {
	db    *sql.DB
	table string
}

// RuleOption configures the repository.
type RuleOption func(*RuleRepository)

// WithRulesTable overrides table name.
func WithRulesTable(table string) RuleOption {
	return func(r *RuleRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB, opts ...RuleOption) *RuleRepository {
	repo := &RuleRepository{db: db, table: defaultRulesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the table when missing.
func (r *RuleRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	device_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	operator TEXT NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (device_id, metric)
)`, r.table))
	return err
}

// Replace swaps the stored mapping for rules in one transaction.
func (r *RuleRepository) Replace(ctx context.Context, rules alarms.RuleSet) (err error) {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", r.table)); err != nil {
		return err
	}
	insert := fmt.Sprintf(`INSERT INTO %s (device_id, metric, operator, threshold) VALUES ($1, $2, $3, $4)`, r.table)
	for deviceID, byMetric := range rules {
		for metric, rule := range byMetric {
			if _, err = tx.ExecContext(ctx, insert, deviceID, metric, string(rule.Operator), sanitizeFloat(rule.Threshold)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Load returns the stored mapping. ok is false when no rule has ever been stored.
func (r *RuleRepository) Load(ctx context.Context) (alarms.RuleSet, bool, error) {
	if r == nil || r.db == nil {
		return nil, false, errors.New("rule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT device_id, metric, operator, threshold FROM %s`, r.table))
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	rules := alarms.RuleSet{}
	for rows.Next() {
		var (
			deviceID, metric, operator string
			threshold                  float64
		)
		if err := rows.Scan(&deviceID, &metric, &operator, &threshold); err != nil {
			return nil, false, err
		}
		if rules[deviceID] == nil {
			rules[deviceID] = make(map[string]alarms.Rule)
		}
		rules[deviceID][metric] = alarms.Rule{Operator: alarms.ParseOperator(operator), Threshold: threshold}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return rules, len(rules) > 0, nil
}

// sanitizeFloat maps NaN and infinities to zero; Postgres accepts them but
// the JSON surfaces reading the snapshot do not.
func sanitizeFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
