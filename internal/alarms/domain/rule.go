package alarms

import (
	"encoding/json"
	"strings"
)

// Operator is a threshold comparison.
type Operator string

const (
	OperatorGreater        Operator = ">"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLess           Operator = "<"
	OperatorLessOrEqual    Operator = "<="
)

// ParseOperator normalizes operator spelling. Unknown operators are kept as-is
// so they can be reported as configuration anomalies at evaluation time.
func ParseOperator(value string) Operator {
	switch strings.TrimSpace(value) {
	case ">":
		return OperatorGreater
	case ">=", "≥", "=>":
		return OperatorGreaterOrEqual
	case "<":
		return OperatorLess
	case "<=", "≤", "=<":
		return OperatorLessOrEqual
	default:
		return Operator(strings.TrimSpace(value))
	}
}

// Valid returns true when operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OperatorGreater, OperatorGreaterOrEqual, OperatorLess, OperatorLessOrEqual:
		return true
	default:
		return false
	}
}

// UnmarshalJSON accepts any operator spelling handled by ParseOperator.
func (o *Operator) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = ParseOperator(raw)
	return nil
}

// Rule is a threshold condition for one device metric.
type Rule struct {
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"value"`
}

// RuleSet maps device id -> metric -> rule.
type RuleSet map[string]map[string]Rule

// Lookup returns the rule configured for a device metric.
func (s RuleSet) Lookup(deviceID, metric string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	metrics, ok := s[deviceID]
	if !ok {
		return Rule{}, false
	}
	rule, ok := metrics[metric]
	return rule, ok
}

// Clone returns a deep copy.
func (s RuleSet) Clone() RuleSet {
	if s == nil {
		return RuleSet{}
	}
	out := make(RuleSet, len(s))
	for deviceID, metrics := range s {
		copied := make(map[string]Rule, len(metrics))
		for metric, rule := range metrics {
			copied[metric] = rule
		}
		out[deviceID] = copied
	}
	return out
}

// Len returns the number of configured rules.
func (s RuleSet) Len() int {
	n := 0
	for _, metrics := range s {
		n += len(metrics)
	}
	return n
}
