package application

import (
	"github.com/rs/zerolog"

	alarms "telemetry-alarms/internal/alarms/domain"
	"telemetry-alarms/internal/observability/metrics"
)

// Exceeds applies a threshold rule. Unsupported operators never breach.
func Exceeds(value float64, rule alarms.Rule) bool {
	switch rule.Operator {
	case alarms.OperatorGreater:
		return value > rule.Threshold
	case alarms.OperatorGreaterOrEqual:
		return value >= rule.Threshold
	case alarms.OperatorLess:
		return value < rule.Threshold
	case alarms.OperatorLessOrEqual:
		return value <= rule.Threshold
	default:
		return false
	}
}

// RuleEvaluator wraps Exceeds and reports unsupported operators.
type RuleEvaluator struct {
	logger zerolog.Logger
}

// NewRuleEvaluator constructs an evaluator.
func NewRuleEvaluator(logger zerolog.Logger) *RuleEvaluator {
	return &RuleEvaluator{logger: logger.With().Str("component", "rule_evaluator").Logger()}
}

// Evaluate reports whether value breaches rule for the device metric.
func (e *RuleEvaluator) Evaluate(deviceID, metric string, value float64, rule alarms.Rule) bool {
	if !rule.Operator.Valid() {
		metrics.IncConfigAnomaly(deviceID, metric)
		if e != nil {
			e.logger.Warn().
				Str("device_id", deviceID).
				Str("metric", metric).
				Str("operator", string(rule.Operator)).
				Msg("unsupported rule operator, treating as no breach")
		}
		return false
	}
	return Exceeds(value, rule)
}
