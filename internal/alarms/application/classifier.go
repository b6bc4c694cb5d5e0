package application

import (
	alarms "telemetry-alarms/internal/alarms/domain"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

// InvalidReason explains why a reading was rejected.
type InvalidReason string

const (
	ReasonUnknownMetric InvalidReason = "unknown metric for device"
	ReasonNoRule        InvalidReason = "no rule configured"
	ReasonNonNumeric    InvalidReason = "non-numeric or NaN value"
	ReasonMalformed     InvalidReason = "malformed reading"
)

// MetricCatalog answers whether a device may emit a metric.
type MetricCatalog interface {
	Allows(deviceID, metric string) bool
}

// Classification is the result of Classify.
type Classification struct {
	Valid  bool
	Reason InvalidReason
	Rule   alarms.Rule
}

// Classify decides whether a reading can be evaluated. The checks run in order
// and the first failure wins. It has no side effects.
func Classify(reading telemetry.Reading, catalog MetricCatalog, rules alarms.RuleSet) Classification {
	if catalog == nil || reading.DeviceID == "" || reading.Metric == "" || !catalog.Allows(reading.DeviceID, reading.Metric) {
		return Classification{Reason: ReasonUnknownMetric}
	}
	rule, ok := rules.Lookup(reading.DeviceID, reading.Metric)
	if !ok {
		return Classification{Reason: ReasonNoRule}
	}
	if !reading.Finite() {
		return Classification{Reason: ReasonNonNumeric}
	}
	return Classification{Valid: true, Rule: rule}
}
