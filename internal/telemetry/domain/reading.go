package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedReading indicates a payload that cannot be turned into a Reading.
var ErrMalformedReading = errors.New("telemetry: malformed reading")

// Reading is one telemetry sample for a device metric.
type Reading struct {
	MessageID string    `json:"message_id,omitempty"`
	DeviceID  string    `json:"device_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Site      string    `json:"site,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	Priority  string    `json:"priority,omitempty"`
}

// Key returns the device|metric routing key.
func (r Reading) Key() string {
	return r.DeviceID + "|" + r.Metric
}

// Finite reports whether the value is a usable number.
func (r Reading) Finite() bool {
	return !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0)
}

type wireReading struct {
	DeviceID    string          `json:"deviceId"`
	DeviceIDAlt string          `json:"device_id,omitempty"`
	Metric      string          `json:"metric"`
	Type        string          `json:"type,omitempty"`
	Value       json.RawMessage `json:"value"`
	Timestamp   string          `json:"timestamp"`
	Site        string          `json:"site,omitempty"`
	Assignee    string          `json:"assignee,omitempty"`
	Priority    string          `json:"priority,omitempty"`
}

// DecodeReading parses the queue wire format.
// Non-numeric values decode to NaN so the classifier can reject them; a missing
// timestamp falls back to receivedAt.
func DecodeReading(data []byte, receivedAt time.Time) (Reading, error) {
	var wire wireReading
	if err := json.Unmarshal(data, &wire); err != nil {
		return Reading{}, errors.Join(ErrMalformedReading, err)
	}

	reading := Reading{
		DeviceID: strings.TrimSpace(firstNonEmpty(wire.DeviceID, wire.DeviceIDAlt)),
		Metric:   strings.TrimSpace(firstNonEmpty(wire.Metric, wire.Type)),
		Value:    decodeValue(wire.Value),
		Site:     wire.Site,
		Assignee: wire.Assignee,
		Priority: wire.Priority,
	}

	ts := strings.TrimSpace(wire.Timestamp)
	if ts == "" {
		reading.Timestamp = receivedAt.UTC()
		return reading, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return reading, errors.Join(ErrMalformedReading, err)
	}
	reading.Timestamp = parsed.UTC()
	return reading, nil
}

// EncodeReading renders a reading in the queue wire format.
func EncodeReading(reading Reading) ([]byte, error) {
	wire := wireReading{
		DeviceID: reading.DeviceID,
		Metric:   reading.Metric,
		Value:    json.RawMessage("null"),
		Site:     reading.Site,
		Assignee: reading.Assignee,
		Priority: reading.Priority,
	}
	if reading.Finite() {
		wire.Value = json.RawMessage(strconv.FormatFloat(reading.Value, 'f', -1, 64))
	}
	if !reading.Timestamp.IsZero() {
		wire.Timestamp = reading.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(wire)
}

func decodeValue(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return math.NaN()
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return math.NaN()
	}
	number, ok := value.(json.Number)
	if !ok {
		return math.NaN()
	}
	parsed, err := strconv.ParseFloat(number.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// Point is one recorded sample of a device metric.
type Point struct {
	DeviceID  string    `json:"deviceId"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the history sample of the reading.
func (r Reading) Point() Point {
	return Point{DeviceID: r.DeviceID, Metric: r.Metric, Value: r.Value, Timestamp: r.Timestamp}
}
