package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDecodeReading(t *testing.T) {
	received := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reading, err := DecodeReading([]byte(`{"deviceId":"device-1","metric":"temperature","value":85.5,"timestamp":"2026-03-01T07:59:00+01:00","site":"S","assignee":"A"}`), received)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reading.DeviceID != "device-1" || reading.Metric != "temperature" || reading.Value != 85.5 {
		t.Fatalf("unexpected reading %+v", reading)
	}
	if !reading.Timestamp.Equal(time.Date(2026, 3, 1, 6, 59, 0, 0, time.UTC)) || reading.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %s", reading.Timestamp)
	}
	if reading.Site != "S" || reading.Assignee != "A" {
		t.Fatalf("expected overrides, got %+v", reading)
	}
}

func TestDecodeReadingNonNumericValues(t *testing.T) {
	for _, raw := range []string{`"85"`, `true`, `null`, `{}`, `[1]`} {
		reading, err := DecodeReading([]byte(`{"deviceId":"d","metric":"m","value":`+raw+`}`), time.Now())
		if err != nil {
			t.Fatalf("%s: decode: %v", raw, err)
		}
		if !math.IsNaN(reading.Value) || reading.Finite() {
			t.Fatalf("%s: expected NaN, got %v", raw, reading.Value)
		}
	}
	reading, err := DecodeReading([]byte(`{"deviceId":"d","metric":"m"}`), time.Now())
	if err != nil || reading.Finite() {
		t.Fatalf("missing value must decode to NaN, got %v %v", reading.Value, err)
	}
}

func TestDecodeReadingOverflow(t *testing.T) {
	reading, err := DecodeReading([]byte(`{"deviceId":"d","metric":"m","value":1e400}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !math.IsInf(reading.Value, 1) {
		t.Fatalf("expected +Inf, got %v", reading.Value)
	}
}

func TestDecodeReadingTimestamps(t *testing.T) {
	received := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reading, err := DecodeReading([]byte(`{"deviceId":"d","type":"m","value":1}`), received)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reading.Timestamp.Equal(received) || reading.Metric != "m" {
		t.Fatalf("expected receive time and legacy metric, got %+v", reading)
	}
	if _, err := DecodeReading([]byte(`{"deviceId":"d","metric":"m","value":1,"timestamp":"03/01/2026"}`), received); !errors.Is(err, ErrMalformedReading) {
		t.Fatalf("expected malformed reading, got %v", err)
	}
	if _, err := DecodeReading([]byte(`not json`), received); !errors.Is(err, ErrMalformedReading) {
		t.Fatalf("expected malformed reading, got %v", err)
	}
}

func TestEncodeReadingNonFinite(t *testing.T) {
	data, err := EncodeReading(Reading{DeviceID: "d", Metric: "m", Value: math.NaN()})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeReading(data, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Finite() {
		t.Fatalf("expected non-finite value to stay non-numeric")
	}
}
