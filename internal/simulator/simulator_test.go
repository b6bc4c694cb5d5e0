package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	masterdata "telemetry-alarms/internal/masterdata/domain"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

type recordingPublisher struct {
	mu       sync.Mutex
	readings []telemetry.Reading
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, reading telemetry.Reading) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.readings = append(p.readings, reading)
	return "id", nil
}

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readings)
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func testCatalog(t *testing.T) *masterdata.Catalog {
	t.Helper()
	catalog, err := masterdata.NewCatalog([]masterdata.DeviceProfile{
		{ID: "device-1", Metrics: []string{"temperature"}},
		{ID: "device-2", Metrics: []string{"humidity", "pressure"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return catalog
}

func TestNextGeneratesAllowedReadings(t *testing.T) {
	catalog := testCatalog(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sim, err := New(&recordingPublisher{}, catalog, time.Second, WithSeed(1), WithClock(fakeClock{now: at}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 200; i++ {
		reading := sim.Next()
		if !catalog.Allows(reading.DeviceID, reading.Metric) {
			t.Fatalf("unexpected metric %s for %s", reading.Metric, reading.DeviceID)
		}
		if reading.Value < 0 || reading.Value >= 120 || reading.Value != float64(int(reading.Value)) {
			t.Fatalf("value out of range: %v", reading.Value)
		}
		if !reading.Timestamp.Equal(at) {
			t.Fatalf("unexpected timestamp %s", reading.Timestamp)
		}
	}
}

func TestInvalidRatioUsesDisallowedMetrics(t *testing.T) {
	catalog := testCatalog(t)
	sim, _ := New(&recordingPublisher{}, catalog, time.Second, WithSeed(2), WithInvalidRatio(1))
	for i := 0; i < 50; i++ {
		reading := sim.Next()
		if catalog.Allows(reading.DeviceID, reading.Metric) {
			t.Fatalf("expected disallowed metric, got %s for %s", reading.Metric, reading.DeviceID)
		}
	}
}

func TestEmitPublishes(t *testing.T) {
	publisher := &recordingPublisher{}
	sim, _ := New(publisher, testCatalog(t), time.Second, WithSeed(3))
	if _, err := sim.Emit(context.Background()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if publisher.Len() != 1 {
		t.Fatalf("expected 1 reading, got %d", publisher.Len())
	}
	publisher.err = errors.New("queue closed")
	if _, err := sim.Emit(context.Background()); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	publisher := &recordingPublisher{}
	sim, _ := New(publisher, testCatalog(t), 5*time.Millisecond, WithSeed(4))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Start(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for publisher.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
	if publisher.Len() < 3 {
		t.Fatalf("expected readings while running, got %d", publisher.Len())
	}
}

func TestNewValidates(t *testing.T) {
	catalog := testCatalog(t)
	if _, err := New(nil, catalog, time.Second); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
	if _, err := New(&recordingPublisher{}, catalog, 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	empty, _ := masterdata.NewCatalog(nil)
	if _, err := New(&recordingPublisher{}, empty, time.Second); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}
