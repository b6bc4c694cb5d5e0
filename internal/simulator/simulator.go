package simulator

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	masterdata "telemetry-alarms/internal/masterdata/domain"
	telemetry "telemetry-alarms/internal/telemetry/domain"
)

const (
	maxValue       = 120
	fallbackMetric = "unknown"
)

// Publisher enqueues a reading.
type Publisher interface {
	Publish(ctx context.Context, reading telemetry.Reading) (string, error)
}

// DeviceSource lists the devices to simulate.
type DeviceSource interface {
	Profiles() []masterdata.DeviceProfile
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Simulator publishes a random reading for a random device on every tick.
type Simulator struct {
	publisher    Publisher
	profiles     []masterdata.DeviceProfile
	metrics      []string
	interval     time.Duration
	invalidRatio float64
	rng          *rand.Rand
	clock        Clock
	logger       zerolog.Logger
}

// Option configures the simulator.
type Option func(*Simulator)

// WithInvalidRatio sets the share of readings that use a metric the device does not allow.
func WithInvalidRatio(ratio float64) Option {
	return func(s *Simulator) {
		if ratio >= 0 && ratio <= 1 {
			s.invalidRatio = ratio
		}
	}
}

// WithSeed makes the generated sequence reproducible.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithClock overrides the clock used for reading timestamps.
func WithClock(clock Clock) Option {
	return func(s *Simulator) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// New constructs a simulator.
func New(publisher Publisher, devices DeviceSource, interval time.Duration, opts ...Option) (*Simulator, error) {
	if publisher == nil {
		return nil, errors.New("simulator: nil publisher")
	}
	if devices == nil {
		return nil, errors.New("simulator: nil devices")
	}
	if interval <= 0 {
		return nil, errors.New("simulator: interval must be positive")
	}
	profiles := devices.Profiles()
	if len(profiles) == 0 {
		return nil, errors.New("simulator: no devices")
	}
	s := &Simulator{
		publisher: publisher,
		profiles:  profiles,
		metrics:   allMetrics(profiles),
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:     systemClock{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "simulator").Logger()
	return s, nil
}

// Start publishes readings until ctx is cancelled.
func (s *Simulator) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Emit(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("publish simulated reading failed")
			}
		}
	}
}

// Emit publishes one generated reading.
func (s *Simulator) Emit(ctx context.Context) (telemetry.Reading, error) {
	reading := s.Next()
	if _, err := s.publisher.Publish(ctx, reading); err != nil {
		return reading, err
	}
	s.logger.Debug().Str("device_id", reading.DeviceID).Str("metric", reading.Metric).Float64("value", reading.Value).Msg("simulated reading")
	return reading, nil
}

// Next generates a reading without publishing it.
func (s *Simulator) Next() telemetry.Reading {
	profile := s.profiles[s.rng.Intn(len(s.profiles))]
	metric := profile.Metrics[s.rng.Intn(len(profile.Metrics))]
	if s.invalidRatio > 0 && s.rng.Float64() < s.invalidRatio {
		metric = s.disallowedMetric(profile)
	}
	return telemetry.Reading{
		DeviceID:  profile.ID,
		Metric:    metric,
		Value:     float64(s.rng.Intn(maxValue)),
		Timestamp: s.clock.Now().UTC(),
	}
}

func (s *Simulator) disallowedMetric(profile masterdata.DeviceProfile) string {
	candidates := make([]string, 0, len(s.metrics))
	for _, metric := range s.metrics {
		if !profile.Allows(metric) {
			candidates = append(candidates, metric)
		}
	}
	if len(candidates) == 0 {
		return fallbackMetric
	}
	return candidates[s.rng.Intn(len(candidates))]
}

func allMetrics(profiles []masterdata.DeviceProfile) []string {
	seen := make(map[string]struct{})
	for _, profile := range profiles {
		for _, metric := range profile.Metrics {
			seen[metric] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for metric := range seen {
		out = append(out, metric)
	}
	sort.Strings(out)
	return out
}
