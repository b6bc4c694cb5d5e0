package memory

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	telemetry "telemetry-alarms/internal/telemetry/domain"
)

// DefaultRetention is the charting window kept for every series.
const DefaultRetention = 60 * time.Minute

// DefaultSweepInterval bounds how often idle series are purged.
const DefaultSweepInterval = time.Minute

// DefaultClockSkew is how far ahead of the local clock a point may move the window.
const DefaultClockSkew = time.Minute

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type series struct {
	mu     sync.Mutex
	points []telemetry.Point
}

// HistoryBuffer keeps a sliding window of recent points per device metric.
// Series are locked independently; the map lock is only taken exclusively to
// create or drop a series.
type HistoryBuffer struct {
	mu         sync.RWMutex
	series     map[string]*series
	retention  time.Duration
	maxPoints  int
	clockSkew  time.Duration
	sweepEvery time.Duration
	clock      Clock

	total     atomic.Int64
	lastSweep atomic.Int64
}

// HistoryOption configures the buffer.
type HistoryOption func(*HistoryBuffer)

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) HistoryOption {
	return func(h *HistoryBuffer) {
		if d > 0 {
			h.retention = d
		}
	}
}

// WithMaxPoints caps a single series; the oldest points go first.
func WithMaxPoints(n int) HistoryOption {
	return func(h *HistoryBuffer) {
		if n > 0 {
			h.maxPoints = n
		}
	}
}

// WithClockSkew bounds how far a point dated in the future moves the eviction window.
func WithClockSkew(d time.Duration) HistoryOption {
	return func(h *HistoryBuffer) {
		if d >= 0 {
			h.clockSkew = d
		}
	}
}

// WithSweepInterval overrides how often all series are purged.
func WithSweepInterval(d time.Duration) HistoryOption {
	return func(h *HistoryBuffer) {
		if d > 0 {
			h.sweepEvery = d
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) HistoryOption {
	return func(h *HistoryBuffer) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHistoryBuffer constructs an empty buffer.
func NewHistoryBuffer(opts ...HistoryOption) *HistoryBuffer {
	h := &HistoryBuffer{
		series:     make(map[string]*series),
		retention:  DefaultRetention,
		clockSkew:  DefaultClockSkew,
		sweepEvery: DefaultSweepInterval,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Append records a point and evicts everything outside the window from its series.
func (h *HistoryBuffer) Append(point telemetry.Point) {
	if h == nil {
		return
	}
	now := h.clock.Now().UTC()
	point.Timestamp = point.Timestamp.UTC()
	// A device clock running ahead must not push its whole series out of the window.
	ref := now
	if point.Timestamp.After(ref) {
		ref = point.Timestamp
	}
	if limit := now.Add(h.clockSkew); ref.After(limit) {
		ref = limit
	}
	cutoff := ref.Add(-h.retention)
	key := seriesKey(point.DeviceID, point.Metric)

	h.mu.RLock()
	s := h.series[key]
	if s != nil {
		h.appendLocked(s, point, cutoff)
		h.mu.RUnlock()
	} else {
		h.mu.RUnlock()
		h.mu.Lock()
		s = h.series[key]
		if s == nil {
			s = &series{}
			h.series[key] = s
		}
		h.appendLocked(s, point, cutoff)
		h.mu.Unlock()
	}

	h.maybeSweep(now)
}

// Query returns the in-window points of a series ordered by timestamp.
func (h *HistoryBuffer) Query(deviceID, metric string) []telemetry.Point {
	if h == nil {
		return nil
	}
	cutoff := h.clock.Now().UTC().Add(-h.retention)

	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.series[seriesKey(deviceID, metric)]
	if s == nil {
		return []telemetry.Point{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Timestamp.Before(cutoff)
	})
	return append([]telemetry.Point{}, s.points[start:]...)
}

// Len returns the number of stored points across all series.
func (h *HistoryBuffer) Len() int {
	if h == nil {
		return 0
	}
	return int(h.total.Load())
}

// Sweep evicts expired points from every series and drops empty series.
func (h *HistoryBuffer) Sweep() {
	if h == nil {
		return
	}
	cutoff := h.clock.Now().UTC().Add(-h.retention)
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, s := range h.series {
		s.mu.Lock()
		h.evict(s, cutoff)
		empty := len(s.points) == 0
		s.mu.Unlock()
		if empty {
			delete(h.series, key)
		}
	}
}

// appendLocked must be called with h.mu held in either mode.
func (h *HistoryBuffer) appendLocked(s *series, point telemetry.Point, cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Timestamp.After(point.Timestamp)
	})
	s.points = append(s.points, telemetry.Point{})
	copy(s.points[idx+1:], s.points[idx:])
	s.points[idx] = point
	h.total.Add(1)

	h.evict(s, cutoff)
	if h.maxPoints > 0 && len(s.points) > h.maxPoints {
		drop := len(s.points) - h.maxPoints
		s.points = append(s.points[:0], s.points[drop:]...)
		h.total.Add(int64(-drop))
	}
}

func (h *HistoryBuffer) evict(s *series, cutoff time.Time) {
	keep := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Timestamp.Before(cutoff)
	})
	if keep == 0 {
		return
	}
	s.points = append(s.points[:0], s.points[keep:]...)
	h.total.Add(int64(-keep))
}

func (h *HistoryBuffer) maybeSweep(now time.Time) {
	last := h.lastSweep.Load()
	if last == 0 {
		h.lastSweep.CompareAndSwap(0, now.UnixNano())
		return
	}
	if now.UnixNano()-last < int64(h.sweepEvery) {
		return
	}
	if h.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		h.Sweep()
	}
}

func seriesKey(deviceID, metric string) string {
	return deviceID + "|" + metric
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
