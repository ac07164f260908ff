package weeverytrip

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricDecorated counts requests that left with a bearer token.
	MetricDecorated MetricID = iota
	// MetricDecoratedLegacy counts decorations that fell back to auth_token.
	MetricDecoratedLegacy
	// MetricDecorateSkipped counts requests sent without a token.
	MetricDecorateSkipped
	MetricRecoveryAttempt
	MetricRefreshSuccess
	MetricRefreshRejected
	MetricRefreshTransportError
	// MetricRefreshCoalesced counts 401s answered with an already rotated token.
	MetricRefreshCoalesced
	MetricSelfRefreshRejected
	MetricRetryDepthExceeded
	MetricNoRefreshToken
	MetricTokenPersistFailure
	MetricBodyNotReplayable
	// MetricAnonymousUnauthorized counts 401s on WithoutAuth requests.
	MetricAnonymousUnauthorized
	MetricSessionLockFailure
	MetricSessionEstablished
	MetricSessionInvalidated
	MetricLogout
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus the refresh latency
// histogram. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a copy of every counter at one instant.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricRefreshLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

// Bucket upper bounds: 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
