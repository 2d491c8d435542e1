package authsession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one session counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRegisterSuccess
	MetricRegisterFailure
	MetricRecoverSuccess
	MetricRecoverFailure
	// MetricRenewSuccess counts renewal round-trips that rotated the pair.
	MetricRenewSuccess
	MetricRenewFailure
	// MetricRenewShared counts callers that attached to a renewal already
	// in flight instead of starting one.
	MetricRenewShared
	// MetricGatewayRetry counts requests re-sent after a renewal.
	MetricGatewayRetry
	// MetricTeardown counts forced transitions to Anonymous.
	MetricTeardown
	MetricLogout
	MetricLogoutNotifyFailure
	MetricRequestLatency
	metricIDCount
)

// latencyBoundsMs are the inclusive upper bounds of the finite latency
// buckets. One more bucket catches everything slower.
var latencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const latencyBucketCount = len(latencyBoundsMs) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a lock-free set of counters plus the gateway request latency
// histogram. A nil *Metrics is valid and records nothing.
type Metrics struct {
	counting bool
	timing   bool
	slots    [metricIDCount]counterSlot
	latency  [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters. Histograms hold
// non-cumulative bucket counts for ≤5ms, ≤10ms, ≤25ms, ≤50ms, ≤100ms,
// ≤250ms, ≤500ms and +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		counting: cfg.Enabled,
		timing:   cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.counting }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.timing }

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricRequestLatency {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d in the latency histogram. Any id other than
// MetricRequestLatency is ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricRequestLatency {
		return
	}
	m.latency[bucketIndex(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricRequestLatency {
		return 0
	}
	return m.slots[id].n.Load()
}

// Snapshot copies the current values. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}
	for id := range MetricRequestLatency {
		snap.Counters[id] = m.slots[id].n.Load()
	}
	if m.timing {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		snap.Histograms[MetricRequestLatency] = buckets
	}
	return snap
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBoundsMs)
}
