package obs

import (
	"sync/atomic"
	"time"

	"bookcore/internal/codec"
	"bookcore/internal/schema"
)

const (
	maxKind    = int(schema.KindMarket)
	maxDiscard = int(codec.DiscardShortLength)
)

// Metrics collects lightweight counters and latency stats for the matching
// pipeline. All methods are safe on a nil receiver.
type Metrics struct {
	kindCounts    [maxKind + 1]atomic.Uint64
	discardCounts [maxDiscard + 1]atomic.Uint64
	resyncs       atomic.Uint64
	rangeErrors   atomic.Uint64
	shiftAccepted atomic.Uint64
	shiftRejected atomic.Uint64
	queueDrops    atomic.Uint64
	filledVolume  atomic.Uint64
	revenue       atomic.Int64

	processLatency LatencyStats
}

var _ codec.Observer = (*Metrics)(nil)

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	KindCounts     map[schema.Kind]uint64
	DiscardCounts  map[codec.DiscardReason]uint64
	Resyncs        uint64
	RangeErrors    uint64
	ShiftAccepted  uint64
	ShiftRejected  uint64
	QueueDrops     uint64
	FilledVolume   uint64
	Revenue        int64
	ProcessLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveFrame counts a decoded frame by kind.
func (m *Metrics) ObserveFrame(kind schema.Kind) {
	if m == nil {
		return
	}
	if idx := int(kind); idx < len(m.kindCounts) {
		m.kindCounts[idx].Add(1)
	}
}

// ObserveDiscard counts a dropped frame by reason.
func (m *Metrics) ObserveDiscard(reason codec.DiscardReason) {
	if m == nil {
		return
	}
	if idx := int(reason); idx < len(m.discardCounts) {
		m.discardCounts[idx].Add(1)
	}
}

func (m *Metrics) ObserveResync() {
	if m == nil {
		return
	}
	m.resyncs.Add(1)
}

// ObserveResponse records the outcome of one processed instruction and how long it took.
func (m *Metrics) ObserveResponse(resp schema.Response, d time.Duration) {
	if m == nil {
		return
	}
	if resp.Status.Has(schema.StatusPriceOutOfRange) {
		m.rangeErrors.Add(1)
	}
	vol := resp.Volume
	if vol < 0 {
		vol = -vol
	}
	m.filledVolume.Add(uint64(vol))
	m.revenue.Add(resp.Revenue)
	m.processLatency.Observe(d)
}

// ObserveShift records a window shift attempt.
func (m *Metrics) ObserveShift(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.shiftAccepted.Add(1)
		return
	}
	m.shiftRejected.Add(1)
}

// IncQueueDrop records an instruction dropped on a full queue.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Add(1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	kinds := make(map[schema.Kind]uint64)
	for i := range m.kindCounts {
		if v := m.kindCounts[i].Load(); v > 0 {
			kinds[schema.Kind(i)] = v
		}
	}
	discards := make(map[codec.DiscardReason]uint64)
	for i := range m.discardCounts {
		if v := m.discardCounts[i].Load(); v > 0 {
			discards[codec.DiscardReason(i)] = v
		}
	}
	return Snapshot{
		KindCounts:     kinds,
		DiscardCounts:  discards,
		Resyncs:        m.resyncs.Load(),
		RangeErrors:    m.rangeErrors.Load(),
		ShiftAccepted:  m.shiftAccepted.Load(),
		ShiftRejected:  m.shiftRejected.Load(),
		QueueDrops:     m.queueDrops.Load(),
		FilledVolume:   m.filledVolume.Load(),
		Revenue:        m.revenue.Load(),
		ProcessLatency: m.processLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Sum:   time.Duration(sum),
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
