package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcore/internal/codec"
	"bookcore/internal/schema"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFrame(schema.KindMarket)
	m.ObserveDiscard(codec.DiscardChecksum)
	m.ObserveResync()
	m.ObserveResponse(schema.Response{Volume: 3}, time.Microsecond)
	m.ObserveShift(true)
	m.IncQueueDrop()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveFrame(schema.KindAddLimit)
	m.ObserveFrame(schema.KindAddLimit)
	m.ObserveFrame(schema.KindMarket)
	m.ObserveDiscard(codec.DiscardOversized)
	m.ObserveResync()
	m.ObserveResponse(schema.Response{Volume: -5, Revenue: -15}, 2*time.Microsecond)
	m.ObserveResponse(schema.Response{Status: schema.StatusPriceOutOfRange}, 4*time.Microsecond)
	m.ObserveShift(true)
	m.ObserveShift(false)
	m.ObserveShift(false)
	m.IncQueueDrop()

	snap := m.Snapshot()
	assert.Equal(t, map[schema.Kind]uint64{schema.KindAddLimit: 2, schema.KindMarket: 1}, snap.KindCounts)
	assert.Equal(t, map[codec.DiscardReason]uint64{codec.DiscardOversized: 1}, snap.DiscardCounts)
	assert.EqualValues(t, 1, snap.Resyncs)
	assert.EqualValues(t, 1, snap.RangeErrors)
	assert.EqualValues(t, 1, snap.ShiftAccepted)
	assert.EqualValues(t, 2, snap.ShiftRejected)
	assert.EqualValues(t, 1, snap.QueueDrops)
	assert.EqualValues(t, 5, snap.FilledVolume)
	assert.EqualValues(t, -15, snap.Revenue)

	lat := snap.ProcessLatency
	assert.EqualValues(t, 2, lat.Count)
	assert.Equal(t, 2*time.Microsecond, lat.Min)
	assert.Equal(t, 4*time.Microsecond, lat.Max)
	assert.Equal(t, 3*time.Microsecond, lat.Avg)
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var l LatencyStats
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := 1; i <= 1000; i++ {
				l.Observe(time.Duration(g*1000 + i))
			}
		})
	}
	wg.Wait()
	snap := l.Snapshot()
	assert.EqualValues(t, 8000, snap.Count)
	assert.Equal(t, time.Duration(1), snap.Min)
	assert.Equal(t, time.Duration(8000), snap.Max)
}

func TestSequence(t *testing.T) {
	s := NewSequence(10)
	assert.EqualValues(t, 11, s.Next())
	assert.EqualValues(t, 12, s.Next())
	assert.EqualValues(t, 12, s.Last())

	var nilSeq *Sequence
	assert.Zero(t, nilSeq.Next())
}

type fixedBook struct {
	bid, ask schema.NullPrice
	base     uint32
}

func (b fixedBook) BestBidAsk() (schema.NullPrice, schema.NullPrice) { return b.bid, b.ask }
func (b fixedBook) BasePrice() uint32 { return b.base }

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelled(f *dto.MetricFamily, name, value string) *dto.Metric {
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == name && l.GetValue() == value {
				return m
			}
		}
	}
	return nil
}

func TestCollectorExports(t *testing.T) {
	m := NewMetrics()
	m.ObserveFrame(schema.KindWithdrawLimit)
	m.ObserveDiscard(codec.DiscardChecksum)
	m.ObserveDiscard(codec.DiscardChecksum)
	m.ObserveResponse(schema.Response{Volume: 7}, time.Millisecond)
	m.ObserveShift(false)

	book := fixedBook{bid: schema.SomePrice(990), base: 500}
	families := gather(t, NewCollector(m, book))

	inst := families["bookcore_instructions_total"]
	require.NotNil(t, inst)
	assert.Len(t, inst.GetMetric(), len(schema.Kinds()))
	assert.Equal(t, 1.0, labelled(inst, "kind", "WithdrawLimit").GetCounter().GetValue())

	discards := families["bookcore_frames_discarded_total"]
	require.NotNil(t, discards)
	assert.Equal(t, 2.0, labelled(discards, "reason", "checksum").GetCounter().GetValue())

	shifts := families["bookcore_window_shifts_total"]
	assert.Equal(t, 1.0, labelled(shifts, "result", "rejected").GetCounter().GetValue())

	assert.Equal(t, 7.0, families["bookcore_filled_volume_total"].GetMetric()[0].GetCounter().GetValue())

	lat := families["bookcore_process_latency_seconds"].GetMetric()[0].GetSummary()
	assert.EqualValues(t, 1, lat.GetSampleCount())
	assert.InDelta(t, 0.001, lat.GetSampleSum(), 1e-9)

	best := families["bookcore_best_price"]
	require.NotNil(t, best)
	require.Len(t, best.GetMetric(), 1)
	assert.Equal(t, 990.0, labelled(best, "side", "bid").GetGauge().GetValue())
	assert.Equal(t, 500.0, families["bookcore_window_base_price"].GetMetric()[0].GetGauge().GetValue())
}

func TestCollectorWithoutBook(t *testing.T) {
	families := gather(t, NewCollector(NewMetrics(), nil))
	assert.NotContains(t, families, "bookcore_best_price")
	assert.Contains(t, families, "bookcore_resyncs_total")
}

func TestMemoryReportLine(t *testing.T) {
	var m MemoryReport
	m.Sample()
	sink := make([][]byte, 0, 1024)
	for range 1000 {
		sink = append(sink, make([]byte, 64))
	}
	m.Sample()
	assert.NotEmpty(t, sink)
	assert.GreaterOrEqual(t, m.AllocGrowth(), uint64(64*1000))

	line := string(m.Line())
	assert.Contains(t, line, "[heap] alloc_grow=")
	assert.Contains(t, line, "[gc] runs=")
}

func TestAppendBytesCarries(t *testing.T) {
	assert.Equal(t, "100B", string(appendBytes(nil, 100)))
	assert.Equal(t, "32KB", string(appendBytes(nil, 32<<10)))
	assert.Equal(t, "40MB", string(appendBytes(nil, 40<<20)))
	assert.Equal(t, "65536GB", string(appendBytes(nil, 1<<46)))
}
