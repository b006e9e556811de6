package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"bookcore/internal/codec"
	"bookcore/internal/schema"
)

const namespace = "bookcore"

// BookReader is the read side of a ledger the collector samples on scrape.
type BookReader interface {
	BestBidAsk() (bid, ask schema.NullPrice)
	BasePrice() uint32
}

// Collector exports Metrics, and optionally the current top of book, to Prometheus.
type Collector struct {
	m    *Metrics
	book BookReader

	instructions *prometheus.Desc
	discards     *prometheus.Desc
	resyncs      *prometheus.Desc
	rangeErrors  *prometheus.Desc
	shifts       *prometheus.Desc
	queueDrops   *prometheus.Desc
	filled       *prometheus.Desc
	latency      *prometheus.Desc
	bestPrice    *prometheus.Desc
	basePrice    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector wraps m. book may be nil.
func NewCollector(m *Metrics, book BookReader) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		m:            m,
		book:         book,
		instructions: desc("instructions_total", "Decoded instructions by kind.", "kind"),
		discards:     desc("frames_discarded_total", "Frames dropped by the decoder by reason.", "reason"),
		resyncs:      desc("resyncs_total", "Delimiter searches after losing frame alignment."),
		rangeErrors:  desc("price_out_of_range_total", "Instructions flagged with an out-of-range price."),
		shifts:       desc("window_shifts_total", "Window shift attempts by result.", "result"),
		queueDrops:   desc("queue_drops_total", "Instructions dropped on a full queue."),
		filled:       desc("filled_volume_total", "Absolute volume filled or withdrawn."),
		latency:      desc("process_latency_seconds", "Time spent applying one instruction to the ledger."),
		bestPrice:    desc("best_price", "Current best price per side.", "side"),
		basePrice:    desc("window_base_price", "Lowest price of the ledger window."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.instructions, c.discards, c.resyncs, c.rangeErrors, c.shifts,
		c.queueDrops, c.filled, c.latency, c.bestPrice, c.basePrice,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	for _, k := range schema.Kinds() {
		counter(c.instructions, snap.KindCounts[k], k.String())
	}
	for _, r := range []codec.DiscardReason{
		codec.DiscardUnknownLength, codec.DiscardChecksum, codec.DiscardOversized, codec.DiscardShortLength,
	} {
		counter(c.discards, snap.DiscardCounts[r], r.String())
	}
	counter(c.resyncs, snap.Resyncs)
	counter(c.rangeErrors, snap.RangeErrors)
	counter(c.shifts, snap.ShiftAccepted, "accepted")
	counter(c.shifts, snap.ShiftRejected, "rejected")
	counter(c.queueDrops, snap.QueueDrops)
	counter(c.filled, snap.FilledVolume)

	lat := snap.ProcessLatency
	ch <- prometheus.MustNewConstSummary(c.latency, lat.Count, lat.Sum.Seconds(), nil)

	if c.book == nil {
		return
	}
	bid, ask := c.book.BestBidAsk()
	if bid.Valid {
		ch <- prometheus.MustNewConstMetric(c.bestPrice, prometheus.GaugeValue, float64(bid.Price), "bid")
	}
	if ask.Valid {
		ch <- prometheus.MustNewConstMetric(c.bestPrice, prometheus.GaugeValue, float64(ask.Price), "ask")
	}
	ch <- prometheus.MustNewConstMetric(c.basePrice, prometheus.GaugeValue, float64(c.book.BasePrice()))
}
