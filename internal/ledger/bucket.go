package ledger

import "sync/atomic"

// Bucket holds the signed resting volume at one price: negative for bids,
// positive for asks, zero when empty.
//
// Mutation happens only under the ledger's write guard; loads and stores are
// atomic so seqlock readers never race with the writer.
type Bucket struct {
	volume int64
}

// Volume returns the resting volume.
func (b *Bucket) Volume() int64 {
	return atomic.LoadInt64(&b.volume)
}

// AddLiquidity adds delta to the resting volume.
func (b *Bucket) AddLiquidity(delta int64) {
	b.set(b.Volume() + delta)
}

// ConsumeLiquidity takes up to |demand| from the bucket when demand has the
// same sign as the resting volume and returns the amount taken, signed like
// demand. A sign mismatch, an empty bucket or zero demand take nothing.
func (b *Bucket) ConsumeLiquidity(demand int64) int64 {
	resting := b.Volume()
	if demand == 0 || resting == 0 || (demand < 0) != (resting < 0) {
		return 0
	}
	filled := demand
	if abs(demand) > abs(resting) {
		filled = resting
	}
	b.set(resting - filled)
	return filled
}

func (b *Bucket) set(v int64) {
	atomic.StoreInt64(&b.volume, v)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
