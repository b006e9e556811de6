package ledger

import (
	"math"
	"sync/atomic"

	"bookcore/internal/guard"
	"bookcore/internal/schema"
	"bookcore/pkg/exception"

	"github.com/yanun0323/errors"
)

// Config describes the price window of a ledger.
type Config struct {
	// BasePrice is the lowest addressable price.
	BasePrice uint32
	// BookLength is the width of the window; prices base..base+BookLength are addressable.
	BookLength uint32
	// ExclusiveCacheLine pads every bucket to its own cache line.
	ExclusiveCacheLine bool
}

// Validate checks if the configuration describes a usable window.
func (c Config) Validate() error {
	if c.BookLength == 0 {
		return exception.ErrInvalidBookLength
	}
	if uint64(c.BasePrice)+uint64(c.BookLength) > math.MaxUint32 {
		return errors.Wrapf(exception.ErrPriceWindowOverflow, "base: %d, length: %d", c.BasePrice, c.BookLength)
	}
	return nil
}

// Ledger is a fixed-width window of price buckets with a single writer and
// lock-free readers.
//
// Process and ShiftBook serialize on a spin guard. BestBidAsk, VolumeAtPrice
// and the other queries never block the writer; they retry until they observe
// a state no mutation interleaved with.
type Ledger struct {
	guard guard.SpinGuard
	seq   guard.SeqLock

	length uint32
	cells  cells

	base         atomic.Uint32
	bestBid      atomic.Uint64
	lowestBid    atomic.Uint64
	bestOffer    atomic.Uint64
	highestOffer atomic.Uint64
}

// New allocates a zeroed ledger for the configured window.
func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		length: cfg.BookLength,
		cells:  newCells(int(cfg.BookLength)+1, cfg.ExclusiveCacheLine),
	}
	l.base.Store(cfg.BasePrice)
	return l, nil
}

// Process applies one instruction and returns its outcome.
func (l *Ledger) Process(inst schema.Instruction) schema.Response {
	if inst == nil {
		return schema.Response{}
	}

	l.guard.Lock()
	defer l.guard.Unlock()

	l.seq.BeginWrite()
	b := l.view()
	resp := b.apply(inst)
	l.publish(b.stats)
	l.seq.EndWrite()
	return resp
}

// ShiftBook moves the window by delta price units, keeping every resting
// volume at its absolute price. It reports false and changes nothing when
// resting liquidity would fall outside the new window or the base would
// leave the price domain.
func (l *Ledger) ShiftBook(delta int32) bool {
	l.guard.Lock()
	defer l.guard.Unlock()

	b := l.view()
	newBase := int64(b.base) + int64(delta)
	if newBase < 0 || newBase+int64(b.length) > math.MaxUint32 {
		return false
	}
	if delta == 0 {
		return true
	}

	st := b.stats
	empty := !st.BestBid.Valid && !st.BestOffer.Valid
	if !empty {
		base := int64(b.base)
		maxPrice := base + int64(b.length)

		top := base
		switch {
		case st.HighestOffer.Valid:
			top = int64(st.HighestOffer.Price)
		case st.BestBid.Valid:
			top = int64(st.BestBid.Price)
		}
		bottom := maxPrice
		switch {
		case st.LowestBid.Valid:
			bottom = int64(st.LowestBid.Price)
		case st.BestOffer.Valid:
			bottom = int64(st.BestOffer.Price)
		}

		freeTop, freeBottom := maxPrice-top, bottom-base
		if delta > 0 && freeBottom < int64(delta) {
			return false
		}
		if delta < 0 && freeTop < -int64(delta) {
			return false
		}
	}

	l.seq.BeginWrite()
	if !empty {
		l.cells.shift(int(delta))
	}
	l.base.Store(uint32(newBase))
	l.seq.EndWrite()
	return true
}

// BestBidAsk returns the best bid and best offer.
func (l *Ledger) BestBidAsk() (bid, ask schema.NullPrice) {
	l.seq.Read(func() {
		bid = unpackPrice(l.bestBid.Load())
		ask = unpackPrice(l.bestOffer.Load())
	})
	return bid, ask
}

// Stats returns all tracked extreme prices.
func (l *Ledger) Stats() schema.BookStats {
	var st schema.BookStats
	l.seq.Read(func() {
		st = l.loadStats()
	})
	return st
}

// BasePrice returns the lowest addressable price.
func (l *Ledger) BasePrice() uint32 {
	var base uint32
	l.seq.Read(func() {
		base = l.base.Load()
	})
	return base
}

// BookLength returns the window width.
func (l *Ledger) BookLength() uint32 {
	return l.length
}

// VolumeAtPrice returns the resting volume at price, or 0 outside the window.
func (l *Ledger) VolumeAtPrice(price uint32) int64 {
	var vol int64
	l.seq.Read(func() {
		vol = 0
		base := l.base.Load()
		if price < base || uint64(price) > uint64(base)+uint64(l.length) {
			return
		}
		vol = l.cells.at(int(price - base)).Volume()
	})
	return vol
}

// Depth returns up to n non-empty levels per side, best first.
func (l *Ledger) Depth(n int) (bids, asks []schema.Level) {
	if n <= 0 {
		return nil, nil
	}
	l.seq.Read(func() {
		bids, asks = bids[:0], asks[:0]
		base := int64(l.base.Load())
		top := base + int64(l.length)
		st := l.loadStats()
		if st.BestBid.Valid && st.LowestBid.Valid {
			from := min(int64(st.BestBid.Price), top)
			to := max(int64(st.LowestBid.Price), base)
			for p := from; p >= to && len(bids) < n; p-- {
				if v := l.cells.at(int(p - base)).Volume(); v != 0 {
					bids = append(bids, schema.Level{Price: uint32(p), Volume: v})
				}
			}
		}
		if st.BestOffer.Valid && st.HighestOffer.Valid {
			from := max(int64(st.BestOffer.Price), base)
			to := min(int64(st.HighestOffer.Price), top)
			for p := from; p <= to && len(asks) < n; p++ {
				if v := l.cells.at(int(p - base)).Volume(); v != 0 {
					asks = append(asks, schema.Level{Price: uint32(p), Volume: v})
				}
			}
		}
	})
	return bids, asks
}

func (l *Ledger) view() book {
	return book{
		base:   l.base.Load(),
		length: l.length,
		cells:  l.cells,
		stats:  l.loadStats(),
	}
}

func (l *Ledger) loadStats() schema.BookStats {
	return schema.BookStats{
		BestBid:      unpackPrice(l.bestBid.Load()),
		LowestBid:    unpackPrice(l.lowestBid.Load()),
		BestOffer:    unpackPrice(l.bestOffer.Load()),
		HighestOffer: unpackPrice(l.highestOffer.Load()),
	}
}

func (l *Ledger) publish(st schema.BookStats) {
	l.bestBid.Store(packPrice(st.BestBid))
	l.lowestBid.Store(packPrice(st.LowestBid))
	l.bestOffer.Store(packPrice(st.BestOffer))
	l.highestOffer.Store(packPrice(st.HighestOffer))
}

const presentBit = 1 << 32

func packPrice(p schema.NullPrice) uint64 {
	if !p.Valid {
		return 0
	}
	return presentBit | uint64(p.Price)
}

func unpackPrice(v uint64) schema.NullPrice {
	return schema.NullPrice{Price: uint32(v), Valid: v&presentBit != 0}
}
