package ledger

import "bookcore/internal/schema"

// book is the writer's working view of the ledger for one mutation. Handlers
// read and update stats here; the ledger publishes them when the write ends.
type book struct {
	base   uint32
	length uint32
	cells  cells
	stats  schema.BookStats
}

// inRange reports whether price lies in [base, base+length].
func (b *book) inRange(price uint32) bool {
	return price >= b.base && uint64(price) <= uint64(b.base)+uint64(b.length)
}

func (b *book) index(price uint32) int {
	return int(price - b.base)
}

func (b *book) at(price uint32) *Bucket {
	return b.cells.at(b.index(price))
}

// findLiquid returns the first non-empty price walking from start toward end
// inclusive, or only start itself when end is absent.
func (b *book) findLiquid(start uint32, end schema.NullPrice) schema.NullPrice {
	from := b.index(start)
	to := from
	if end.Valid {
		to = b.index(end.Price)
	}
	step := 1
	if to < from {
		step = -1
	}
	for i := from; ; i += step {
		if b.cells.at(i).Volume() != 0 {
			return schema.SomePrice(b.base + uint32(i))
		}
		if i == to {
			return schema.NullPrice{}
		}
	}
}

// runThroughBook walks the opposite side from its best price toward end,
// consuming liquidity until volume is filled, end is passed, or the window
// runs out. A negative end marks a dry run that fills nothing.
//
// After the walk the opposite side's best price is recomputed and its
// extreme cleared when the side is empty.
func (b *book) runThroughBook(volume int64, end int64) schema.Response {
	buy := volume < 0
	dummy := end < 0

	start := int64(-1)
	step := int64(-1)
	if buy {
		step = 1
		if b.stats.BestOffer.Valid {
			start = int64(b.stats.BestOffer.Price)
		}
	} else if b.stats.BestBid.Valid {
		start = int64(b.stats.BestBid.Price)
	}

	// A degenerate walk fills nothing.
	if dummy {
		volume = 0
	}
	open := volume

	var (
		revenue  int64
		marginal uint32
		base     = int64(b.base)
		top      = int64(b.length)
	)
	remaining := (end - start) * step
	for i := start - base; remaining >= 0 && open != 0 && i >= 0 && i <= top; i += step {
		filled := b.cells.at(int(i)).ConsumeLiquidity(-open)
		if filled != 0 {
			marginal = uint32(base + i)
		}
		revenue -= filled * (base + i)
		open += filled
		remaining--
	}

	st := &b.stats
	if !dummy {
		if buy && st.BestOffer.Valid {
			st.BestOffer = b.findLiquid(st.BestOffer.Price, st.HighestOffer)
		}
		if !buy && st.BestBid.Valid {
			st.BestBid = b.findLiquid(st.BestBid.Price, st.LowestBid)
		}
	}
	if !st.BestOffer.Valid {
		st.HighestOffer = schema.NullPrice{}
	}
	if !st.BestBid.Valid {
		st.LowestBid = schema.NullPrice{}
	}

	return schema.Response{
		Price:   marginal,
		Volume:  volume - open,
		Revenue: revenue,
	}
}
