package ledger

import "bookcore/internal/schema"

// Supports reports whether the ledger processes instructions of kind k.
func Supports(k schema.Kind) bool {
	switch k {
	case schema.KindAddLimit, schema.KindWithdrawLimit, schema.KindMarket:
		return true
	default:
		return false
	}
}

func (b *book) apply(inst schema.Instruction) schema.Response {
	switch o := inst.(type) {
	case schema.AddLimit:
		return b.addLimit(o)
	case schema.WithdrawLimit:
		return b.withdrawLimit(o)
	case schema.Market:
		return b.market(o)
	default:
		return schema.Response{}
	}
}

// addLimit matches a crossing order against the opposite side and rests the
// remainder at its price. Out-of-window prices degrade to a zero-volume
// order at the base price and are flagged.
func (b *book) addLimit(o schema.AddLimit) schema.Response {
	price, volume := o.Price, int64(o.Volume)
	inRange := b.inRange(price)
	if !inRange {
		price, volume = b.base, 0
	}

	st := &b.stats
	end := int64(-1)
	switch {
	case volume < 0 && st.BestOffer.Valid && price >= st.BestOffer.Price:
		end = int64(st.HighestOffer.Price)
	case volume > 0 && st.BestBid.Valid && price <= st.BestBid.Price:
		end = int64(st.LowestBid.Price)
	}

	resp := b.runThroughBook(volume, end)
	if !inRange {
		resp.Status |= schema.StatusPriceOutOfRange
	}

	rest := volume - resp.Volume
	if rest == 0 {
		return resp
	}
	b.at(price).AddLiquidity(rest)

	if rest < 0 {
		if !st.LowestBid.Valid || st.LowestBid.Price > price {
			st.LowestBid = schema.SomePrice(price)
		}
		if !st.BestBid.Valid || st.BestBid.Price < price {
			st.BestBid = schema.SomePrice(price)
		}
		return resp
	}
	if !st.HighestOffer.Valid || st.HighestOffer.Price < price {
		st.HighestOffer = schema.SomePrice(price)
	}
	if !st.BestOffer.Valid || st.BestOffer.Price > price {
		st.BestOffer = schema.SomePrice(price)
	}
	return resp
}

// withdrawLimit removes up to |volume| of same-side liquidity at price. A
// zero-volume withdraw is never flagged, even with an out-of-window price.
func (b *book) withdrawLimit(o schema.WithdrawLimit) schema.Response {
	price, volume := o.Price, int64(o.Volume)
	hasVolume := volume != 0
	inRange := !hasVolume || b.inRange(price)
	if !inRange {
		price, volume = b.base, 0
	}

	var withdrawn int64
	exhausted := true
	if hasVolume {
		cell := b.at(price)
		withdrawn = cell.ConsumeLiquidity(volume)
		exhausted = cell.Volume() == 0
	}

	if exhausted {
		st := &b.stats
		if st.BestBid.Valid && st.BestBid.Price == price {
			st.BestBid = b.findLiquid(price, st.LowestBid)
		}
		if st.LowestBid.Valid && st.LowestBid.Price == price {
			st.LowestBid = b.findLiquid(price, st.BestBid)
		}
		if st.BestOffer.Valid && st.BestOffer.Price == price {
			st.BestOffer = b.findLiquid(price, st.HighestOffer)
		}
		if st.HighestOffer.Valid && st.HighestOffer.Price == price {
			st.HighestOffer = b.findLiquid(price, st.BestOffer)
		}
		if !st.BestBid.Valid {
			st.LowestBid = schema.NullPrice{}
		}
		if !st.BestOffer.Valid {
			st.HighestOffer = schema.NullPrice{}
		}
	}

	resp := schema.Response{Volume: withdrawn}
	if !inRange {
		resp.Status |= schema.StatusPriceOutOfRange
	}
	return resp
}

// market sweeps the opposite side up to its farthest resting price.
func (b *book) market(o schema.Market) schema.Response {
	volume := int64(o.Volume)
	st := &b.stats
	end := int64(-1)
	switch {
	case volume < 0 && st.HighestOffer.Valid:
		end = int64(st.HighestOffer.Price)
	case volume > 0 && st.LowestBid.Valid:
		end = int64(st.LowestBid.Price)
	}
	return b.runThroughBook(volume, end)
}
