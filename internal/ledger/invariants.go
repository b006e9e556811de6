package ledger

import (
	"fmt"
	"strings"

	"bookcore/internal/schema"
)

// InvariantsCheck audits the whole window against the tracked statistics and
// returns one line per violation; an empty string means the ledger is
// consistent. iteration only labels the messages.
//
// It holds the write guard for the duration of the scan.
func (l *Ledger) InvariantsCheck(iteration int) string {
	l.guard.Lock()
	defer l.guard.Unlock()

	b := l.view()
	st := b.stats
	var msgs strings.Builder
	report := func(format string, args ...any) {
		fmt.Fprintf(&msgs, format, args...)
		fmt.Fprintf(&msgs, " at iteration %d\n", iteration)
	}

	named := []struct {
		name string
		p    schema.NullPrice
	}{
		{"lowest bid", st.LowestBid},
		{"best bid", st.BestBid},
		{"best offer", st.BestOffer},
		{"highest offer", st.HighestOffer},
	}
	for _, s := range named {
		if s.p.Valid && !b.inRange(s.p.Price) {
			report("%s %d outside window", s.name, s.p.Price)
		}
	}
	if msgs.Len() > 0 {
		return msgs.String()
	}

	n := b.cells.n
	all := func(from, to int, ok func(int64) bool) bool {
		for i := from; i < to; i++ {
			if !ok(b.cells.at(i).Volume()) {
				return false
			}
		}
		return true
	}
	zero := func(v int64) bool { return v == 0 }
	nonNegative := func(v int64) bool { return v >= 0 }
	nonPositive := func(v int64) bool { return v <= 0 }

	if st.BestBid.Valid && st.LowestBid.Valid {
		if !all(b.index(st.BestBid.Price)+1, n, nonNegative) {
			report("invalid entry above best bid")
		}
		if !all(0, b.index(st.LowestBid.Price), zero) {
			report("invalid entry below lowest bid")
		}
	}
	if st.BestOffer.Valid && st.HighestOffer.Valid {
		if !all(b.index(st.HighestOffer.Price)+1, n, zero) {
			report("invalid entry above highest offer")
		}
		if !all(0, b.index(st.BestOffer.Price), nonPositive) {
			report("invalid entry below best offer")
		}
	}
	if !st.BestBid.Valid && !all(0, n, nonNegative) {
		report("bid liquidity without best bid")
	}
	if !st.BestOffer.Valid && !all(0, n, nonPositive) {
		report("offer liquidity without best offer")
	}

	if st.BestBid.Valid && st.BestOffer.Valid && st.BestBid.Price >= st.BestOffer.Price {
		report("best bid >= best offer")
	}
	if st.BestBid.Valid != st.LowestBid.Valid {
		report("best bid presence != lowest bid presence")
	}
	if st.BestOffer.Valid != st.HighestOffer.Valid {
		report("best offer presence != highest offer presence")
	}
	if st.BestBid.Price < st.LowestBid.Price {
		report("best bid < lowest bid")
	}
	if st.BestOffer.Price > st.HighestOffer.Price {
		report("best offer > highest offer")
	}

	empty := func(p schema.NullPrice) bool {
		return p.Valid && b.at(p.Price).Volume() == 0
	}
	if empty(st.LowestBid) {
		report("no liquidity at lowest bid")
	}
	if empty(st.BestBid) {
		report("no liquidity at best bid")
	}
	if empty(st.BestOffer) {
		report("no liquidity at best offer")
	}
	if empty(st.HighestOffer) {
		report("no liquidity at highest offer")
	}

	return msgs.String()
}
