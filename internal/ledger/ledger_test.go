package ledger

import (
	"sync"
	"testing"

	"bookcore/internal/gen"
	"bookcore/internal/schema"
	"bookcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, base uint32) *Ledger {
	t.Helper()
	l, err := New(Config{BasePrice: base, BookLength: 1000})
	require.NoError(t, err)
	return l
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{BookLength: 0})
	assert.ErrorIs(t, err, exception.ErrInvalidBookLength)

	_, err = New(Config{BasePrice: ^uint32(0) - 10, BookLength: 100})
	assert.Error(t, err)

	l, err := New(Config{BasePrice: 7, BookLength: 64, ExclusiveCacheLine: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), l.BasePrice())
	assert.Equal(t, uint32(64), l.BookLength())
}

func TestBestBidAsk(t *testing.T) {
	l := newTestLedger(t, 0)
	bid, ask := l.BestBidAsk()
	assert.False(t, bid.Valid)
	assert.False(t, ask.Valid)

	l.Process(schema.AddLimit{Volume: 1000, Price: 101})
	l.Process(schema.AddLimit{Volume: -1000, Price: 99})

	bid, ask = l.BestBidAsk()
	assert.Equal(t, schema.SomePrice(99), bid)
	assert.Equal(t, schema.SomePrice(101), ask)
}

func TestAddAndWithdraw(t *testing.T) {
	l := newTestLedger(t, 5)

	resp := l.Process(schema.AddLimit{Volume: 1000, Price: 100})
	assert.Equal(t, schema.Response{}, resp)
	assert.Equal(t, int64(1000), l.VolumeAtPrice(100))

	resp = l.Process(schema.WithdrawLimit{Volume: 1000, Price: 100})
	assert.Equal(t, schema.Response{Volume: 1000}, resp)
	assert.Zero(t, l.VolumeAtPrice(100))

	resp = l.Process(schema.AddLimit{Volume: -1000, Price: 100})
	assert.Equal(t, schema.Response{}, resp)
	assert.Equal(t, int64(-1000), l.VolumeAtPrice(100))

	resp = l.Process(schema.WithdrawLimit{Volume: -1000, Price: 100})
	assert.Equal(t, schema.Response{Volume: -1000}, resp)
	assert.Zero(t, l.VolumeAtPrice(100))

	resp = l.Process(schema.AddLimit{Volume: 1000, Price: 2000})
	assert.Equal(t, schema.Response{Status: schema.StatusPriceOutOfRange}, resp)
	assert.Zero(t, l.VolumeAtPrice(2000))
	assert.Zero(t, l.VolumeAtPrice(5))

	assert.Empty(t, l.InvariantsCheck(0))
	assert.Equal(t, schema.BookStats{}, l.Stats())
}

func TestRangeFlagAsymmetry(t *testing.T) {
	l := newTestLedger(t, 100)

	resp := l.Process(schema.AddLimit{Volume: 0, Price: 5000})
	assert.True(t, resp.Status.Has(schema.StatusPriceOutOfRange))

	resp = l.Process(schema.WithdrawLimit{Volume: 0, Price: 5000})
	assert.Equal(t, schema.Response{}, resp)

	resp = l.Process(schema.WithdrawLimit{Volume: 10, Price: 5000})
	assert.Equal(t, schema.Response{Status: schema.StatusPriceOutOfRange}, resp)

	resp = l.Process(schema.AddLimit{Volume: -10, Price: 99})
	assert.True(t, resp.Status.Has(schema.StatusPriceOutOfRange))
	assert.Zero(t, l.VolumeAtPrice(100))
}

func TestWindowIsInclusive(t *testing.T) {
	l := newTestLedger(t, 100)

	resp := l.Process(schema.AddLimit{Volume: 7, Price: 1100})
	assert.Zero(t, resp.Status)
	assert.Equal(t, int64(7), l.VolumeAtPrice(1100))

	resp = l.Process(schema.AddLimit{Volume: 7, Price: 1101})
	assert.True(t, resp.Status.Has(schema.StatusPriceOutOfRange))
	assert.Zero(t, l.VolumeAtPrice(1101))
	assert.Empty(t, l.InvariantsCheck(0))
}

func TestImmediateLimitMatching(t *testing.T) {
	l := newTestLedger(t, 0)

	l.Process(schema.AddLimit{Volume: -500, Price: 100})
	l.Process(schema.AddLimit{Volume: -500, Price: 101})
	resp := l.Process(schema.AddLimit{Volume: 2000, Price: 98})
	assert.Equal(t, schema.Response{Price: 100, Volume: 1000, Revenue: 101*500 + 100*500}, resp)
	assert.Zero(t, l.VolumeAtPrice(101))
	assert.Zero(t, l.VolumeAtPrice(100))
	assert.Equal(t, int64(1000), l.VolumeAtPrice(98))
	assert.Empty(t, l.InvariantsCheck(1))

	l.Process(schema.AddLimit{Volume: 500, Price: 100})
	l.Process(schema.AddLimit{Volume: 500, Price: 101})
	resp = l.Process(schema.AddLimit{Volume: -2000, Price: 103})
	assert.Equal(t, schema.Response{Price: 101, Volume: -2000, Revenue: 98*-1000 + 101*-500 + 100*-500}, resp)
	for _, p := range []uint32{98, 100, 101, 103} {
		assert.Zero(t, l.VolumeAtPrice(p), "price %d", p)
	}
	assert.Equal(t, schema.BookStats{}, l.Stats())
	assert.Empty(t, l.InvariantsCheck(2))
}

func TestNonCrossingLimitRests(t *testing.T) {
	l := newTestLedger(t, 0)

	l.Process(schema.AddLimit{Volume: 500, Price: 100})
	l.Process(schema.AddLimit{Volume: 500, Price: 101})
	resp := l.Process(schema.AddLimit{Volume: -2000, Price: 98})
	assert.Equal(t, schema.Response{}, resp)
	assert.Equal(t, int64(-2000), l.VolumeAtPrice(98))
	assert.Equal(t, int64(500), l.VolumeAtPrice(100))
	assert.Equal(t, int64(500), l.VolumeAtPrice(101))

	bid, ask := l.BestBidAsk()
	assert.Equal(t, schema.SomePrice(98), bid)
	assert.Equal(t, schema.SomePrice(100), ask)
	assert.Empty(t, l.InvariantsCheck(0))
}

func TestEmptyBookFillsNothing(t *testing.T) {
	l := newTestLedger(t, 0)

	assert.Equal(t, schema.Response{}, l.Process(schema.Market{Volume: -3500}))
	assert.Equal(t, schema.Response{}, l.Process(schema.Market{Volume: 3500}))

	assert.Equal(t, schema.Response{}, l.Process(schema.AddLimit{Volume: 500, Price: 100}))
	assert.Equal(t, int64(500), l.VolumeAtPrice(100))
	bid, ask := l.BestBidAsk()
	assert.False(t, bid.Valid)
	assert.Equal(t, schema.SomePrice(100), ask)
}

func TestCrossingRemainderRests(t *testing.T) {
	l := newTestLedger(t, 0)

	l.Process(schema.AddLimit{Volume: 500, Price: 100})
	l.Process(schema.AddLimit{Volume: 500, Price: 101})
	resp := l.Process(schema.AddLimit{Volume: -2000, Price: 101})
	assert.Equal(t, schema.Response{Price: 101, Volume: -1000, Revenue: -(100*500 + 101*500)}, resp)
	assert.Equal(t, int64(-1000), l.VolumeAtPrice(101))

	bid, ask := l.BestBidAsk()
	assert.Equal(t, schema.SomePrice(101), bid)
	assert.False(t, ask.Valid)
	assert.Empty(t, l.InvariantsCheck(0))
}

func seedLevels(l *Ledger, levels int) {
	for i := range levels {
		l.Process(schema.AddLimit{Volume: 1000, Price: uint32(101 + i)})
		l.Process(schema.AddLimit{Volume: -1000, Price: uint32(99 - i)})
	}
}

func TestMarketSufficientLiquidity(t *testing.T) {
	l := newTestLedger(t, 0)
	seedLevels(l, 10)

	bid, ask := l.BestBidAsk()
	require.Equal(t, schema.SomePrice(99), bid)
	require.Equal(t, schema.SomePrice(101), ask)

	resp := l.Process(schema.Market{Volume: -3500})
	assert.Equal(t, schema.Response{Price: 104, Volume: -3500, Revenue: -1000*101 - 1000*102 - 1000*103 - 500*104}, resp)
	assert.Zero(t, l.VolumeAtPrice(101))
	assert.Equal(t, int64(500), l.VolumeAtPrice(104))
	_, ask = l.BestBidAsk()
	assert.Equal(t, schema.SomePrice(104), ask)

	resp = l.Process(schema.Market{Volume: 3500})
	assert.Equal(t, schema.Response{Price: 96, Volume: 3500, Revenue: 1000*99 + 1000*98 + 1000*97 + 500*96}, resp)
	assert.Zero(t, l.VolumeAtPrice(99))
	assert.Equal(t, int64(-500), l.VolumeAtPrice(96))
	bid, _ = l.BestBidAsk()
	assert.Equal(t, schema.SomePrice(96), bid)

	assert.Empty(t, l.InvariantsCheck(0))
}

func TestMarketInsufficientLiquidity(t *testing.T) {
	l := newTestLedger(t, 0)
	seedLevels(l, 3)

	resp := l.Process(schema.Market{Volume: -3500})
	assert.Equal(t, schema.Response{Price: 103, Volume: -3000, Revenue: -1000*101 - 1000*102 - 1000*103}, resp)
	assert.Zero(t, l.VolumeAtPrice(103))
	_, ask := l.BestBidAsk()
	assert.False(t, ask.Valid)

	resp = l.Process(schema.Market{Volume: 3500})
	assert.Equal(t, schema.Response{Price: 97, Volume: 3000, Revenue: 1000*99 + 1000*98 + 1000*97}, resp)
	assert.Zero(t, l.VolumeAtPrice(97))
	bid, _ := l.BestBidAsk()
	assert.False(t, bid.Valid)

	assert.Equal(t, schema.BookStats{}, l.Stats())
	assert.Empty(t, l.InvariantsCheck(0))
}

func TestMarketOnEmptySideIsNoop(t *testing.T) {
	l := newTestLedger(t, 0)
	l.Process(schema.AddLimit{Volume: -100, Price: 50})

	assert.Equal(t, schema.Response{}, l.Process(schema.Market{Volume: -10}))
	assert.Equal(t, schema.Response{}, l.Process(schema.Market{Volume: 0}))
	assert.Equal(t, int64(-100), l.VolumeAtPrice(50))
}

func TestWithdrawRederivesStats(t *testing.T) {
	l := newTestLedger(t, 0)
	for _, p := range []uint32{90, 95, 99} {
		l.Process(schema.AddLimit{Volume: -10, Price: p})
	}
	for _, p := range []uint32{101, 105, 110} {
		l.Process(schema.AddLimit{Volume: 10, Price: p})
	}

	l.Process(schema.WithdrawLimit{Volume: -10, Price: 99})
	l.Process(schema.WithdrawLimit{Volume: -10, Price: 90})
	l.Process(schema.WithdrawLimit{Volume: 10, Price: 101})
	l.Process(schema.WithdrawLimit{Volume: 4, Price: 110})

	assert.Equal(t, schema.BookStats{
		BestBid:      schema.SomePrice(95),
		LowestBid:    schema.SomePrice(95),
		BestOffer:    schema.SomePrice(105),
		HighestOffer: schema.SomePrice(110),
	}, l.Stats())

	resp := l.Process(schema.WithdrawLimit{Volume: 10, Price: 95})
	assert.Zero(t, resp.Volume, "wrong side withdraw takes nothing")
	assert.Equal(t, int64(-10), l.VolumeAtPrice(95))

	l.Process(schema.WithdrawLimit{Volume: -10, Price: 95})
	st := l.Stats()
	assert.False(t, st.BestBid.Valid)
	assert.False(t, st.LowestBid.Valid)
	assert.Empty(t, l.InvariantsCheck(0))
}

func TestShiftBook(t *testing.T) {
	l := newTestLedger(t, 100)

	assert.False(t, l.ShiftBook(-200))
	l.Process(schema.AddLimit{Volume: -10, Price: 500})
	resp := l.Process(schema.AddLimit{Volume: -10, Price: 1400})
	assert.Equal(t, schema.StatusPriceOutOfRange, resp.Status)

	require.True(t, l.ShiftBook(300))
	assert.Equal(t, uint32(400), l.BasePrice())
	assert.Equal(t, int64(-10), l.VolumeAtPrice(500))
	require.True(t, l.ShiftBook(-300))
	assert.Equal(t, int64(-10), l.VolumeAtPrice(500))
	require.True(t, l.ShiftBook(300))

	resp = l.Process(schema.AddLimit{Volume: -10, Price: 1400})
	assert.Zero(t, resp.Status)
	l.Process(schema.AddLimit{Volume: -10, Price: 400})
	assert.Equal(t, int64(-10), l.VolumeAtPrice(400))
	assert.Equal(t, int64(-10), l.VolumeAtPrice(1400))

	assert.False(t, l.ShiftBook(-1))
	assert.False(t, l.ShiftBook(1))
	assert.Equal(t, uint32(400), l.BasePrice())
	assert.Empty(t, l.InvariantsCheck(0))
}

func TestShiftEmptyBook(t *testing.T) {
	l := newTestLedger(t, 10)
	assert.True(t, l.ShiftBook(0))
	assert.True(t, l.ShiftBook(5000))
	assert.Equal(t, uint32(5010), l.BasePrice())
	assert.True(t, l.ShiftBook(-5010))
	assert.Zero(t, l.BasePrice())
	assert.False(t, l.ShiftBook(-1))
}

func TestDepth(t *testing.T) {
	l := newTestLedger(t, 0)
	seedLevels(l, 5)
	l.Process(schema.WithdrawLimit{Volume: 1000, Price: 102})

	bids, asks := l.Depth(3)
	assert.Equal(t, []schema.Level{{Price: 99, Volume: -1000}, {Price: 98, Volume: -1000}, {Price: 97, Volume: -1000}}, bids)
	assert.Equal(t, []schema.Level{{Price: 101, Volume: 1000}, {Price: 103, Volume: 1000}, {Price: 104, Volume: 1000}}, asks)

	bids, asks = l.Depth(0)
	assert.Nil(t, bids)
	assert.Nil(t, asks)
}

func TestInvariantsCheckReportsCorruption(t *testing.T) {
	l := newTestLedger(t, 0)
	l.Process(schema.AddLimit{Volume: -10, Price: 50})
	l.cells.at(60).AddLiquidity(-5)
	l.cells.at(50).AddLiquidity(10)

	msgs := l.InvariantsCheck(17)
	assert.Contains(t, msgs, "invalid entry above best bid at iteration 17")
	assert.Contains(t, msgs, "no liquidity at best bid at iteration 17")
	assert.Contains(t, msgs, "no liquidity at lowest bid at iteration 17")
}

func TestConcurrentWriters(t *testing.T) {
	const perWriter = 200000
	l := newTestLedger(t, 0)

	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
	)
	for range 2 {
		wg.Go(func() {
			<-start
			for range perWriter {
				l.Process(schema.AddLimit{Volume: -1, Price: 100})
			}
		})
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(-2*perWriter), l.VolumeAtPrice(100))
}

func TestReadersDuringWrites(t *testing.T) {
	l := newTestLedger(t, 0)
	seedLevels(l, 10)

	var (
		stop sync.WaitGroup
		done = make(chan struct{})
	)
	stop.Go(func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			bid, ask := l.BestBidAsk()
			if bid.Valid && ask.Valid {
				assert.Less(t, bid.Price, ask.Price)
			}
			_ = l.VolumeAtPrice(100)
			_, _ = l.Depth(5)
		}
	})

	instructions, err := gen.Erratic(gen.Config{
		Seed: 3, Count: 20000, Center: 100, Spread: 50, MaxVolume: 500,
		AddWeight: 48, WithdrawWeight: 4, MarketWeight: 48, WithdrawLookback: 100,
	})
	require.NoError(t, err)
	for _, inst := range instructions {
		l.Process(inst)
	}
	close(done)
	stop.Wait()
}

func TestErraticStreamKeepsInvariants(t *testing.T) {
	instructions, err := gen.Erratic(gen.DefaultConfig(1, 100000))
	require.NoError(t, err)

	l := newTestLedger(t, 1000)
	twin := newTestLedger(t, 1000)
	for i, inst := range instructions {
		resp := l.Process(inst)
		require.Empty(t, l.InvariantsCheck(i))
		require.Equal(t, resp, twin.Process(inst), "iteration %d", i)
	}
}

func TestSupports(t *testing.T) {
	for _, k := range schema.Kinds() {
		assert.True(t, Supports(k), k.String())
	}
	assert.False(t, Supports(schema.KindUnknown))
	assert.Equal(t, schema.Response{}, newTestLedger(t, 0).Process(nil))
}

func BenchmarkProcessAddLimit(b *testing.B) {
	l, _ := New(Config{BasePrice: 0, BookLength: 1000})
	inst := schema.AddLimit{Volume: -1, Price: 100}
	for b.Loop() {
		l.Process(inst)
	}
}

func BenchmarkProcessErratic(b *testing.B) {
	instructions, _ := gen.Erratic(gen.DefaultConfig(1, 100000))
	l, _ := New(Config{BasePrice: 1000, BookLength: 1000})
	i := 0
	for b.Loop() {
		l.Process(instructions[i%len(instructions)])
		i++
	}
}
