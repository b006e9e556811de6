package gen

import (
	"testing"

	"bookcore/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErraticDeterministic(t *testing.T) {
	cfg := DefaultConfig(7, 5000)
	a, err := Erratic(cfg)
	require.NoError(t, err)
	b, err := Erratic(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 5000)
}

func TestErraticBounds(t *testing.T) {
	cfg := DefaultConfig(42, 20000)
	out, err := Erratic(cfg)
	require.NoError(t, err)

	counts := map[schema.Kind]int{}
	for _, inst := range out {
		counts[inst.Kind()]++
		switch o := inst.(type) {
		case schema.AddLimit:
			assert.NotZero(t, o.Volume)
			assert.GreaterOrEqual(t, o.Price, cfg.Center-cfg.Spread)
			assert.LessOrEqual(t, o.Price, cfg.Center+cfg.Spread)
		case schema.Market:
			assert.NotZero(t, o.Volume)
			assert.LessOrEqual(t, abs32(o.Volume), cfg.MaxVolume)
		}
	}
	assert.Positive(t, counts[schema.KindAddLimit])
	assert.Positive(t, counts[schema.KindWithdrawLimit])
	assert.Positive(t, counts[schema.KindMarket])
	assert.Less(t, counts[schema.KindWithdrawLimit], counts[schema.KindMarket])
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig(1, 10)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Spread = cfg.Center + 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.AddWeight, bad.WithdrawWeight, bad.MarketWeight = 0, 0, 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxVolume = 0
	assert.Error(t, bad.Validate())
}
