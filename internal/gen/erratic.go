// Package gen produces random but valid instruction streams for soak tests
// and tape generation.
package gen

import (
	"fmt"
	"math/rand"

	"bookcore/internal/schema"
)

// Config controls erratic stream generation.
type Config struct {
	Seed int64
	// Count is the number of instructions to produce.
	Count int
	// Center is the starting point of the price random walk.
	Center uint32
	// Spread bounds the walk to [Center-Spread, Center+Spread].
	Spread uint32
	// MaxVolume bounds |volume| of add and market instructions.
	MaxVolume int32
	// AddWeight, WithdrawWeight and MarketWeight are relative instruction mix weights.
	AddWeight      int
	WithdrawWeight int
	MarketWeight   int
	// WithdrawLookback is how many of the latest adds a withdraw may target.
	WithdrawLookback int
}

// DefaultConfig mirrors the classic soak mix: 48% add, 4% withdraw, 48% market.
func DefaultConfig(seed int64, count int) Config {
	return Config{
		Seed:             seed,
		Count:            count,
		Center:           1000,
		Spread:           500,
		MaxVolume:        3000,
		AddWeight:        48,
		WithdrawWeight:   4,
		MarketWeight:     48,
		WithdrawLookback: 100,
	}
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("invalid gen config: Count must be >= 0")
	}
	if c.Spread > c.Center {
		return fmt.Errorf("invalid gen config: Spread must be <= Center")
	}
	if c.MaxVolume <= 0 {
		return fmt.Errorf("invalid gen config: MaxVolume must be > 0")
	}
	if c.AddWeight < 0 || c.WithdrawWeight < 0 || c.MarketWeight < 0 {
		return fmt.Errorf("invalid gen config: weights must be >= 0")
	}
	if c.AddWeight+c.WithdrawWeight+c.MarketWeight == 0 {
		return fmt.Errorf("invalid gen config: weights sum to zero")
	}
	if c.WithdrawLookback <= 0 {
		return fmt.Errorf("invalid gen config: WithdrawLookback must be > 0")
	}
	return nil
}

// Erratic returns Count instructions. Prices follow a bounded random walk,
// volumes are uniform and never zero, and withdrawals target one of the
// latest adds: usually its full volume, sometimes a random part of it.
func Erratic(cfg Config) ([]schema.Instruction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	total := cfg.AddWeight + cfg.WithdrawWeight + cfg.MarketWeight

	var (
		out   = make([]schema.Instruction, 0, cfg.Count)
		adds  = make([]schema.AddLimit, 0, cfg.Count/2)
		price = int64(cfg.Center)
		lo    = int64(cfg.Center) - int64(cfg.Spread)
		hi    = int64(cfg.Center) + int64(cfg.Spread)
	)
	for range cfg.Count {
		price += int64(rng.Intn(3) - 1)
		price = min(max(price, lo), hi)

		volume := rng.Int31n(2*cfg.MaxVolume) - cfg.MaxVolume
		if volume == 0 {
			volume = 1
		}

		pick := rng.Intn(total)
		switch {
		case pick < cfg.AddWeight:
			o := schema.AddLimit{Volume: volume, Price: uint32(price)}
			adds = append(adds, o)
			out = append(out, o)
		case pick < cfg.AddWeight+cfg.WithdrawWeight:
			out = append(out, withdrawFor(rng, adds, cfg.WithdrawLookback))
		default:
			out = append(out, schema.Market{Volume: volume})
		}
	}
	return out, nil
}

func withdrawFor(rng *rand.Rand, adds []schema.AddLimit, lookback int) schema.WithdrawLimit {
	if len(adds) == 0 {
		return schema.WithdrawLimit{Price: 33}
	}
	target := adds[len(adds)-1-rng.Intn(min(len(adds), lookback))]
	volume := target.Volume
	if rng.Intn(10) == 0 {
		part := rng.Int31n(abs32(volume))
		if volume < 0 {
			part = -part
		}
		volume = part
	}
	return schema.WithdrawLimit{Volume: volume, Price: target.Price}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
