package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bookcore/internal/schema"
)

// Execution is the report emitted for every processed instruction.
type Execution struct {
	Seq  uint64
	Kind schema.Kind
	// Requested volume and price. Price is zero for market instructions.
	Volume int32
	Price  uint32

	FilledPrice  uint32
	FilledVolume int64
	Revenue      int64
	OutOfRange   bool
	// Notional is Revenue scaled by the tick size.
	Notional decimal.Decimal
	At       time.Time
}

func (e Execution) String() string {
	return fmt.Sprintf("#%d %s vol=%d px=%d filled=%d@%d revenue=%d notional=%s range_err=%t",
		e.Seq, e.Kind, e.Volume, e.Price, e.FilledVolume, e.FilledPrice, e.Revenue, e.Notional, e.OutOfRange)
}

// Sink receives execution reports from the single ledger writer.
type Sink interface {
	Record(ctx context.Context, e Execution) error
	Close() error
}

// Builder turns ledger responses into execution reports.
type Builder struct {
	tick decimal.Decimal
	now  func() time.Time
}

// NewBuilder parses tickSize, the currency value of one price unit. An empty
// tick size means one.
func NewBuilder(tickSize string) (Builder, error) {
	tick := decimal.NewFromInt(1)
	if tickSize != "" {
		d, err := decimal.NewFromString(tickSize)
		if err != nil {
			return Builder{}, fmt.Errorf("parse tick size %q: %w", tickSize, err)
		}
		if !d.IsPositive() {
			return Builder{}, fmt.Errorf("tick size must be > 0, got %s", tickSize)
		}
		tick = d
	}
	return Builder{tick: tick, now: time.Now}, nil
}

// Build assembles the report for one instruction.
func (b Builder) Build(seq uint64, inst schema.Instruction, resp schema.Response) Execution {
	e := Execution{
		Seq:          seq,
		Kind:         inst.Kind(),
		Volume:       inst.OrderVolume(),
		FilledPrice:  resp.Price,
		FilledVolume: resp.Volume,
		Revenue:      resp.Revenue,
		OutOfRange:   resp.Status.Has(schema.StatusPriceOutOfRange),
		Notional:     decimal.NewFromInt(resp.Revenue).Mul(b.tick),
	}
	switch v := inst.(type) {
	case schema.AddLimit:
		e.Price = v.Price
	case schema.WithdrawLimit:
		e.Price = v.Price
	}
	if b.now != nil {
		e.At = b.now().UTC()
	}
	return e
}

// Nop discards every report.
type Nop struct{}

func (Nop) Record(context.Context, Execution) error { return nil }
func (Nop) Close() error { return nil }
