package schema

import "fmt"

// Kind identifies an instruction variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAddLimit
	KindWithdrawLimit
	KindMarket
)

// Kinds lists every supported instruction kind.
func Kinds() []Kind {
	return []Kind{KindAddLimit, KindWithdrawLimit, KindMarket}
}

func (k Kind) String() string {
	switch k {
	case KindAddLimit:
		return "AddLimit"
	case KindWithdrawLimit:
		return "WithdrawLimit"
	case KindMarket:
		return "Market"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Instruction is one decoded order instruction. The set of implementations
// is closed: AddLimit, WithdrawLimit and Market.
//
// Volume sign carries the side: negative buys (bid), positive sells (ask).
type Instruction interface {
	Kind() Kind
	OrderVolume() int32
	instruction()
}

// AddLimit places resting liquidity at Price, matching first if it crosses.
type AddLimit struct {
	Volume int32
	Price  uint32
}

// WithdrawLimit removes resting liquidity at Price.
type WithdrawLimit struct {
	Volume int32
	Price  uint32
}

// Market sweeps the opposite side until Volume is filled or liquidity runs out.
type Market struct {
	Volume int32
}

func (AddLimit) Kind() Kind { return KindAddLimit }
func (WithdrawLimit) Kind() Kind { return KindWithdrawLimit }
func (Market) Kind() Kind { return KindMarket }

func (o AddLimit) OrderVolume() int32 { return o.Volume }
func (o WithdrawLimit) OrderVolume() int32 { return o.Volume }
func (o Market) OrderVolume() int32 { return o.Volume }

func (AddLimit) instruction() {}
func (WithdrawLimit) instruction() {}
func (Market) instruction() {}

var (
	_ Instruction = AddLimit{}
	_ Instruction = WithdrawLimit{}
	_ Instruction = Market{}
)

// Status is a bit set attached to every response.
type Status uint8

const (
	// StatusPriceOutOfRange marks an instruction whose price fell outside the
	// ledger window; it was processed as a zero-volume instruction at the base price.
	StatusPriceOutOfRange Status = 1 << iota
)

// Has reports whether all bits in flag are set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// Response is the outcome of processing one instruction.
//
// Price is the marginal execution price (0 when nothing filled). Volume is the
// filled or withdrawn amount with the instruction's sign. Revenue is the signed
// cash flow of the fills: negative for a buyer, positive for a seller.
type Response struct {
	Price   uint32
	Volume  int64
	Revenue int64
	Status  Status
}

// NullPrice is an optional price, the zero value meaning absent.
type NullPrice struct {
	Price uint32
	Valid bool
}

// SomePrice returns a present NullPrice.
func SomePrice(p uint32) NullPrice {
	return NullPrice{Price: p, Valid: true}
}

func (n NullPrice) String() string {
	if !n.Valid {
		return "none"
	}
	return fmt.Sprintf("%d", n.Price)
}

// BookStats is the set of extreme prices the ledger tracks.
type BookStats struct {
	BestBid      NullPrice
	LowestBid    NullPrice
	BestOffer    NullPrice
	HighestOffer NullPrice
}

// Level is one non-empty price level.
type Level struct {
	Price  uint32
	Volume int64
}
