package exception

import "github.com/yanun0323/errors"

// Ledger errors
var (
	// ErrInvalidBookLength is returned when a ledger is built with a zero-length window.
	ErrInvalidBookLength = errors.New("ledger: book length must be > 0")

	// ErrPriceWindowOverflow is returned when base price + book length exceeds the price domain.
	ErrPriceWindowOverflow = errors.New("ledger: price window overflows uint32")
)
