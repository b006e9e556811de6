package exception

import "github.com/yanun0323/errors"

// Codec errors
var (
	// ErrNilSource is returned when a decoder is built without a byte source.
	ErrNilSource = errors.New("codec: nil source")

	// ErrFrameCatalog is returned when the frame catalog violates its layout contract.
	ErrFrameCatalog = errors.New("codec: inconsistent frame catalog")
)
