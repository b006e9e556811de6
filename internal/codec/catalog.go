package codec

import (
	"fmt"

	"bookcore/internal/schema"
	"bookcore/pkg/exception"

	"github.com/yanun0323/errors"
)

// FrameSpec describes one instruction kind on the wire.
type FrameSpec struct {
	Kind            schema.Kind
	Length          int
	LengthOffset    int
	DelimiterOffset int
	DelimiterValue  uint16
	HeaderLength    int
	VolumeOffset    int
	Decode          func(frame []byte) (schema.Instruction, bool)
}

// MinFrameLength and MaxFrameLength bound every known frame kind.
const (
	MinFrameLength = MarketFrameLength
	MaxFrameLength = WithdrawLimitFrameLength
)

var catalog = []FrameSpec{
	spec(schema.KindAddLimit, AddLimitFrameLength, DecodeAddLimit),
	spec(schema.KindWithdrawLimit, WithdrawLimitFrameLength, DecodeWithdrawLimit),
	spec(schema.KindMarket, MarketFrameLength, DecodeMarket),
}

func init() {
	if err := ValidateCatalog(catalog, nil); err != nil {
		panic(err)
	}
}

func spec(kind schema.Kind, length int, decode func([]byte) (schema.Instruction, bool)) FrameSpec {
	return FrameSpec{
		Kind:            kind,
		Length:          length,
		LengthOffset:    LengthOffset,
		DelimiterOffset: DelimiterOffset,
		DelimiterValue:  DelimiterValue,
		HeaderLength:    HeaderLength,
		VolumeOffset:    VolumeOffset,
		Decode:          decode,
	}
}

// Catalog returns a copy of the known frame kinds.
func Catalog() []FrameSpec {
	out := make([]FrameSpec, len(catalog))
	copy(out, catalog)
	return out
}

// ValidateCatalog checks that specs share one header layout, have distinct
// lengths that fit the decode buffer, and, when handled is non-nil, that every
// kind has a handler.
func ValidateCatalog(specs []FrameSpec, handled func(schema.Kind) bool) error {
	if len(specs) == 0 {
		return errors.Wrap(exception.ErrFrameCatalog, "empty")
	}
	first := specs[0]
	seenLength := make(map[int]schema.Kind, len(specs))
	seenKind := make(map[schema.Kind]struct{}, len(specs))
	for _, s := range specs {
		switch {
		case s.Decode == nil:
			return errors.Wrapf(exception.ErrFrameCatalog, "%s: nil decoder", s.Kind)
		case s.LengthOffset != first.LengthOffset,
			s.DelimiterOffset != first.DelimiterOffset,
			s.DelimiterValue != first.DelimiterValue,
			s.HeaderLength != first.HeaderLength,
			s.VolumeOffset != first.VolumeOffset:
			return errors.Wrapf(exception.ErrFrameCatalog, "%s: header layout differs from %s", s.Kind, first.Kind)
		case s.Length <= s.HeaderLength+ChecksumLength:
			return errors.Wrapf(exception.ErrFrameCatalog, "%s: length %d leaves no body", s.Kind, s.Length)
		case s.Length < MinFrameLength || s.Length > MaxFrameLength:
			return errors.Wrapf(exception.ErrFrameCatalog, "%s: length %d outside [%d, %d]", s.Kind, s.Length, MinFrameLength, MaxFrameLength)
		case s.DelimiterOffset+2 > s.HeaderLength:
			return errors.Wrapf(exception.ErrFrameCatalog, "%s: delimiter outside header", s.Kind)
		}
		if other, dup := seenLength[s.Length]; dup {
			return errors.Wrapf(exception.ErrFrameCatalog, "%s and %s share length %d", s.Kind, other, s.Length)
		}
		if _, dup := seenKind[s.Kind]; dup {
			return errors.Wrapf(exception.ErrFrameCatalog, "%s listed twice", s.Kind)
		}
		if handled != nil && !handled(s.Kind) {
			return errors.Wrapf(exception.ErrFrameCatalog, "%s has no handler", s.Kind)
		}
		seenLength[s.Length] = s.Kind
		seenKind[s.Kind] = struct{}{}
	}
	return nil
}

func (s FrameSpec) String() string {
	return fmt.Sprintf("%s(%d bytes)", s.Kind, s.Length)
}
