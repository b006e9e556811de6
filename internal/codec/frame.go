package codec

import (
	"encoding/binary"

	"bookcore/internal/schema"
)

// Frame layout shared by every instruction kind. All integers are little-endian.
//
//	offset 0  u32 declared frame length
//	offset 4  u16 delimiter 0xEB50 (bytes 0x50 0xEB)
//	offset 6  i32 volume
//	offset 10 u32 price (limit frames only)
//	offset 14 0xFF marker (withdraw frames only)
//	last 3    ASCII decimal checksum
const (
	LengthOffset         = 0
	DelimiterOffset      = 4
	DelimiterValue       = uint16(0xEB50)
	HeaderLength         = 6
	VolumeOffset         = 6
	PriceOffset          = 10
	WithdrawMarkerOffset = 14
	WithdrawMarker       = byte(0xFF)
	ChecksumLength       = 3
)

const (
	AddLimitFrameLength      = 17
	WithdrawLimitFrameLength = 18
	MarketFrameLength        = 13

	// OversizedFrameLength is the declared length of the filler frame
	// EncodeOversized produces; any length above MaxFrameLength behaves the same.
	OversizedFrameLength = 40
)

func frameBuffer(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	dst = dst[:size]
	clear(dst)
	return dst
}

func putHeader(dst []byte, length uint32) {
	binary.LittleEndian.PutUint32(dst[LengthOffset:LengthOffset+4], length)
	binary.LittleEndian.PutUint16(dst[DelimiterOffset:DelimiterOffset+2], DelimiterValue)
}

// EncodeAddLimit serializes an add-limit instruction into a 17-byte frame.
func EncodeAddLimit(dst []byte, o schema.AddLimit) []byte {
	dst = frameBuffer(dst, AddLimitFrameLength)
	putHeader(dst, AddLimitFrameLength)
	binary.LittleEndian.PutUint32(dst[VolumeOffset:VolumeOffset+4], uint32(o.Volume))
	binary.LittleEndian.PutUint32(dst[PriceOffset:PriceOffset+4], o.Price)
	PutChecksum(dst)
	return dst
}

// EncodeWithdrawLimit serializes a withdraw instruction into an 18-byte frame.
func EncodeWithdrawLimit(dst []byte, o schema.WithdrawLimit) []byte {
	dst = frameBuffer(dst, WithdrawLimitFrameLength)
	putHeader(dst, WithdrawLimitFrameLength)
	binary.LittleEndian.PutUint32(dst[VolumeOffset:VolumeOffset+4], uint32(o.Volume))
	binary.LittleEndian.PutUint32(dst[PriceOffset:PriceOffset+4], o.Price)
	dst[WithdrawMarkerOffset] = WithdrawMarker
	PutChecksum(dst)
	return dst
}

// EncodeMarket serializes a market instruction into a 13-byte frame.
func EncodeMarket(dst []byte, o schema.Market) []byte {
	dst = frameBuffer(dst, MarketFrameLength)
	putHeader(dst, MarketFrameLength)
	binary.LittleEndian.PutUint32(dst[VolumeOffset:VolumeOffset+4], uint32(o.Volume))
	PutChecksum(dst)
	return dst
}

// EncodeOversized writes a frame whose declared length exceeds every known
// kind. It carries no checksum; decoders must drain and drop it.
func EncodeOversized(dst []byte) []byte {
	dst = frameBuffer(dst, OversizedFrameLength)
	putHeader(dst, OversizedFrameLength)
	dst[VolumeOffset] = 0xFF
	return dst
}

// Encode serializes any instruction into its frame.
func Encode(dst []byte, inst schema.Instruction) ([]byte, bool) {
	switch o := inst.(type) {
	case schema.AddLimit:
		return EncodeAddLimit(dst, o), true
	case schema.WithdrawLimit:
		return EncodeWithdrawLimit(dst, o), true
	case schema.Market:
		return EncodeMarket(dst, o), true
	default:
		return dst, false
	}
}

// DecodeAddLimit parses a 17-byte add-limit frame body. The checksum is not checked.
func DecodeAddLimit(src []byte) (schema.Instruction, bool) {
	if len(src) < AddLimitFrameLength {
		return nil, false
	}
	return schema.AddLimit{
		Volume: int32(binary.LittleEndian.Uint32(src[VolumeOffset : VolumeOffset+4])),
		Price:  binary.LittleEndian.Uint32(src[PriceOffset : PriceOffset+4]),
	}, true
}

// DecodeWithdrawLimit parses an 18-byte withdraw frame body. The checksum is not checked.
func DecodeWithdrawLimit(src []byte) (schema.Instruction, bool) {
	if len(src) < WithdrawLimitFrameLength {
		return nil, false
	}
	return schema.WithdrawLimit{
		Volume: int32(binary.LittleEndian.Uint32(src[VolumeOffset : VolumeOffset+4])),
		Price:  binary.LittleEndian.Uint32(src[PriceOffset : PriceOffset+4]),
	}, true
}

// DecodeMarket parses a 13-byte market frame body. The checksum is not checked.
func DecodeMarket(src []byte) (schema.Instruction, bool) {
	if len(src) < MarketFrameLength {
		return nil, false
	}
	return schema.Market{
		Volume: int32(binary.LittleEndian.Uint32(src[VolumeOffset : VolumeOffset+4])),
	}, true
}
