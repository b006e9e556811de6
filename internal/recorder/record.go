package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Record layout, little-endian:
//
//	0:4   magic "TAP1"
//	4:6   record version
//	6:8   header size
//	8:12  payload length
//	12:16 reserved
//	16:24 chunk sequence
//	24:32 receive time, unix nanos
//
// followed by the payload and a CRC32-C over header and payload.
const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 32
	recordChecksumSize        = 4

	// maxRecordPayload keeps chunk lengths inside the u32 length field on
	// every platform int size.
	maxRecordPayload = 1<<31 - 1
)

var (
	recordMagic = [4]byte{'T', 'A', 'P', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("tape invalid magic")
	ErrUnsupportedRecordVer    = errors.New("tape unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("tape invalid header size")
)

// ChunkHeader is the metadata stored with every captured chunk.
type ChunkHeader struct {
	Seq    uint64
	TsRecv int64
}

func encodeHeader(dst []byte, header ChunkHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(payloadLen))
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], header.Seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(header.TsRecv))
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (ChunkHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return ChunkHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return ChunkHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return ChunkHeader{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return ChunkHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	return ChunkHeader{
		Seq:    binary.LittleEndian.Uint64(src[16:24]),
		TsRecv: int64(binary.LittleEndian.Uint64(src[24:32])),
	}, binary.LittleEndian.Uint32(src[8:12]), nil
}
