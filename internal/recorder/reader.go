package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

var ErrChecksumMismatch = errors.New("tape checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	// MaxChunkSize rejects records claiming a larger chunk. Zero means
	// DefaultMaxChunkSize.
	MaxChunkSize int
}

// Reader decodes tape records sequentially.
type Reader struct {
	src      *bufio.Reader
	verify   bool
	maxChunk uint32

	header [recordHeaderSize]byte
	// body holds the chunk followed by its checksum.
	body []byte
}

// NewReader wraps an io.Reader with tape decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	maxChunk := opts.MaxChunkSize
	if maxChunk <= 0 || maxChunk > maxRecordPayload {
		maxChunk = DefaultMaxChunkSize
	}
	return &Reader{
		src:      bufio.NewReader(r),
		verify:   !opts.DisableChecksum,
		maxChunk: uint32(maxChunk),
	}
}

// Next returns the next captured chunk. io.EOF means the tape ended on a
// record boundary; a record cut short yields io.ErrUnexpectedEOF. The chunk
// is only valid until the next call.
func (r *Reader) Next() (ChunkHeader, []byte, error) {
	if _, err := io.ReadFull(r.src, r.header[:]); err != nil {
		return ChunkHeader{}, nil, err
	}
	header, size, err := decodeRecordHeader(r.header[:])
	if err != nil {
		return header, nil, err
	}
	if size > r.maxChunk {
		return header, nil, ErrPayloadTooLarge
	}

	chunk, err := r.readBody(int(size))
	if err != nil {
		return header, nil, err
	}
	return header, chunk, nil
}

func (r *Reader) readBody(size int) ([]byte, error) {
	total := size + recordChecksumSize
	if cap(r.body) < total {
		r.body = make([]byte, total)
	}
	r.body = r.body[:total]
	if _, err := io.ReadFull(r.src, r.body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	chunk := r.body[:size]
	if r.verify && checksum(r.header[:], chunk) != binary.LittleEndian.Uint32(r.body[size:]) {
		return nil, ErrChecksumMismatch
	}
	return chunk, nil
}
