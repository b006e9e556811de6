package codec

import (
	"encoding/binary"
	"io"

	"bookcore/internal/schema"
	"bookcore/pkg/exception"
)

// DiscardReason says why a frame produced no instruction.
type DiscardReason uint8

const (
	DiscardUnknown DiscardReason = iota
	// DiscardUnknownLength: the declared length matches no frame kind.
	DiscardUnknownLength
	// DiscardChecksum: the trailing digits do not match the byte sum.
	DiscardChecksum
	// DiscardOversized: the declared length exceeds the largest kind; the
	// excess was drained from the stream.
	DiscardOversized
	// DiscardShortLength: the declared length is smaller than what had to be
	// read to find the header.
	DiscardShortLength
)

func (r DiscardReason) String() string {
	switch r {
	case DiscardUnknownLength:
		return "unknown_length"
	case DiscardChecksum:
		return "checksum"
	case DiscardOversized:
		return "oversized"
	case DiscardShortLength:
		return "short_length"
	default:
		return "unknown"
	}
}

// Observer receives decode outcomes. Implementations must be cheap; they run
// on the read path.
type Observer interface {
	ObserveFrame(kind schema.Kind)
	ObserveDiscard(reason DiscardReason)
	ObserveResync()
}

type nopObserver struct{}

func (nopObserver) ObserveFrame(schema.Kind) {}
func (nopObserver) ObserveDiscard(DiscardReason) {}
func (nopObserver) ObserveResync() {}

// Decoder reads frames from a byte stream and turns them into instructions.
// It never gives up on a corrupt stream: misaligned bytes are skipped until
// the next delimiter, oversized frames are drained, and bad frames are
// reported through the Observer and dropped.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r        io.Reader
	obs      Observer
	buf      [MaxFrameLength]byte
	byLength [MaxFrameLength + 1]*FrameSpec
}

// NewDecoder wraps r. obs may be nil.
func NewDecoder(r io.Reader, obs Observer) (*Decoder, error) {
	if r == nil {
		return nil, exception.ErrNilSource
	}
	if obs == nil {
		obs = nopObserver{}
	}
	d := &Decoder{r: r, obs: obs}
	for i := range catalog {
		d.byLength[catalog[i].Length] = &catalog[i]
	}
	return d, nil
}

// ReadNext consumes exactly one frame from the stream.
//
// ok is false when the frame was discarded; the stream stays aligned and the
// caller simply calls again. err is only set by the underlying reader:
// io.EOF at a clean frame boundary, io.ErrUnexpectedEOF inside a frame.
func (d *Decoder) ReadNext() (inst schema.Instruction, ok bool, err error) {
	if _, err := io.ReadFull(d.r, d.buf[:HeaderLength]); err != nil {
		return nil, false, err
	}

	read := HeaderLength
	if !d.delimiterAt(DelimiterOffset) {
		d.obs.ObserveResync()
		if read, err = d.resync(); err != nil {
			return nil, false, midFrame(err)
		}
	}

	declared := binary.LittleEndian.Uint32(d.buf[LengthOffset : LengthOffset+4])
	oversized := declared > MaxFrameLength
	length := MaxFrameLength
	if oversized {
		if err := d.drain(declared - MaxFrameLength); err != nil {
			return nil, false, midFrame(err)
		}
	} else {
		length = int(declared)
	}

	if length < read || length <= ChecksumLength {
		d.obs.ObserveDiscard(DiscardShortLength)
		return nil, false, nil
	}
	if _, err := io.ReadFull(d.r, d.buf[read:length]); err != nil {
		return nil, false, midFrame(err)
	}

	frame := d.buf[:length]
	spec := d.byLength[length]
	switch {
	case oversized:
		d.obs.ObserveDiscard(DiscardOversized)
		return nil, false, nil
	case spec == nil:
		d.obs.ObserveDiscard(DiscardUnknownLength)
		return nil, false, nil
	case !ValidChecksum(frame):
		d.obs.ObserveDiscard(DiscardChecksum)
		return nil, false, nil
	}

	inst, ok = spec.Decode(frame)
	if !ok {
		d.obs.ObserveDiscard(DiscardUnknownLength)
		return nil, false, nil
	}
	d.obs.ObserveFrame(spec.Kind)
	return inst, true, nil
}

func (d *Decoder) delimiterAt(i int) bool {
	return binary.LittleEndian.Uint16(d.buf[i:i+2]) == DelimiterValue
}

// resync slides a MinFrameLength window over the stream until it holds a
// delimiter with room for the length field in front of it, then moves that
// frame start to offset 0. It returns how many bytes of the frame are now
// buffered.
func (d *Decoder) resync() (int, error) {
	const keep = HeaderLength - 1
	window := d.buf[:MinFrameLength]

	copy(window, window[1:HeaderLength])
	if _, err := io.ReadFull(d.r, window[keep:]); err != nil {
		return 0, err
	}
	for {
		for i := DelimiterOffset; i+2 <= MinFrameLength; i++ {
			if !d.delimiterAt(i) {
				continue
			}
			start := i - DelimiterOffset
			copy(window, window[start:])
			return MinFrameLength - start, nil
		}
		copy(window, window[MinFrameLength-keep:])
		if _, err := io.ReadFull(d.r, window[keep:]); err != nil {
			return 0, err
		}
	}
}

// drain discards n bytes that belong to an oversized frame.
func (d *Decoder) drain(n uint32) error {
	scratch := d.buf[HeaderLength:]
	for n > 0 {
		chunk := min(n, uint32(len(scratch)))
		if _, err := io.ReadFull(d.r, scratch[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func midFrame(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
