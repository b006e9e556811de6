package recorder

import (
	"context"
	"io"
	"slices"
)

type teeReader struct {
	ctx context.Context
	r   io.Reader
	w   *Writer
}

// Tee returns a reader that captures every chunk read from r onto the tape
// before handing it to the caller. Reads larger than the writer's chunk cap
// are recorded as several chunks. A failed append surfaces as a read error.
func Tee(ctx context.Context, r io.Reader, w *Writer) io.Reader {
	return &teeReader{ctx: ctx, r: r, w: w}
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	for chunk := range slices.Chunk(p[:n], t.w.MaxChunkSize()) {
		if aerr := t.w.Append(t.ctx, chunk); aerr != nil {
			return n, aerr
		}
	}
	return n, err
}

// NewStream replays the tape as one contiguous byte stream, the way the
// chunks originally arrived. Closing the stream stops playback.
func NewStream(ctx context.Context, pb *Playback) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := pb.Run(ctx, func(_ ChunkHeader, payload []byte) error {
			_, err := pw.Write(payload)
			return err
		})
		_ = pw.CloseWithError(err)
	}()
	return pr
}
