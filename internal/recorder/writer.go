package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull       = errors.New("tape queue full")
	ErrClosed          = errors.New("tape writer closed")
	ErrNotStarted      = errors.New("tape writer not started")
	ErrAlreadyStarted  = errors.New("tape writer already started")
	ErrPayloadTooLarge = errors.New("tape payload too large")
)

// Writer captures byte chunks into rotating tape segments. Appends are queued
// and written by a single background goroutine. Chunk sequence numbers start
// at 1.
type Writer struct {
	cfg  Config
	ch   chan recordRequest
	done chan struct{}
	seq  atomic.Uint64

	started atomic.Bool
	// mu orders appends against Close so nothing is sent on a closed queue.
	mu     sync.RWMutex
	closed bool

	err atomic.Pointer[error]
}

// NewWriter creates a tape writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg:  cfg,
		ch:   make(chan recordRequest, cfg.QueueSize),
		done: make(chan struct{}),
	}, nil
}

// Start runs the writer loop until Close or until ctx is done, in which case
// whatever is already queued is still written.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
	return nil
}

// MaxChunkSize is the largest chunk Append accepts.
func (w *Writer) MaxChunkSize() int {
	return w.cfg.MaxChunkSize
}

// Close stops accepting chunks, writes the queued ones and closes the
// current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	if w.started.Load() {
		<-w.done
	}
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if p := w.err.Load(); p != nil {
		return *p
	}
	return nil
}

// TryAppend enqueues a chunk without blocking.
func (w *Writer) TryAppend(payload []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	req, err := w.request(payload)
	if err != nil {
		return err
	}
	select {
	case w.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Append enqueues a chunk, waiting for queue space until ctx is done.
func (w *Writer) Append(ctx context.Context, payload []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	req, err := w.request(payload)
	if err != nil {
		return err
	}
	select {
	case w.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrClosed
	}
}

// request must be called with mu held for reading.
func (w *Writer) request(payload []byte) (recordRequest, error) {
	switch {
	case w.closed:
		return recordRequest{}, ErrClosed
	case !w.started.Load():
		return recordRequest{}, ErrNotStarted
	case len(payload) > w.cfg.MaxChunkSize:
		return recordRequest{}, ErrPayloadTooLarge
	}
	if err := w.Err(); err != nil {
		return recordRequest{}, err
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		payload = append([]byte(nil), payload...)
	}
	header := ChunkHeader{
		Seq:    w.seq.Add(1),
		TsRecv: time.Now().UTC().UnixNano(),
	}
	return recordRequest{header: header, payload: payload}, nil
}

func (w *Writer) run(ctx context.Context) {
	sink := newSegmentSink(w.cfg)
	flushTick := newTicker(w.cfg.FlushInterval)
	syncTick := newTicker(w.cfg.SyncInterval)
	defer func() {
		flushTick.stop()
		syncTick.stop()
		if err := sink.close(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			w.setErr(w.drain(sink))
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			err = sink.write(req)
		case <-flushTick.c:
			err = sink.flush()
		case <-syncTick.c:
			err = sink.sync()
		}
		if err != nil {
			w.setErr(err)
			return
		}
	}
}

// drain writes whatever is already queued without waiting for more.
func (w *Writer) drain(sink *segmentSink) error {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return nil
			}
			if err := sink.write(req); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (w *Writer) setErr(err error) {
	if err != nil {
		w.err.CompareAndSwap(nil, &err)
	}
}

type recordRequest struct {
	header  ChunkHeader
	payload []byte
}

type ticker struct {
	t *time.Ticker
	c <-chan time.Time
}

func newTicker(d time.Duration) ticker {
	if d <= 0 {
		return ticker{}
	}
	t := time.NewTicker(d)
	return ticker{t: t, c: t.C}
}

func (t ticker) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}

// segmentSink owns the open segment file and rotates it by size and age.
type segmentSink struct {
	cfg       Config
	nextID    uint64
	file      *os.File
	buf       *bufio.Writer
	size      int64
	openedAt  time.Time
	headerBuf [recordHeaderSize]byte
	sumBuf    [recordChecksumSize]byte
}

func newSegmentSink(cfg Config) *segmentSink {
	return &segmentSink{cfg: cfg}
}

func (s *segmentSink) write(req recordRequest) error {
	now := time.Now().UTC()
	size := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if s.needsRotation(now, size) {
		if err := s.close(); err != nil {
			return err
		}
		if err := s.open(now); err != nil {
			return err
		}
	}

	encodeHeader(s.headerBuf[:], req.header, len(req.payload))
	binary.LittleEndian.PutUint32(s.sumBuf[:], checksum(s.headerBuf[:], req.payload))
	for _, part := range [][]byte{s.headerBuf[:], req.payload, s.sumBuf[:]} {
		if _, err := s.buf.Write(part); err != nil {
			return err
		}
	}
	s.size += size
	return nil
}

func (s *segmentSink) needsRotation(now time.Time, next int64) bool {
	switch {
	case s.file == nil:
		return true
	case s.size > 0 && s.size+next > s.cfg.SegmentMaxBytes:
		return true
	case s.cfg.SegmentMaxDuration > 0 && now.Sub(s.openedAt) >= s.cfg.SegmentMaxDuration:
		return true
	default:
		return false
	}
}

func (s *segmentSink) open(now time.Time) error {
	stamp := now.Format("20060102-150405")
	for {
		s.nextID++
		name := fmt.Sprintf("%s-%s-%06d%s", s.cfg.FilePrefix, stamp, s.nextID, segmentSuffix)
		file, err := os.OpenFile(filepath.Join(s.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		s.file = file
		s.buf = bufio.NewWriterSize(file, s.cfg.BufferSize)
		s.size = 0
		s.openedAt = now
		return nil
	}
}

func (s *segmentSink) flush() error {
	if s.file == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segmentSink) sync() error {
	if err := s.flush(); err != nil || s.file == nil {
		return err
	}
	return s.file.Sync()
}

func (s *segmentSink) close() error {
	if s.file == nil {
		return nil
	}
	file := s.file
	s.file, s.buf = nil, nil
	if err := s.flushAndSync(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func (s *segmentSink) flushAndSync(file *os.File) error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return file.Sync()
}
