package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"bookcore/internal/bus"
	"bookcore/internal/codec"
	"bookcore/internal/ledger"
	"bookcore/internal/obs"
	"bookcore/internal/report"
	"bookcore/internal/schema"
	"bookcore/pkg/exception"

	yerrors "github.com/yanun0323/errors"
)

const defaultQueueSize = 1024

// Config controls the decode/apply pipeline.
type Config struct {
	QueueSize int
	// DropWhenFull drops decoded instructions on a full queue instead of
	// stalling the decoder.
	DropWhenFull bool
	// RecenterThreshold is how far the mid price may drift from the window
	// centre before the window is shifted. Zero disables recentering.
	RecenterThreshold uint32
}

// Hook observes every applied instruction on the writer goroutine.
type Hook func(seq uint64, inst schema.Instruction, resp schema.Response)

// Option customizes an Engine.
type Option func(*Engine)

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithSink(s report.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

func WithBuilder(b report.Builder) Option {
	return func(e *Engine) { e.builder = b }
}

func WithHook(h Hook) Option {
	return func(e *Engine) { e.hook = h }
}

// Engine decodes a frame stream on one goroutine and applies the resulting
// instructions to a ledger on another. The ledger sees a single writer.
type Engine struct {
	cfg     Config
	ledger  *ledger.Ledger
	metrics *obs.Metrics
	sink    report.Sink
	builder report.Builder
	hook    Hook
	seq     *obs.Sequence
}

// New wires an engine around l.
func New(l *ledger.Ledger, cfg Config, opts ...Option) (*Engine, error) {
	if l == nil {
		return nil, yerrors.Wrap(exception.ErrNilInstance, "ledger")
	}
	if cfg.QueueSize < 0 {
		return nil, yerrors.Wrapf(exception.ErrInvalidConfig, "queue size %d", cfg.QueueSize)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	builder, err := report.NewBuilder("")
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		ledger:  l,
		sink:    report.Nop{},
		builder: builder,
		seq:     obs.NewSequence(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Processed returns how many instructions have been decoded so far.
func (e *Engine) Processed() uint64 {
	return e.seq.Last()
}

// Run consumes r until it ends or ctx is done. A clean end of stream returns
// nil. Run waits for the decoder to stop, so callers that cancel ctx should
// also close r to release a pending read.
func (e *Engine) Run(ctx context.Context, r io.Reader) error {
	dec, err := codec.NewDecoder(r, e.metrics)
	if err != nil {
		return err
	}
	queue := bus.NewQueue(e.cfg.QueueSize)

	var (
		wg        sync.WaitGroup
		decodeErr error
	)
	wg.Go(func() {
		defer queue.Close()
		decodeErr = e.decode(ctx, dec, queue)
	})

	queue.Run(ctx, func(ev bus.Event) {
		e.Apply(ctx, ev.Seq, ev.Instruction)
	})
	wg.Wait()

	if decodeErr != nil {
		return decodeErr
	}
	return ctx.Err()
}

func (e *Engine) decode(ctx context.Context, dec *codec.Decoder, queue *bus.Queue) error {
	for ctx.Err() == nil {
		inst, ok, err := dec.ReadNext()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return yerrors.Wrapf(err, "decode after %d instructions", e.seq.Last())
		}
		if !ok {
			continue
		}

		ev := bus.Event{Seq: e.seq.Next(), Instruction: inst}
		if !e.cfg.DropWhenFull {
			if err := queue.Publish(ctx, ev); err != nil {
				return err
			}
			continue
		}
		if err := queue.TryPublish(ev); errors.Is(err, bus.ErrQueueFull) {
			e.metrics.IncQueueDrop()
		}
	}
	return nil
}

// Apply processes one instruction on the calling goroutine. Run calls it from
// its writer; tools may call it directly when they own the ledger.
func (e *Engine) Apply(ctx context.Context, seq uint64, inst schema.Instruction) schema.Response {
	start := time.Now()
	resp := e.ledger.Process(inst)
	e.metrics.ObserveResponse(resp, time.Since(start))

	if err := e.sink.Record(ctx, e.builder.Build(seq, inst, resp)); err != nil {
		logs.Errorf("record execution #%d, err: %+v", seq, err)
	}
	if e.hook != nil {
		e.hook(seq, inst, resp)
	}
	e.recenter()
	return resp
}

// recenter shifts the window when the mid price drifted past the threshold.
// With one side empty the other side's best price stands in for the mid.
func (e *Engine) recenter() {
	threshold := int64(e.cfg.RecenterThreshold)
	if threshold == 0 {
		return
	}

	var mid int64
	bid, ask := e.ledger.BestBidAsk()
	switch {
	case bid.Valid && ask.Valid:
		mid = (int64(bid.Price) + int64(ask.Price)) / 2
	case bid.Valid:
		mid = int64(bid.Price)
	case ask.Valid:
		mid = int64(ask.Price)
	default:
		return
	}

	centre := int64(e.ledger.BasePrice()) + int64(e.ledger.BookLength())/2
	drift := mid - centre
	if drift <= threshold && drift >= -threshold {
		return
	}
	drift = max(min(drift, math.MaxInt32), math.MinInt32)
	e.metrics.ObserveShift(e.ledger.ShiftBook(int32(drift)))
}
