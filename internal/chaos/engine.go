package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"bookcore/internal/codec"
)

// Fragment is one piece of a perturbed byte stream.
type Fragment struct {
	Data []byte
	// Valid is true when Data is an intact frame a decoder must accept.
	Valid bool
}

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	// GarbageRate is the chance of inserting up to MaxGarbage stray bytes
	// in front of a frame.
	GarbageRate float64
	MaxGarbage  int
	// CorruptRate is the chance of breaking a frame's checksum.
	CorruptRate float64
	// OversizeRate is the chance of inserting an oversized frame in front of a frame.
	OversizeRate float64
}

// Engine applies chaos rules to frames.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []Fragment
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.MaxGarbage <= 0 {
		cfg.MaxGarbage = 2 * codec.MaxFrameLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{
		"dropRate":      c.DropRate,
		"duplicateRate": c.DuplicateRate,
		"garbageRate":   c.GarbageRate,
		"corruptRate":   c.CorruptRate,
		"oversizeRate":  c.OversizeRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	if c.MaxGarbage < 0 {
		return fmt.Errorf("maxGarbage must be >= 0")
	}
	return nil
}

// Process applies chaos to a single encoded frame and returns the fragments
// to write, in order. frame is copied when it has to be altered.
func (e *Engine) Process(frame []byte) []Fragment {
	if e == nil {
		return []Fragment{{Data: frame, Valid: true}}
	}
	if e.hit(e.cfg.DropRate) {
		return nil
	}
	f := Fragment{Data: frame, Valid: true}
	if e.hit(e.cfg.CorruptRate) {
		f = corrupt(frame)
	}
	if e.cfg.ReorderWindow <= 1 {
		return e.emit(f)
	}
	e.pending = append(e.pending, f)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.emit(out)
}

// Flush returns any buffered fragments after processing completes.
func (e *Engine) Flush() []Fragment {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	var out []Fragment
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		f := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.emit(f)...)
	}
	return out
}

func (e *Engine) hit(rate float64) bool {
	return rate > 0 && e.rng.Float64() < rate
}

func (e *Engine) emit(f Fragment) []Fragment {
	var out []Fragment
	if e.hit(e.cfg.OversizeRate) {
		out = append(out, Fragment{Data: codec.EncodeOversized(nil)})
	}
	if e.cfg.MaxGarbage > 0 && e.hit(e.cfg.GarbageRate) {
		out = append(out, Fragment{Data: e.garbage(1 + e.rng.Intn(e.cfg.MaxGarbage))})
	}
	out = append(out, f)
	if e.hit(e.cfg.DuplicateRate) {
		out = append(out, f)
	}
	return out
}

// garbage returns n random bytes that never contain the first delimiter
// byte, so the decoder cannot lock onto a false frame start inside them.
func (e *Engine) garbage(n int) []byte {
	lead := byte(codec.DelimiterValue & 0xFF)
	out := make([]byte, n)
	for i := range out {
		b := byte(e.rng.Intn(256))
		for b == lead {
			b = byte(e.rng.Intn(256))
		}
		out[i] = b
	}
	return out
}

func corrupt(frame []byte) Fragment {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	last := len(cp) - 1
	cp[last] = '0' + (cp[last]-'0'+1)%10
	return Fragment{Data: cp}
}
