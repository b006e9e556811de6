package obs

import "sync/atomic"

// Sequence hands out increasing instruction numbers starting after start.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence returns a sequence whose first Next is start+1.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next number. A nil sequence always returns 0.
func (s *Sequence) Next() uint64 {
	if s == nil {
		return 0
	}
	return s.last.Add(1)
}

// Last returns the most recently issued number.
func (s *Sequence) Last() uint64 {
	if s == nil {
		return 0
	}
	return s.last.Load()
}
