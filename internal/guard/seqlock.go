package guard

import (
	"runtime"
	"sync/atomic"
)

// SeqLock is a version counter for a single writer and any number of
// optimistic readers. The version is odd while a write is in progress.
//
// Writers must already be mutually excluded (e.g. by a SpinGuard). Data shared
// with readers must itself be accessed atomically; the version only tells a
// reader whether what it loaded belongs to one consistent state.
type SeqLock struct {
	_       noCopy
	version atomic.Uint64
}

// BeginWrite marks the start of a mutation.
func (s *SeqLock) BeginWrite() {
	s.version.Add(1)
}

// EndWrite publishes a mutation.
func (s *SeqLock) EndWrite() {
	s.version.Add(1)
}

// Version returns the current counter.
func (s *SeqLock) Version() uint64 {
	return s.version.Load()
}

// ReadBegin waits until no write is in progress and returns the version the
// read is based on.
func (s *SeqLock) ReadBegin() uint64 {
	spins := 0
	for {
		v := s.version.Load()
		if v&1 == 0 {
			return v
		}
		spins++
		if spins == spinsBeforeYield {
			spins = 0
			runtime.Gosched()
		}
	}
}

// ReadRetry reports whether a read started at version must be repeated.
func (s *SeqLock) ReadRetry(version uint64) bool {
	return s.version.Load() != version
}

// Read runs fn until it observes a state no writer touched in between.
// fn may run several times and must not have side effects beyond its own locals.
func (s *SeqLock) Read(fn func()) {
	for {
		v := s.ReadBegin()
		fn()
		if !s.ReadRetry(v) {
			return
		}
	}
}
