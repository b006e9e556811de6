package guard

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// spinsBeforeYield bounds the pure busy-wait before the goroutine yields its P.
const spinsBeforeYield = 64

// SpinGuard is a busy-wait mutual exclusion flag for short critical sections.
// The zero value is unlocked. A SpinGuard must not be copied after first use.
type SpinGuard struct {
	_    noCopy
	flag atomic.Bool
}

var _ sync.Locker = (*SpinGuard)(nil)

// Lock spins until the flag is acquired.
func (g *SpinGuard) Lock() {
	spins := 0
	for !g.flag.CompareAndSwap(false, true) {
		spins++
		if spins == spinsBeforeYield {
			spins = 0
			runtime.Gosched()
		}
	}
}

// TryLock acquires the flag if it is free and reports whether it did.
func (g *SpinGuard) TryLock() bool {
	return g.flag.CompareAndSwap(false, true)
}

// Unlock releases the flag. Unlocking a free guard panics.
func (g *SpinGuard) Unlock() {
	if !g.flag.Swap(false) {
		panic("guard: unlock of unlocked SpinGuard")
	}
}

// Locked reports whether the flag is currently held.
func (g *SpinGuard) Locked() bool {
	return g.flag.Load()
}

// noCopy lets go vet's copylocks check flag copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
