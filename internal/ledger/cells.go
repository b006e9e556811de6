package ledger

import "unsafe"

const cacheLineSize = 64

// cells is the bucket array. Slot i lives at mem[i*stride]; a stride above one
// gives every bucket its own cache line.
type cells struct {
	mem    []Bucket
	stride int
	n      int
}

func newCells(n int, exclusiveCacheLine bool) cells {
	stride := 1
	if exclusiveCacheLine {
		stride = cacheLineSize / int(unsafe.Sizeof(Bucket{}))
	}
	return cells{
		mem:    make([]Bucket, n*stride),
		stride: stride,
		n:      n,
	}
}

func (c cells) at(i int) *Bucket {
	return &c.mem[i*c.stride]
}

// shift moves every bucket by delta slots toward index 0 (delta > 0) or away
// from it (delta < 0), zeroing the slots left behind.
func (c cells) shift(delta int) {
	if delta > 0 {
		for i := 0; i < c.n; i++ {
			var v int64
			if src := i + delta; src < c.n {
				v = c.at(src).Volume()
			}
			c.at(i).set(v)
		}
		return
	}
	d := -delta
	for i := c.n - 1; i >= 0; i-- {
		var v int64
		if src := i - d; src >= 0 {
			v = c.at(src).Volume()
		}
		c.at(i).set(v)
	}
}
