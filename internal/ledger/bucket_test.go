package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketLiquidity(t *testing.T) {
	var b Bucket
	assert.Zero(t, b.Volume())

	b.AddLiquidity(1000)
	assert.Equal(t, int64(1000), b.Volume())
	assert.Equal(t, int64(1000), b.ConsumeLiquidity(2000))
	assert.Zero(t, b.Volume())

	b.AddLiquidity(1000)
	b.AddLiquidity(-500)
	assert.Equal(t, int64(500), b.Volume())
	b.AddLiquidity(-1000)
	assert.Equal(t, int64(-500), b.Volume())

	assert.Zero(t, b.ConsumeLiquidity(1000), "sign mismatch takes nothing")
	assert.Equal(t, int64(-500), b.Volume())
	assert.Equal(t, int64(-500), b.ConsumeLiquidity(-1000))
	assert.Zero(t, b.Volume())
}

func TestBucketConsumePartial(t *testing.T) {
	var b Bucket
	b.AddLiquidity(-300)
	assert.Equal(t, int64(-100), b.ConsumeLiquidity(-100))
	assert.Equal(t, int64(-200), b.Volume())
	assert.Zero(t, b.ConsumeLiquidity(0))
	assert.Equal(t, int64(-200), b.Volume())
}

func TestCellsStride(t *testing.T) {
	packed := newCells(10, false)
	padded := newCells(10, true)
	assert.Equal(t, 1, packed.stride)
	assert.Equal(t, 8, padded.stride)
	assert.Len(t, padded.mem, 80)

	padded.at(3).AddLiquidity(5)
	assert.Equal(t, int64(5), padded.mem[24].Volume())
}

func TestCellsShift(t *testing.T) {
	c := newCells(5, false)
	for i := range 5 {
		c.at(i).AddLiquidity(int64(i + 1))
	}
	c.shift(2)
	assert.Equal(t, []int64{3, 4, 5, 0, 0}, volumes(c))
	c.shift(-3)
	assert.Equal(t, []int64{0, 0, 0, 3, 4}, volumes(c))
}

func volumes(c cells) []int64 {
	out := make([]int64, c.n)
	for i := range out {
		out[i] = c.at(i).Volume()
	}
	return out
}
