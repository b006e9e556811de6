package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructionKinds(t *testing.T) {
	cases := []struct {
		inst Instruction
		kind Kind
		vol  int32
	}{
		{AddLimit{Volume: -11, Price: 111}, KindAddLimit, -11},
		{WithdrawLimit{Volume: 22, Price: 222}, KindWithdrawLimit, 22},
		{Market{Volume: 33}, KindMarket, 33},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, c.inst.Kind())
		assert.Equal(t, c.vol, c.inst.OrderVolume())
	}
	assert.Len(t, Kinds(), 3)
	assert.Equal(t, "Unknown(9)", Kind(9).String())
}

func TestStatusAndNullPrice(t *testing.T) {
	var s Status
	assert.False(t, s.Has(StatusPriceOutOfRange))
	s |= StatusPriceOutOfRange
	assert.True(t, s.Has(StatusPriceOutOfRange))

	assert.Equal(t, "none", NullPrice{}.String())
	assert.Equal(t, "42", SomePrice(42).String())
	assert.Equal(t, NullPrice{Price: 7, Valid: true}, SomePrice(7))
}
