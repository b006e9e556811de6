package chaos

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"bookcore/internal/codec"
	"bookcore/internal/gen"
	"bookcore/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{ReorderWindow: 1}.Validate())
	assert.Error(t, Config{ReorderWindow: 1, DropRate: 1.5}.Validate())
	assert.Error(t, Config{ReorderWindow: 1, CorruptRate: -0.1}.Validate())
	assert.Error(t, Config{ReorderWindow: 0}.Validate())
	assert.Error(t, Config{ReorderWindow: 1, MaxGarbage: -1}.Validate())
}

func TestNilEnginePassesThrough(t *testing.T) {
	var e *Engine
	frame := []byte{1, 2, 3}
	assert.Equal(t, []Fragment{{Data: frame, Valid: true}}, e.Process(frame))
	assert.Nil(t, e.Flush())
}

func TestCorruptBreaksChecksumOnly(t *testing.T) {
	frame := codec.EncodeMarket(nil, schema.Market{Volume: 33})
	f := corrupt(frame)
	assert.False(t, f.Valid)
	assert.False(t, codec.ValidChecksum(f.Data))
	assert.True(t, codec.ValidChecksum(frame), "source frame untouched")
	assert.Equal(t, frame[:len(frame)-1], f.Data[:len(frame)-1])
}

func TestGarbageAvoidsDelimiterLead(t *testing.T) {
	e, err := NewEngine(Config{Seed: 9})
	require.NoError(t, err)
	assert.NotContains(t, e.garbage(4096), byte(0x50))
}

func TestDecoderRecoversEveryValidFrame(t *testing.T) {
	instructions, err := gen.Erratic(gen.DefaultConfig(11, 5000))
	require.NoError(t, err)

	e, err := NewEngine(Config{
		Seed:          5,
		DropRate:      0.02,
		DuplicateRate: 0.02,
		ReorderWindow: 4,
		GarbageRate:   0.05,
		CorruptRate:   0.05,
		OversizeRate:  0.03,
	})
	require.NoError(t, err)

	var (
		stream bytes.Buffer
		valid  int
	)
	write := func(fs []Fragment) {
		for _, f := range fs {
			stream.Write(f.Data)
			if f.Valid {
				valid++
			}
		}
	}
	for _, inst := range instructions {
		frame, ok := codec.Encode(nil, inst)
		require.True(t, ok)
		write(e.Process(frame))
	}
	write(e.Flush())

	d, err := codec.NewDecoder(&stream, nil)
	require.NoError(t, err)
	decoded := 0
	for {
		_, ok, err := d.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if ok {
			decoded++
		}
	}
	assert.Equal(t, valid, decoded)
	assert.Less(t, valid, len(instructions)+len(instructions)/10)
}
