package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"bookcore/internal/chaos"
	"bookcore/internal/codec"
	"bookcore/internal/gen"
	"bookcore/internal/recorder"
	"bookcore/internal/schema"
	"bookcore/pkg/uds"
)

func main() {
	outputDir := flag.String("output-dir", "testdata/tape", "Output tape directory")
	outputPrefix := flag.String("output-prefix", "", "Output tape file prefix (default: tape)")
	socket := flag.String("socket", "", "Send the stream to this feed socket instead of writing a tape")
	seed := flag.Int64("seed", 1, "RNG seed")
	count := flag.Int("count", 100_000, "Number of instructions")
	center := flag.Uint("center", 1000, "Starting price of the random walk")
	spread := flag.Uint("spread", 500, "Max distance of prices from center")
	maxVolume := flag.Int("max-volume", 3000, "Max |volume| per instruction")
	chunk := flag.Int("chunk", 4096, "Bytes per tape chunk")
	chaosSeed := flag.Int64("chaos-seed", 0, "Chaos RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	garbageRate := flag.Float64("garbage-rate", 0, "Stray bytes probability [0-1]")
	corruptRate := flag.Float64("corrupt-rate", 0, "Broken checksum probability [0-1]")
	oversizeRate := flag.Float64("oversize-rate", 0, "Oversized frame probability [0-1]")
	flag.Parse()

	genCfg := gen.DefaultConfig(*seed, *count)
	genCfg.Center = uint32(*center)
	genCfg.Spread = uint32(*spread)
	genCfg.MaxVolume = int32(*maxVolume)
	insts, err := gen.Erratic(genCfg)
	if err != nil {
		log.Fatalf("generate failed: %v", err)
	}

	injector, err := chaos.NewEngine(chaos.Config{
		Seed:          *chaosSeed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		GarbageRate:   *garbageRate,
		CorruptRate:   *corruptRate,
		OversizeRate:  *oversizeRate,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	stream, stats := encode(insts, injector)
	ctx := context.Background()
	start := time.Now()
	if *socket != "" {
		err = send(ctx, *socket, stream)
	} else {
		err = writeTape(ctx, *outputDir, *outputPrefix, stream, *chunk)
	}
	if err != nil {
		log.Fatalf("output failed: %v", err)
	}

	fmt.Printf("instructions=%d add=%d withdraw=%d market=%d\n",
		len(insts), stats.kinds[schema.KindAddLimit], stats.kinds[schema.KindWithdrawLimit], stats.kinds[schema.KindMarket])
	fmt.Printf("valid_frames=%d broken_fragments=%d bytes=%d elapsed=%s\n",
		stats.valid, stats.broken, len(stream), time.Since(start))
}

type encodeStats struct {
	kinds  map[schema.Kind]int
	valid  int
	broken int
}

func encode(insts []schema.Instruction, injector *chaos.Engine) ([]byte, encodeStats) {
	stats := encodeStats{kinds: make(map[schema.Kind]int)}
	var buf bytes.Buffer
	write := func(frags []chaos.Fragment) {
		for _, f := range frags {
			buf.Write(f.Data)
			if f.Valid {
				stats.valid++
			} else {
				stats.broken++
			}
		}
	}
	for _, inst := range insts {
		stats.kinds[inst.Kind()]++
		frame, ok := codec.Encode(nil, inst)
		if !ok {
			continue
		}
		write(injector.Process(frame))
	}
	write(injector.Flush())
	return buf.Bytes(), stats
}

func writeTape(ctx context.Context, dir, prefix string, stream []byte, chunk int) error {
	if chunk <= 0 {
		return fmt.Errorf("chunk must be > 0")
	}
	cfg := recorder.DefaultConfig(dir)
	cfg.MaxChunkSize = max(cfg.MaxChunkSize, chunk)
	if prefix != "" {
		cfg.FilePrefix = prefix
	}
	w, err := recorder.NewWriter(cfg)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	for len(stream) > 0 {
		n := min(chunk, len(stream))
		if err := w.Append(ctx, stream[:n]); err != nil {
			_ = w.Close()
			return err
		}
		stream = stream[n:]
	}
	return w.Close()
}

func send(ctx context.Context, path string, stream []byte) error {
	client, err := uds.NewClient(path)
	if err != nil {
		return err
	}
	_, err = client.Send(ctx, bytes.NewReader(stream))
	return err
}
