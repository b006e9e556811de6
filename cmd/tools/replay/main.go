package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"bookcore/internal/engine"
	"bookcore/internal/ledger"
	"bookcore/internal/obs"
	"bookcore/internal/recorder"
	"bookcore/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/tape", "Tape directory")
	prefix := flag.String("prefix", "", "Tape file prefix (default: tape)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "Disable tape checksum validation")
	basePrice := flag.Uint("base", 0, "Ledger base price")
	bookLength := flag.Uint("length", 10_000, "Ledger window length")
	recenter := flag.Uint("recenter", 0, "Recenter threshold (0=off)")
	check := flag.Bool("check", true, "Check ledger invariants after every instruction")
	verbose := flag.Bool("v", false, "Print every response")
	depth := flag.Int("depth", 10, "Levels per side to print at the end")
	flag.Parse()

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		DisableChecksum: *noChecksum,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	book, err := ledger.New(ledger.Config{BasePrice: uint32(*basePrice), BookLength: uint32(*bookLength)})
	if err != nil {
		log.Fatalf("ledger init failed: %v", err)
	}

	var violation string
	metrics := obs.NewMetrics()
	eng, err := engine.New(book, engine.Config{RecenterThreshold: uint32(*recenter)},
		engine.WithMetrics(metrics),
		engine.WithHook(func(seq uint64, inst schema.Instruction, resp schema.Response) {
			if *verbose {
				fmt.Printf("%08d %-13s vol=%-6d -> px=%d vol=%d revenue=%d status=%d\n",
					seq, inst.Kind(), inst.OrderVolume(), resp.Price, resp.Volume, resp.Revenue, resp.Status)
			}
			if *check && violation == "" {
				violation = book.InvariantsCheck(int(seq))
			}
		}),
	)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	ctx := context.Background()
	stream := recorder.NewStream(ctx, pb)
	defer stream.Close()

	start := time.Now()
	runErr := eng.Run(ctx, stream)
	elapsed := time.Since(start)

	snap := metrics.Snapshot()
	fmt.Printf("instructions=%d elapsed=%s resyncs=%d range_errors=%d filled=%d revenue=%d\n",
		eng.Processed(), elapsed, snap.Resyncs, snap.RangeErrors, snap.FilledVolume, snap.Revenue)
	for _, k := range schema.Kinds() {
		fmt.Printf("  %-13s %d\n", k, snap.KindCounts[k])
	}
	for reason, n := range snap.DiscardCounts {
		fmt.Printf("  discarded %-14s %d\n", reason, n)
	}
	if lat := snap.ProcessLatency; lat.Count > 0 {
		fmt.Printf("  latency min=%s avg=%s max=%s\n", lat.Min, lat.Avg, lat.Max)
	}
	printBook(book, *depth)

	if runErr != nil {
		log.Fatalf("replay failed: %v", runErr)
	}
	if violation != "" {
		log.Fatalf("invariant violated: %s", violation)
	}
}

func printBook(book *ledger.Ledger, n int) {
	stats := book.Stats()
	fmt.Printf("window base=%d length=%d\n", book.BasePrice(), book.BookLength())
	fmt.Printf("best bid=%s lowest bid=%s best offer=%s highest offer=%s\n",
		stats.BestBid, stats.LowestBid, stats.BestOffer, stats.HighestOffer)

	bids, asks := book.Depth(n)
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Printf("  ask %8d %10d\n", asks[i].Price, asks[i].Volume)
	}
	fmt.Println("  --------------------")
	for _, lvl := range bids {
		fmt.Printf("  bid %8d %10d\n", lvl.Price, -lvl.Volume)
	}
}
