package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"bookcore/internal/engine"
	"bookcore/internal/ledger"
	"bookcore/internal/obs"
	"bookcore/internal/ops"
	"bookcore/internal/recorder"
	"bookcore/internal/report"
	"bookcore/pkg/uds"
)

func main() {
	configPath := flag.String("config", "ledgerd.json", "Path to JSON config")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if loaded.Profiling.Enabled {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	book, err := ledger.New(loaded.Ledger)
	if err != nil {
		log.Fatalf("ledger init failed: %v", err)
	}
	metrics := obs.NewMetrics()

	sink, err := openSink(loaded.Report)
	if err != nil {
		log.Fatalf("report sink init failed: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logs.Errorf("close report sink, err: %+v", err)
		}
	}()

	eng, err := engine.New(book, loaded.Engine,
		engine.WithMetrics(metrics),
		engine.WithSink(sink),
		engine.WithBuilder(loaded.Report.Builder),
	)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	if loaded.MetricsAddr != "" {
		srv := serveMetrics(loaded.MetricsAddr, obs.NewCollector(metrics, book))
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if loaded.MemoryEvery > 0 {
		var mem obs.MemoryReport
		go mem.Run(ctx, loaded.MemoryEvery, func(line []byte) {
			logs.Info(string(line))
		})
	}

	var tape *recorder.Writer
	if loaded.Tape != nil {
		tape, err = recorder.NewWriter(*loaded.Tape)
		if err != nil {
			log.Fatalf("tape init failed: %v", err)
		}
		if err := tape.Start(ctx); err != nil {
			log.Fatalf("tape start failed: %v", err)
		}
		defer func() {
			if err := tape.Close(); err != nil {
				logs.Errorf("close tape, err: %+v", err)
			}
		}()
	}

	logs.Infof("ledgerd started, window: [%d, %d]", loaded.Ledger.BasePrice, loaded.Ledger.BasePrice+loaded.Ledger.BookLength)
	switch loaded.Feed.Kind {
	case ops.FeedSocket:
		err = runSocketFeed(ctx, loaded.Feed.Socket, eng, tape)
	case ops.FeedTape:
		err = runTapeFeed(ctx, loaded.Feed.Playback, eng, tape)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logs.Errorf("feed stopped, err: %+v", err)
	}

	snap := metrics.Snapshot()
	bid, ask := book.BestBidAsk()
	logs.Infof("ledgerd stopped, processed: %d, discards: %v, resyncs: %d, best bid: %s, best offer: %s",
		eng.Processed(), snap.DiscardCounts, snap.Resyncs, bid, ask)
	if msg := book.InvariantsCheck(int(eng.Processed())); msg != "" {
		logs.Errorf("ledger invariant violated: %s", msg)
	}
}

func runSocketFeed(ctx context.Context, path string, eng *engine.Engine, tape *recorder.Writer) error {
	server, err := uds.NewServer(path)
	if err != nil {
		return err
	}
	if err := server.Listen(); err != nil {
		return err
	}
	defer server.Close()
	logs.Infof("listening for feeds on %s", path)

	return server.Serve(ctx, func(ctx context.Context, conn *net.UnixConn) error {
		logs.Info("feed connected")
		err := eng.Run(ctx, source(ctx, conn, tape))
		switch {
		case err == nil:
			logs.Infof("feed ended, processed: %d", eng.Processed())
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
			logs.Errorf("feed dropped, err: %+v", err)
			return nil
		default:
			return err
		}
	})
}

func runTapeFeed(ctx context.Context, cfg recorder.PlaybackConfig, eng *engine.Engine, tape *recorder.Writer) error {
	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		return err
	}
	stream := recorder.NewStream(ctx, pb)
	defer stream.Close()

	logs.Infof("replaying tape from %s at speed %.2f", cfg.Dir, cfg.Speed)
	return eng.Run(ctx, source(ctx, stream, tape))
}

func source(ctx context.Context, r io.Reader, tape *recorder.Writer) io.Reader {
	if tape == nil {
		return r
	}
	return recorder.Tee(ctx, r, tape)
}

func openSink(cfg ops.Report) (report.Sink, error) {
	switch cfg.Sink {
	case ops.SinkLog:
		return report.LogSink{Verbose: cfg.Verbose}, nil
	case ops.SinkPostgres:
		return report.NewPostgresSink(cfg.Postgres)
	default:
		return report.Nop{}, nil
	}
}

func serveMetrics(addr string, collector prometheus.Collector) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("metrics server failed, err: %+v", err)
		}
	}()
	logs.Infof("metrics at http://%s/metrics", addr)
	return srv
}

func startProfiler(cfg ops.Profiling) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags:            cfg.Tags,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{}) { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{}) {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
