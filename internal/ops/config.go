package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"bookcore/internal/engine"
	"bookcore/internal/ledger"
	"bookcore/internal/recorder"
	"bookcore/internal/report"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Ledger    LedgerConfig    `json:"ledger"`
	Feed      FeedConfig      `json:"feed"`
	Tape      TapeConfig      `json:"tape"`
	Engine    EngineConfig    `json:"engine"`
	Metrics   MetricsConfig   `json:"metrics"`
	Profiling ProfilingConfig `json:"profiling"`
	Report    ReportConfig    `json:"report"`
}

// LedgerConfig describes the price window.
type LedgerConfig struct {
	BasePrice          uint32 `json:"basePrice"`
	BookLength         uint32 `json:"bookLength"`
	ExclusiveCacheLine bool   `json:"exclusiveCacheLine"`
}

// FeedConfig selects where frames come from: a unix socket or a tape directory.
type FeedConfig struct {
	Socket  string  `json:"socket"`
	TapeDir string  `json:"tapeDir"`
	Speed   float64 `json:"speed"`
}

// TapeConfig enables capture of the inbound byte stream.
type TapeConfig struct {
	Dir                string `json:"dir"`
	SegmentMaxBytes    int64  `json:"segmentMaxBytes"`
	SegmentMaxDuration string `json:"segmentMaxDuration"`
	MaxChunkSize       int    `json:"maxChunkSize"`
	FlushInterval      string `json:"flushInterval"`
	SyncInterval       string `json:"syncInterval"`
}

// EngineConfig tunes the decode/apply pipeline.
type EngineConfig struct {
	QueueSize         int    `json:"queueSize"`
	DropWhenFull      bool   `json:"dropWhenFull"`
	RecenterThreshold uint32 `json:"recenterThreshold"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set and logs runtime
// memory stats every MemoryReportInterval when set.
type MetricsConfig struct {
	Addr                 string `json:"addr"`
	MemoryReportInterval string `json:"memoryReportInterval"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled         *bool             `json:"enabled"`
	ServerAddress   string            `json:"serverAddress"`
	ApplicationName string            `json:"applicationName"`
	Tags            map[string]string `json:"tags"`
}

// ReportConfig selects where execution reports go.
type ReportConfig struct {
	Sink     string         `json:"sink"`
	Verbose  bool           `json:"verbose"`
	TickSize string         `json:"tickSize"`
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig is the JSON form of report.Option.
type PostgresConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
	BatchSize  int               `json:"batchSize"`
	Migrate    bool              `json:"migrate"`
}

// FeedKind is the resolved feed source.
type FeedKind uint8

const (
	FeedSocket FeedKind = iota + 1
	FeedTape
)

// Sink names accepted in report.sink.
const (
	SinkNone     = "none"
	SinkLog      = "log"
	SinkPostgres = "postgres"
)

// Feed is the resolved feed source.
type Feed struct {
	Kind     FeedKind
	Socket   string
	Playback recorder.PlaybackConfig
}

// Profiling is the resolved profiling setup.
type Profiling struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
	Tags            map[string]string
}

// Report is the resolved report setup.
type Report struct {
	Sink     string
	Verbose  bool
	Builder  report.Builder
	Postgres report.Option
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Ledger      ledger.Config
	Feed        Feed
	Tape        *recorder.Config
	Engine      engine.Config
	MetricsAddr string
	MemoryEvery time.Duration
	Profiling   Profiling
	Report      Report
}

const (
	defaultBookLength      = 10_000
	defaultProfilingServer = "http://localhost:4040"
	defaultApplicationName = "bookcore.ledgerd"
)

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Parse(data)
}

// Parse resolves a JSON config document.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Resolve()
}

// Resolve applies defaults and validates every section.
func (cfg FileConfig) Resolve() (Loaded, error) {
	ledgerCfg := resolveLedger(cfg.Ledger)
	if err := ledgerCfg.Validate(); err != nil {
		return Loaded{}, fmt.Errorf("ledger: %w", err)
	}
	feed, err := resolveFeed(cfg.Feed)
	if err != nil {
		return Loaded{}, err
	}
	tape, err := resolveTape(cfg.Tape)
	if err != nil {
		return Loaded{}, err
	}
	if tape != nil && feed.Kind == FeedTape && tape.Dir == feed.Playback.Dir {
		return Loaded{}, fmt.Errorf("tape dir must differ from feed tapeDir")
	}
	if cfg.Engine.QueueSize < 0 {
		return Loaded{}, fmt.Errorf("engine queueSize must be >= 0")
	}
	if cfg.Engine.RecenterThreshold >= ledgerCfg.BookLength {
		return Loaded{}, fmt.Errorf("engine recenterThreshold must be < ledger bookLength")
	}
	rep, err := resolveReport(cfg.Report)
	if err != nil {
		return Loaded{}, err
	}
	var memoryEvery time.Duration
	if raw := cfg.Metrics.MemoryReportInterval; raw != "" {
		if memoryEvery, err = time.ParseDuration(raw); err != nil || memoryEvery <= 0 {
			return Loaded{}, fmt.Errorf("metrics memoryReportInterval must be a positive duration, got %q", raw)
		}
	}
	return Loaded{
		Ledger:      ledgerCfg,
		Feed:        feed,
		Tape:        tape,
		Engine:      engine.Config(cfg.Engine),
		MetricsAddr: cfg.Metrics.Addr,
		MemoryEvery: memoryEvery,
		Profiling:   resolveProfiling(cfg.Profiling),
		Report:      rep,
	}, nil
}

func resolveLedger(cfg LedgerConfig) ledger.Config {
	if cfg.BookLength == 0 {
		cfg.BookLength = defaultBookLength
	}
	return ledger.Config(cfg)
}

func resolveFeed(cfg FeedConfig) (Feed, error) {
	switch {
	case cfg.Socket != "" && cfg.TapeDir != "":
		return Feed{}, fmt.Errorf("feed: set either socket or tapeDir, not both")
	case cfg.Socket != "":
		return Feed{Kind: FeedSocket, Socket: cfg.Socket}, nil
	case cfg.TapeDir != "":
		pb := recorder.PlaybackConfig{Dir: cfg.TapeDir, Speed: cfg.Speed}
		if err := pb.Validate(); err != nil {
			return Feed{}, fmt.Errorf("feed: %w", err)
		}
		return Feed{Kind: FeedTape, Playback: pb}, nil
	default:
		return Feed{}, fmt.Errorf("feed: socket or tapeDir is required")
	}
}

func resolveTape(cfg TapeConfig) (*recorder.Config, error) {
	if cfg.Dir == "" {
		return nil, nil
	}
	out := recorder.DefaultConfig(cfg.Dir)
	if cfg.SegmentMaxBytes != 0 {
		out.SegmentMaxBytes = cfg.SegmentMaxBytes
	}
	if cfg.MaxChunkSize != 0 {
		out.MaxChunkSize = cfg.MaxChunkSize
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"segmentMaxDuration", cfg.SegmentMaxDuration, &out.SegmentMaxDuration},
		{"flushInterval", cfg.FlushInterval, &out.FlushInterval},
		{"syncInterval", cfg.SyncInterval, &out.SyncInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("tape %s: %w", d.name, err)
		}
		*d.dst = v
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("tape: %w", err)
	}
	return &out, nil
}

func resolveProfiling(cfg ProfilingConfig) Profiling {
	out := Profiling{
		ServerAddress:   cfg.ServerAddress,
		ApplicationName: cfg.ApplicationName,
		Tags:            cfg.Tags,
	}
	if cfg.Enabled != nil {
		out.Enabled = *cfg.Enabled
	}
	if out.ServerAddress == "" {
		out.ServerAddress = defaultProfilingServer
	}
	if out.ApplicationName == "" {
		out.ApplicationName = defaultApplicationName
	}
	return out
}

func resolveReport(cfg ReportConfig) (Report, error) {
	builder, err := report.NewBuilder(cfg.TickSize)
	if err != nil {
		return Report{}, fmt.Errorf("report: %w", err)
	}
	out := Report{Sink: cfg.Sink, Verbose: cfg.Verbose, Builder: builder}
	switch cfg.Sink {
	case "", SinkNone:
		out.Sink = SinkNone
	case SinkLog:
	case SinkPostgres:
		pg := cfg.Postgres
		if pg.BatchSize < 0 {
			return Report{}, fmt.Errorf("report postgres batchSize must be >= 0")
		}
		out.Postgres = report.Option{
			Host:       pg.Host,
			Port:       pg.Port,
			User:       pg.User,
			Password:   pg.Password,
			Database:   pg.Database,
			SSLMode:    pg.SSLMode,
			Params:     pg.Params,
			ConnString: pg.ConnString,
			BatchSize:  pg.BatchSize,
			Migrate:    pg.Migrate,
		}
	default:
		return Report{}, fmt.Errorf("report: unknown sink %q", cfg.Sink)
	}
	return out, nil
}
