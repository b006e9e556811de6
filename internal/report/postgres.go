package report

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
	defaultBatchSize       = 256
)

// Option defines the PostgreSQL connection and batching settings.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	// BatchSize is the number of reports buffered before an insert.
	BatchSize int
	// Migrate creates the executions table when missing.
	Migrate bool
	Config  *gorm.Config
}

// DSN builds the connection string. ConnString wins when set.
func (opt Option) DSN() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}
	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	switch {
	case opt.User != "" && opt.Password != "":
		u.User = url.UserPassword(opt.User, opt.Password)
	case opt.User != "":
		u.User = url.User(opt.User)
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", defaultPostgresSSLMode)
	if opt.SSLMode != "" {
		query.Set("sslmode", opt.SSLMode)
	}
	for key, value := range opt.Params {
		if key != "" {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// executionRow is the persisted form of an Execution.
type executionRow struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement"`
	Seq          uint64          `gorm:"index;not null"`
	Kind         string          `gorm:"size:16;not null"`
	Volume       int32           `gorm:"not null"`
	Price        uint32          `gorm:"not null"`
	FilledPrice  uint32          `gorm:"not null"`
	FilledVolume int64           `gorm:"not null"`
	Revenue      int64           `gorm:"not null"`
	OutOfRange   bool            `gorm:"not null"`
	Notional     decimal.Decimal `gorm:"type:numeric(38,12);not null"`
	ExecutedAt   time.Time       `gorm:"not null"`
}

func (executionRow) TableName() string { return "executions" }

func newExecutionRow(e Execution) executionRow {
	return executionRow{
		Seq:          e.Seq,
		Kind:         e.Kind.String(),
		Volume:       e.Volume,
		Price:        e.Price,
		FilledPrice:  e.FilledPrice,
		FilledVolume: e.FilledVolume,
		Revenue:      e.Revenue,
		OutOfRange:   e.OutOfRange,
		Notional:     e.Notional,
		ExecutedAt:   e.At,
	}
}

// PostgresSink buffers reports and inserts them in batches.
type PostgresSink struct {
	db        *gorm.DB
	batchSize int
	insert    func(ctx context.Context, rows []executionRow) error

	mu  sync.Mutex
	buf []executionRow
}

// NewPostgresSink connects to PostgreSQL and, when asked, migrates the table.
func NewPostgresSink(opt Option) (*PostgresSink, error) {
	config := opt.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(opt.DSN()), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if opt.Migrate {
		if err := db.AutoMigrate(&executionRow{}); err != nil {
			return nil, errors.Wrap(err, "migrate executions")
		}
	}
	s := newPostgresSink(opt.BatchSize)
	s.db = db
	s.insert = func(ctx context.Context, rows []executionRow) error {
		return db.WithContext(ctx).CreateInBatches(rows, s.batchSize).Error
	}
	return s, nil
}

func newPostgresSink(batchSize int) *PostgresSink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PostgresSink{
		batchSize: batchSize,
		buf:       make([]executionRow, 0, batchSize),
	}
}

// Record buffers e and inserts the batch once it is full.
func (s *PostgresSink) Record(ctx context.Context, e Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, newExecutionRow(e))
	if len(s.buf) < s.batchSize {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush inserts whatever is buffered.
func (s *PostgresSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *PostgresSink) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	rows := s.buf
	s.buf = make([]executionRow, 0, s.batchSize)
	if err := s.insert(ctx, rows); err != nil {
		return errors.Wrapf(err, "insert %d executions", len(rows))
	}
	return nil
}

// Close flushes pending reports and releases the connection pool.
func (s *PostgresSink) Close() error {
	flushErr := s.Flush(context.Background())
	if s.db == nil {
		return flushErr
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return flushErr
}
