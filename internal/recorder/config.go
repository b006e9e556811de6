package recorder

import (
	"cmp"
	"time"

	"github.com/yanun0323/errors"

	"bookcore/pkg/exception"
)

// DefaultMaxChunkSize caps one captured feed read. Socket reads are bounded
// by the decoder buffer, so real chunks stay far below it.
const DefaultMaxChunkSize = 1 << 20

const (
	defaultSegmentMaxBytes    int64 = 256 << 20
	defaultSegmentMaxDuration       = 5 * time.Minute
	defaultQueueSize                = 4096
	defaultBufferSize               = 64 << 10
	defaultFilePrefix               = "tape"
	segmentSuffix                   = ".tape"
)

// Config controls how a feed is captured onto tape segments.
type Config struct {
	Dir        string
	FilePrefix string

	// A segment is rotated once it reaches SegmentMaxBytes or has been open
	// for SegmentMaxDuration. Zero duration disables age rotation.
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration

	// MaxChunkSize bounds one appended chunk. Tee splits larger reads.
	MaxChunkSize int
	QueueSize    int
	BufferSize   int

	FlushInterval time.Duration
	SyncInterval  time.Duration

	// CopyPayload copies every appended chunk so callers may reuse their buffers.
	CopyPayload bool
}

// DefaultConfig returns the capture setup ledgerd uses when only a directory
// is configured.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		CopyPayload:        true,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	c.FilePrefix = cmp.Or(c.FilePrefix, defaultFilePrefix)
	c.SegmentMaxBytes = cmp.Or(c.SegmentMaxBytes, defaultSegmentMaxBytes)
	c.MaxChunkSize = cmp.Or(c.MaxChunkSize, DefaultMaxChunkSize)
	c.QueueSize = cmp.Or(c.QueueSize, defaultQueueSize)
	c.BufferSize = cmp.Or(c.BufferSize, defaultBufferSize)
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	return firstInvalid("tape", []check{
		{c.Dir == "", "dir is empty"},
		{c.FilePrefix == "", "file prefix is empty"},
		{c.SegmentMaxBytes <= 0, "segment max bytes must be > 0"},
		{c.SegmentMaxDuration < 0, "segment max duration must be >= 0"},
		{c.MaxChunkSize <= 0, "max chunk size must be > 0"},
		{c.MaxChunkSize > maxRecordPayload, "max chunk size exceeds the record length field"},
		{c.QueueSize <= 0, "queue size must be > 0"},
		{c.BufferSize <= 0, "buffer size must be > 0"},
		{c.FlushInterval < 0, "flush interval must be >= 0"},
		{c.SyncInterval < 0, "sync interval must be >= 0"},
	})
}

type check struct {
	failed bool
	reason string
}

func firstInvalid(section string, checks []check) error {
	for _, c := range checks {
		if c.failed {
			return errors.Wrapf(exception.ErrInvalidConfig, "%s: %s", section, c.reason)
		}
	}
	return nil
}
