package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ChunkHandler receives every replayed chunk. The payload is reused after the
// handler returns.
type ChunkHandler func(ChunkHeader, []byte) error

// PlaybackConfig controls tape playback.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed scales the recorded gaps between chunks. Zero replays as fast as possible.
	Speed           float64
	DisableChecksum bool
	// MaxChunkSize rejects records claiming a larger chunk. Zero means
	// DefaultMaxChunkSize.
	MaxChunkSize int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	return firstInvalid("playback", []check{
		{c.Dir == "", "dir is empty"},
		{c.Speed < 0, "speed must be >= 0"},
		{c.MaxChunkSize < 0, "max chunk size must be >= 0"},
	})
}

// Clock sleeps between paced chunks. Tests swap it for a recording clock.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays tape segments in name order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: wallClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Segments lists the tape files Run would replay.
func (p *Playback) Segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.FilePrefix + "-"
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	slices.Sort(files)
	return files, nil
}

// Run replays every chunk of every segment through handler.
func (p *Playback) Run(ctx context.Context, handler ChunkHandler) error {
	if handler == nil {
		return errors.New("tape playback handler is nil")
	}
	files, err := p.Segments()
	if err != nil {
		return err
	}

	pc := pacer{speed: p.cfg.Speed, clock: p.clock}
	for _, path := range files {
		if err := p.replay(ctx, path, &pc, handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) replay(ctx context.Context, path string, pc *pacer, handler ChunkHandler) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxChunkSize:    p.cfg.MaxChunkSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if err := pc.wait(ctx, header.TsRecv); err != nil {
			return err
		}
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

// pacer reproduces recorded receive gaps scaled by speed.
type pacer struct {
	speed float64
	clock Clock
	last  int64
}

func (pc *pacer) wait(ctx context.Context, ts int64) error {
	if pc.speed <= 0 || ts <= 0 {
		return nil
	}
	prev := pc.last
	pc.last = ts
	if prev <= 0 || ts <= prev {
		return nil
	}
	return pc.clock.Sleep(ctx, time.Duration(float64(ts-prev)/pc.speed))
}
