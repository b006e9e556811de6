package obs

import (
	"context"
	"runtime"
	"strconv"
	"time"
)

// MemoryReport samples runtime memory stats and renders the delta between
// the last two samples as one log line. The hot path should not allocate, so
// alloc growth between reports is the number to watch.
type MemoryReport struct {
	buf        []byte
	prev, curr runtime.MemStats
	prevAt     time.Time
	currAt     time.Time
}

// Sample reads the current runtime stats.
func (m *MemoryReport) Sample() {
	m.prev, m.prevAt = m.curr, m.currAt
	runtime.ReadMemStats(&m.curr)
	m.currAt = time.Now()
	if m.prevAt.IsZero() {
		m.prev, m.prevAt = m.curr, m.currAt
	}
}

// AllocGrowth is the number of bytes allocated between the last two samples.
func (m *MemoryReport) AllocGrowth() uint64 {
	return m.curr.TotalAlloc - m.prev.TotalAlloc
}

// Line renders the last sample. The returned slice is reused by the next call.
func (m *MemoryReport) Line() []byte {
	dt := m.currAt.Sub(m.prevAt).Seconds()
	if dt <= 0 {
		dt = 1
	}
	line := m.buf[:0]
	line = appendBytes(append(line, "[heap] alloc_grow="...), m.AllocGrowth())
	line = appendBytes(append(line, " alloc="...), m.curr.HeapAlloc)
	line = appendBytes(append(line, " inuse="...), m.curr.HeapInuse)
	line = strconv.AppendUint(append(line, " objects="...), m.curr.HeapObjects, 10)
	line = strconv.AppendFloat(append(line, " alloc_rate="...), float64(m.AllocGrowth())/dt, 'f', 0, 64)
	line = append(line, "B/s"...)

	pauseMs := float64(m.curr.PauseTotalNs-m.prev.PauseTotalNs) / 1e6
	line = strconv.AppendUint(append(line, " [gc] runs="...), uint64(m.curr.NumGC-m.prev.NumGC), 10)
	line = strconv.AppendFloat(append(line, " stw="...), pauseMs, 'f', 3, 64)
	line = append(line, "ms"...)
	line = appendBytes(append(line, " next="...), m.curr.NextGC)
	line = strconv.AppendUint(append(line, " mallocs="...), m.curr.Mallocs-m.prev.Mallocs, 10)
	m.buf = line
	return line
}

// Run samples every interval and hands the rendered line to emit until ctx is done.
func (m *MemoryReport) Run(ctx context.Context, interval time.Duration, emit func(line []byte)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
			emit(m.Line())
		}
	}
}

const carryThreshold = 1 << 15

func appendBytes(dst []byte, v uint64) []byte {
	units := [...]string{"B", "KB", "MB", "GB"}
	i := 0
	for v >= carryThreshold && i < len(units)-1 {
		v >>= 10
		i++
	}
	return append(strconv.AppendUint(dst, v, 10), units[i]...)
}
