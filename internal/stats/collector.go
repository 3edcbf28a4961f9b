package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks engine statistics using lock-free atomic counters. The
// looper and dispatcher goroutines write; anyone may Snapshot.
type Collector struct {
	batchesSubmitted atomic.Int64
	batchesCompleted atomic.Int64
	opsCompleted     atomic.Int64
	opsFailed        atomic.Int64
	opsSkipped       atomic.Int64
	bytesRead        atomic.Int64
	bytesWritten     atomic.Int64
	bytesCopied      atomic.Int64
	startTime        time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Reader provides read-only snapshots of engine counters.
type Reader interface {
	Snapshot() Snapshot
}

// ReaderFunc adapts a snapshot function to a Reader.
type ReaderFunc func() Snapshot

func (f ReaderFunc) Snapshot() Snapshot { return f() }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BatchesSubmitted int64
	BatchesCompleted int64
	OpsCompleted     int64
	OpsFailed        int64
	OpsSkipped       int64
	BytesRead        int64
	BytesWritten     int64
	BytesCopied      int64
	Elapsed          time.Duration
}

func (c *Collector) AddBatchesSubmitted(n int64) { c.batchesSubmitted.Add(n) }
func (c *Collector) AddBatchesCompleted(n int64) { c.batchesCompleted.Add(n) }
func (c *Collector) AddOpsCompleted(n int64)     { c.opsCompleted.Add(n) }
func (c *Collector) AddOpsFailed(n int64)        { c.opsFailed.Add(n) }
func (c *Collector) AddOpsSkipped(n int64)       { c.opsSkipped.Add(n) }
func (c *Collector) AddBytesRead(n int64)        { c.bytesRead.Add(n) }
func (c *Collector) AddBytesWritten(n int64)     { c.bytesWritten.Add(n) }
func (c *Collector) AddBytesCopied(n int64)      { c.bytesCopied.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		BatchesSubmitted: c.batchesSubmitted.Load(),
		BatchesCompleted: c.batchesCompleted.Load(),
		OpsCompleted:     c.opsCompleted.Load(),
		OpsFailed:        c.opsFailed.Load(),
		OpsSkipped:       c.opsSkipped.Load(),
		BytesRead:        c.bytesRead.Load(),
		BytesWritten:     c.bytesWritten.Load(),
		BytesCopied:      c.bytesCopied.Load(),
		Elapsed:          c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	return time.Since(c.startTime)
}

// TotalBytes is the number of bytes moved by any kind of operation.
func (s Snapshot) TotalBytes() int64 {
	return s.BytesRead + s.BytesWritten + s.BytesCopied
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"batches=%d/%d ops=%d failed=%d skipped=%d read=%d written=%d copied=%d",
		s.BatchesCompleted, s.BatchesSubmitted, s.OpsCompleted, s.OpsFailed, s.OpsSkipped,
		s.BytesRead, s.BytesWritten, s.BytesCopied,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
