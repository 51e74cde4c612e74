package monitor

import (
	"sync"
	"time"
)

// Operation is the kind of data-store call being observed.
type Operation string

const (
	OpSelect Operation = "SELECT"
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpUpsert Operation = "UPSERT"
	OpRPC    Operation = "RPC"
)

// QueryMetric is one observed data-store operation. Metrics are ephemeral:
// they live only in the in-memory ring buffer of the instance that recorded
// them.
type QueryMetric struct {
	Label     string
	Table     string
	Operation Operation
	Duration  time.Duration
	RowCount  int
	Success   bool
	Error     string
	Timestamp time.Time
	TenantID  string
	CallerID  string
	Function  string
}

// DefaultBufferSize bounds the metrics ring buffer.
const DefaultBufferSize = 1000

// ringBuffer holds the most recent metrics, evicting oldest-first once the
// cap is exceeded. Safe for concurrent use.
type ringBuffer struct {
	mu      sync.Mutex
	entries []QueryMetric
	next    int
	full    bool
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &ringBuffer{entries: make([]QueryMetric, size)}
}

func (b *ringBuffer) append(m QueryMetric) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = m
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
}

// snapshot returns the buffered metrics oldest-first.
func (b *ringBuffer) snapshot() []QueryMetric {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]QueryMetric, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]QueryMetric, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}
