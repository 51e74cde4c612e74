package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dj-pearson/gym-unity-edge/internal/alert"
	"github.com/dj-pearson/gym-unity-edge/internal/log"
)

// Notifier receives alerts raised by the monitor. Satisfied by
// *alert.Dispatcher.
type Notifier interface {
	Notify(a alert.Alert)
}

// Pinger reports data-store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Default thresholds: queries over Slow raise a warning alert, over Critical
// a critical one.
const (
	DefaultSlowThreshold     = 500 * time.Millisecond
	DefaultCriticalThreshold = time.Second
)

// Op describes the operation being wrapped.
type Op struct {
	Label     string
	Table     string
	Operation Operation
	TenantID  string
	CallerID  string
	Function  string
}

// Monitor wraps data-store operations to capture latency, cardinality, and
// success metrics, and raises deduplicated alerts on slow queries. It is
// constructed once per process and injected wherever store calls happen;
// its buffer is instance-local, so summaries are best-effort under
// horizontal scaling.
type Monitor struct {
	buffer            *ringBuffer
	notifier          Notifier
	store             Pinger
	slowThreshold     time.Duration
	criticalThreshold time.Duration
	logger            *slog.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Config tunes a Monitor. Zero values take defaults.
type Config struct {
	BufferSize        int
	SlowThreshold     time.Duration
	CriticalThreshold time.Duration
}

// New creates a Monitor. notifier may be nil when alerting is not
// configured; store may be nil when there is no health-checkable backend.
func New(cfg Config, notifier Notifier, store Pinger) *Monitor {
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	critical := cfg.CriticalThreshold
	if critical <= 0 {
		critical = DefaultCriticalThreshold
	}
	return &Monitor{
		buffer:            newRingBuffer(cfg.BufferSize),
		notifier:          notifier,
		store:             store,
		slowThreshold:     slow,
		criticalThreshold: critical,
		logger:            log.WithComponent("monitor"),
	}
}

// Wrap executes fn, measures it, and records a QueryMetric whether it
// succeeds or fails. Errors are observed, never swallowed: the metric is
// recorded as a failure and the error propagates unchanged. fn returns the
// operation's result cardinality.
func (m *Monitor) Wrap(ctx context.Context, op Op, fn func(ctx context.Context) (int, error)) (int, error) {
	start := m.now()
	rows, err := fn(ctx)
	duration := m.now().Sub(start)

	metric := QueryMetric{
		Label:     op.Label,
		Table:     op.Table,
		Operation: op.Operation,
		Duration:  duration,
		RowCount:  rows,
		Success:   err == nil,
		Timestamp: start,
		TenantID:  op.TenantID,
		CallerID:  op.CallerID,
		Function:  op.Function,
	}
	if err != nil {
		metric.Error = err.Error()
	}
	m.buffer.append(metric)

	if duration > m.slowThreshold {
		m.raiseSlowQuery(op, duration)
	}
	if err != nil {
		m.logger.Warn("monitored operation failed",
			"label", op.Label,
			"table", op.Table,
			"operation", string(op.Operation),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	}
	return rows, err
}

// raiseSlowQuery synthesizes the slow-query alert and hands it to the
// dispatcher. Dispatch is fire-and-forget inside the notifier; nothing here
// blocks the wrapped request.
func (m *Monitor) raiseSlowQuery(op Op, duration time.Duration) {
	severity := alert.SeverityWarning
	if duration > m.criticalThreshold {
		severity = alert.SeverityCritical
	}

	m.logger.Warn("slow query detected",
		"label", op.Label,
		"table", op.Table,
		"duration_ms", duration.Milliseconds(),
		"severity", string(severity),
	)

	if m.notifier == nil {
		return
	}
	m.notifier.Notify(alert.Alert{
		Severity:  severity,
		Title:     "Slow query detected",
		Message:   fmt.Sprintf("%s on %s took %dms", op.Operation, op.Table, duration.Milliseconds()),
		Source:    "edge-monitor",
		Timestamp: m.now(),
		Metadata: map[string]any{
			"label":       op.Label,
			"table":       op.Table,
			"operation":   string(op.Operation),
			"duration_ms": duration.Milliseconds(),
			"function":    op.Function,
		},
		DedupKey: fmt.Sprintf("slow_query:%s:%s", op.Table, op.Operation),
	})
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
