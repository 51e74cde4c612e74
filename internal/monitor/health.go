package monitor

import (
	"context"
	"time"
)

// Status is the coarse health classification served by the liveness
// endpoint.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Degradation thresholds over the buffer window.
const (
	minSuccessRate = 0.95
	maxSlowQueries = 10
)

// TableStats is the per-table breakdown in a summary.
type TableStats struct {
	Count         int     `json:"count"`
	Failures      int     `json:"failures"`
	AvgDurationMs int64   `json:"avgDurationMs"`
	SuccessRate   float64 `json:"successRate"`
}

// Summary aggregates the current ring buffer on demand.
type Summary struct {
	Total         int                   `json:"total"`
	SuccessRate   float64               `json:"successRate"`
	AvgDurationMs int64                 `json:"avgDurationMs"`
	SlowQueries   int                   `json:"slowQueries"`
	PerTable      map[string]TableStats `json:"perTable"`
}

// Summary computes aggregate success rate, mean duration, slow-query count,
// and per-table breakdowns from the buffered metrics.
func (m *Monitor) Summary() Summary {
	metrics := m.buffer.snapshot()
	s := Summary{
		Total:       len(metrics),
		SuccessRate: 1,
		PerTable:    make(map[string]TableStats),
	}
	if len(metrics) == 0 {
		return s
	}

	var successes int
	var totalDuration time.Duration
	perTableDuration := make(map[string]time.Duration)

	for _, metric := range metrics {
		if metric.Success {
			successes++
		}
		totalDuration += metric.Duration
		if metric.Duration > m.slowThreshold {
			s.SlowQueries++
		}

		ts := s.PerTable[metric.Table]
		ts.Count++
		if !metric.Success {
			ts.Failures++
		}
		perTableDuration[metric.Table] += metric.Duration
		s.PerTable[metric.Table] = ts
	}

	s.SuccessRate = float64(successes) / float64(len(metrics))
	s.AvgDurationMs = (totalDuration / time.Duration(len(metrics))).Milliseconds()

	for table, ts := range s.PerTable {
		ts.AvgDurationMs = (perTableDuration[table] / time.Duration(ts.Count)).Milliseconds()
		ts.SuccessRate = float64(ts.Count-ts.Failures) / float64(ts.Count)
		s.PerTable[table] = ts
	}
	return s
}

// Health classifies the instance: unhealthy when the store is unreachable,
// degraded when the buffer window shows a success rate under 95% or more
// than 10 slow queries, healthy otherwise.
func (m *Monitor) Health(ctx context.Context) (Status, Summary) {
	summary := m.Summary()

	if m.store != nil {
		if err := m.store.Ping(ctx); err != nil {
			m.logger.Error("store unreachable", "error", err)
			return StatusUnhealthy, summary
		}
	}
	if summary.SuccessRate < minSuccessRate || summary.SlowQueries > maxSlowQueries {
		return StatusDegraded, summary
	}
	return StatusHealthy, summary
}
