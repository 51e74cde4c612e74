// Package maintenance runs the periodic housekeeping jobs of the edge
// daemon: sweeping expired rate-limit windows and logging a health summary.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dj-pearson/gym-unity-edge/internal/log"
	"github.com/dj-pearson/gym-unity-edge/internal/monitor"
	"github.com/dj-pearson/gym-unity-edge/internal/ratelimit"
)

// retention keeps expired windows queryable for a day before physical
// deletion, so operators can inspect recent limit activity.
const retention = 24 * time.Hour

// Scheduler manages cron-based housekeeping.
type Scheduler struct {
	cron    *cron.Cron
	sweeper ratelimit.Sweeper
	monitor *monitor.Monitor
	logger  *slog.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// New creates a Scheduler. sweeper may be nil when the counter store expires
// rows natively.
func New(sweeper ratelimit.Sweeper, mon *monitor.Monitor) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		monitor: mon,
		logger:  log.WithComponent("maintenance"),
	}
}

// Start registers the jobs and starts the cron scheduler. sweepSpec is a cron
// expression or descriptor ("@hourly").
func (s *Scheduler) Start(sweepSpec string) error {
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(sweepSpec, s.runSweep); err != nil {
			return err
		}
	}
	if s.monitor != nil {
		if _, err := s.cron.AddFunc("@every 15m", s.logHealth); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started", "sweep", sweepSpec)
	return nil
}

// Stop gracefully stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-retention)
	removed, err := s.sweeper.SweepExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("rate limit sweep failed", "error", err)
		return
	}
	s.logger.Info("rate limit sweep complete", "removed", removed, "cutoff", cutoff)
}

func (s *Scheduler) logHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, summary := s.monitor.Health(ctx)
	s.logger.Info("health summary",
		"status", string(status),
		"total", summary.Total,
		"success_rate", summary.SuccessRate,
		"avg_duration_ms", summary.AvgDurationMs,
		"slow_queries", summary.SlowQueries,
	)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SweepSpec translates the config shorthand for the sweep interval into a
// cron descriptor. Unknown values are passed through as cron expressions.
func SweepSpec(every string) string {
	switch every {
	case "", "hourly":
		return "@hourly"
	case "daily":
		return "@daily"
	}
	return every
}
