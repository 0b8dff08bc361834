package jobs

import (
	"context"
	"time"

	"github.com/forgescan/api/pkg/logger"
)

// ScanTrigger defines the interface the scheduler drives.
// This is implemented by ScanService.
type ScanTrigger interface {
	TriggerDueScans(ctx context.Context, now time.Time, limit int) (int, error)
}

// Scheduler periodically fires scheduled scans whose next run has arrived.
type Scheduler struct {
	trigger  ScanTrigger
	interval time.Duration
	batch    int
	logger   *logger.Logger
}

// NewScheduler creates a scheduler that checks for due scans on an interval.
func NewScheduler(trigger ScanTrigger, interval time.Duration, batch int, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		batch:    batch,
		logger:   log.With("component", "scheduler"),
	}
}

// Run ticks until the context ends. A failed tick is logged and the next
// tick retries; the scheduler itself never dies on a transient error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scan scheduler", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping scan scheduler")
			return ctx.Err()
		case now := <-ticker.C:
			triggered, err := s.trigger.TriggerDueScans(ctx, now, s.batch)
			if err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
				continue
			}
			if triggered > 0 {
				s.logger.Info("scheduled scans triggered", "count", triggered)
			}
		}
	}
}
