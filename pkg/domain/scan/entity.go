package scan

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Scan is one scan run against a target, optionally recurring.
type Scan struct {
	ID       shared.ID
	TenantID shared.ID

	Target   string
	ScanType Type
	Config   map[string]any

	Status       Status
	Progress     int // 0-100
	ErrorMessage string

	// Schedule
	ScheduleType ScheduleType
	ScheduleCron string // crontab schedules only
	NextRunAt    *time.Time

	// Execution timestamps
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Results
	Summary *Summary

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScan creates a pending scan run.
func NewScan(tenantID shared.ID, target string, scanType Type) (*Scan, error) {
	if tenantID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "tenant ID is required", shared.ErrValidation)
	}
	if strings.TrimSpace(target) == "" {
		return nil, shared.NewDomainError("VALIDATION", "target is required", shared.ErrValidation)
	}
	if !scanType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid scan type", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Scan{
		ID:           shared.NewID(),
		TenantID:     tenantID,
		Target:       target,
		ScanType:     scanType,
		Config:       make(map[string]any),
		Status:       StatusPending,
		ScheduleType: ScheduleManual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// SetConfig replaces the scanner configuration.
func (s *Scan) SetConfig(config map[string]any) {
	if config == nil {
		config = make(map[string]any)
	}
	s.Config = config
	s.UpdatedAt = time.Now().UTC()
}

// SetSchedule configures recurrence. Crontab schedules require a cron
// expression; the other types derive their interval from the type alone.
func (s *Scan) SetSchedule(scheduleType ScheduleType, cronExpr string) error {
	switch scheduleType {
	case ScheduleManual:
		cronExpr = ""
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
	case ScheduleCrontab:
		if cronExpr == "" {
			return shared.NewDomainError("VALIDATION", "cron expression is required for crontab schedule", shared.ErrValidation)
		}
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cronExpr); err != nil {
			return shared.NewDomainError("VALIDATION", "invalid cron expression", shared.ErrValidation)
		}
	default:
		return shared.NewDomainError("VALIDATION", "invalid schedule_type", shared.ErrValidation)
	}

	s.ScheduleType = scheduleType
	s.ScheduleCron = cronExpr
	s.NextRunAt = s.calculateNextRun(time.Now().UTC())
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// calculateNextRun computes the next run time after now.
func (s *Scan) calculateNextRun(now time.Time) *time.Time {
	var next time.Time
	switch s.ScheduleType {
	case ScheduleDaily:
		next = now.Add(24 * time.Hour)
	case ScheduleWeekly:
		next = now.Add(7 * 24 * time.Hour)
	case ScheduleMonthly:
		next = now.AddDate(0, 1, 0)
	case ScheduleCrontab:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(s.ScheduleCron)
		if err != nil {
			// Unparseable expressions were rejected at SetSchedule; fall
			// back to daily rather than dropping the schedule.
			next = now.Add(24 * time.Hour)
		} else {
			next = schedule.Next(now)
		}
	default:
		return nil
	}
	return &next
}

// AdvanceSchedule moves NextRunAt past now. Called after a scheduled trigger.
func (s *Scan) AdvanceSchedule(now time.Time) {
	s.NextRunAt = s.calculateNextRun(now)
	s.UpdatedAt = time.Now().UTC()
}

// IsDue reports whether a scheduled scan should trigger.
func (s *Scan) IsDue(now time.Time) bool {
	if s.ScheduleType == ScheduleManual || s.NextRunAt == nil {
		return false
	}
	return !now.Before(*s.NextRunAt)
}

// Start transitions the scan to running.
func (s *Scan) Start() error {
	if s.Status != StatusPending {
		return shared.NewDomainError("CONFLICT", "scan is not pending", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusRunning
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// SetProgress updates the completion percentage.
func (s *Scan) SetProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	s.Progress = pct
	s.UpdatedAt = time.Now().UTC()
}

// Complete transitions the scan to completed and records the summary.
func (s *Scan) Complete(summary Summary) error {
	if s.Status != StatusRunning {
		return shared.NewDomainError("CONFLICT", "scan is not running", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.Progress = 100
	s.Summary = &summary
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Fail transitions the scan to failed. Findings persisted before the
// failure stay attached to the run.
func (s *Scan) Fail(message string) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("CONFLICT", "scan already finished", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusFailed
	s.ErrorMessage = message
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel transitions the scan to cancelled.
func (s *Scan) Cancel() error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("CONFLICT", "scan already finished", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusCancelled
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Duration returns the wall-clock run time, zero until the scan starts.
func (s *Scan) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt)
}
