// Package scan defines the scan run entity. A Scan binds a target with a
// scanner type, an optional recurring schedule, and the lifecycle of one
// execution.
package scan

// Type selects which scanner executes the scan.
type Type string

const (
	// TypeWeb probes a website for OWASP-style weaknesses.
	TypeWeb Type = "web"
	// TypeAPI probes a REST API for auth, rate limit and exposure issues.
	TypeAPI Type = "api"
	// TypeSCA analyzes dependency manifests for known CVEs.
	TypeSCA Type = "sca"
)

// IsValid reports whether the scan type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeWeb, TypeAPI, TypeSCA:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// Status represents the scan run status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// ScheduleType represents when the scan should recur.
type ScheduleType string

const (
	ScheduleManual  ScheduleType = "manual"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleCrontab ScheduleType = "crontab"
)

// IsValid reports whether the schedule type is known.
func (s ScheduleType) IsValid() bool {
	switch s {
	case ScheduleManual, ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleCrontab:
		return true
	}
	return false
}

func (s ScheduleType) String() string { return string(s) }

// Summary aggregates the findings of one scan run.
type Summary struct {
	Total     int `json:"total"`
	Critical  int `json:"critical"`
	High      int `json:"high"`
	Medium    int `json:"medium"`
	Low       int `json:"low"`
	Info      int `json:"info"`
	RiskScore int `json:"risk_score"`
}
