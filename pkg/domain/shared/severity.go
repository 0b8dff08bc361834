package shared

import (
	"fmt"
	"strings"
)

// Severity is the normalized severity scale used across scanners, findings
// and remediation scoring.
type Severity string

// Severity levels, highest first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityOrder maps severities to their sort weight. Higher is worse.
var severityOrder = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// ParseSeverity normalizes a severity string. Unknown values are rejected.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", NewDomainError("VALIDATION", fmt.Sprintf("unknown severity %q", s), ErrValidation)
	}
	return sev, nil
}

// IsValid reports whether the severity is one of the known levels.
func (s Severity) IsValid() bool {
	_, ok := severityOrder[s]
	return ok
}

// Rank returns the sort weight of the severity. Unknown severities rank
// below info.
func (s Severity) Rank() int {
	if r, ok := severityOrder[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

func (s Severity) String() string {
	return string(s)
}

// SeverityFromCVSS maps a CVSS base score to the normalized scale.
func SeverityFromCVSS(score float64) Severity {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityInfo
	}
}
