package scanner

import (
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/domain/shared"
)

// Risk score weights per severity. The weighted sum is capped at 100 so one
// noisy scan cannot blow past the scale.
const (
	weightCritical = 10
	weightHigh     = 7
	weightMedium   = 4
	weightLow      = 2
	weightInfo     = 0
)

// Summarize aggregates raw findings into the scan summary.
func Summarize(findings []Finding) scan.Summary {
	s := scan.Summary{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case shared.SeverityCritical:
			s.Critical++
		case shared.SeverityHigh:
			s.High++
		case shared.SeverityMedium:
			s.Medium++
		case shared.SeverityLow:
			s.Low++
		case shared.SeverityInfo:
			s.Info++
		}
	}
	score := s.Critical*weightCritical +
		s.High*weightHigh +
		s.Medium*weightMedium +
		s.Low*weightLow +
		s.Info*weightInfo
	if score > 100 {
		score = 100
	}
	s.RiskScore = score
	return s
}
