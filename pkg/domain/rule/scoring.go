package rule

import (
	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/shared"
)

// PriorityClass is the technical remediation class, P0 highest.
type PriorityClass string

// Priority classes.
const (
	P0 PriorityClass = "P0"
	P1 PriorityClass = "P1"
	P2 PriorityClass = "P2"
	P3 PriorityClass = "P3"
	P4 PriorityClass = "P4"
)

// TechnicalSeverity maps a normalized severity to the 1-10 scale used by the
// priority formula. Unknown severities map to 3.
func TechnicalSeverity(sev shared.Severity) int {
	switch sev {
	case shared.SeverityCritical:
		return 9
	case shared.SeverityHigh:
		return 7
	case shared.SeverityMedium:
		return 5
	case shared.SeverityLow:
		return 3
	case shared.SeverityInfo:
		return 1
	default:
		return 3
	}
}

// PriorityScore computes technicalSeverity x exploitability x impact.
// Exploitability defaults to 1 until threat intel raises it.
func PriorityScore(technicalSeverity, exploitability int, impact BusinessImpact) int {
	if technicalSeverity < 1 {
		technicalSeverity = 1
	}
	if exploitability < 1 {
		exploitability = 1
	}
	return technicalSeverity * exploitability * impact.Multiplier()
}

// ClassForScore maps a priority score to its class band.
func ClassForScore(score int) PriorityClass {
	switch {
	case score >= 24:
		return P0
	case score >= 16:
		return P1
	case score >= 8:
		return P2
	case score >= 4:
		return P3
	default:
		return P4
	}
}

// Rank computes the business priority rank of a remediation rule applied to
// an asset. A nil asset means the system was never tagged with business
// context and only the base score applies.
func Rank(r RemediationRule, a *asset.BusinessAsset) float64 {
	score := r.BasePriorityScore
	if a != nil {
		if a.AssetType() == asset.TypeRevenue {
			score += r.RevenueBonus
		}
		if a.Sensitivity().IsRegulated() {
			score += r.ComplianceBonus
		}
	}
	mult := r.ExposureMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	return score * mult
}
