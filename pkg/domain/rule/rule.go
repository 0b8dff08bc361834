// Package rule contains the deterministic prioritization rules. Matcher
// rules classify raw findings; remediation rules price a vulnerability type
// against the business context of the affected asset.
package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/forgescan/api/pkg/domain/shared"
)

// BusinessImpact is the multiplier band used by the priority formula.
type BusinessImpact string

// Business impact bands. The numeric values are powers of two so the class
// boundaries stay clean.
const (
	ImpactLow      BusinessImpact = "LOW"
	ImpactMedium   BusinessImpact = "MEDIUM"
	ImpactHigh     BusinessImpact = "HIGH"
	ImpactCritical BusinessImpact = "CRITICAL"
)

// Multiplier returns the numeric multiplier for the impact band. Unknown
// bands fall back to LOW.
func (b BusinessImpact) Multiplier() int {
	switch b {
	case ImpactCritical:
		return 8
	case ImpactHigh:
		return 4
	case ImpactMedium:
		return 2
	default:
		return 1
	}
}

// IsValid reports whether the impact band is known.
func (b BusinessImpact) IsValid() bool {
	switch b {
	case ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical:
		return true
	}
	return false
}

// MatcherRule classifies findings by regex match against title and
// description. Rules are evaluated in declared order and the first match
// wins, so broader patterns must come after narrower ones.
type MatcherRule struct {
	ID                string
	Description       string
	Matcher           string // pipe-separated case-insensitive patterns
	TechnicalSeverity int    // 1-10 override, 0 means derive from finding severity
	BusinessImpact    BusinessImpact
	Action            string
	Timeframe         string
	Confidence        string

	compiled []*regexp.Regexp
}

// Compile parses the matcher patterns. Must be called before Matches.
func (r *MatcherRule) Compile() error {
	if strings.TrimSpace(r.Matcher) == "" {
		return fmt.Errorf("%w: rule %s has no matcher", shared.ErrValidation, r.ID)
	}
	parts := strings.Split(r.Matcher, "|")
	r.compiled = make([]*regexp.Regexp, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern %q: %w", r.ID, p, err)
		}
		r.compiled = append(r.compiled, re)
	}
	if len(r.compiled) == 0 {
		return fmt.Errorf("%w: rule %s has no usable patterns", shared.ErrValidation, r.ID)
	}
	return nil
}

// Matches reports whether any pattern hits the title or description.
func (r *MatcherRule) Matches(title, description string) bool {
	for _, re := range r.compiled {
		if re.MatchString(title) || re.MatchString(description) {
			return true
		}
	}
	return false
}

// RemediationRule prices a vulnerability type against asset context.
// rank = base + revenueBonus[REVENUE asset] + complianceBonus[regulated data],
// scaled by the exposure multiplier.
type RemediationRule struct {
	VulnType            string
	ContextTrigger      string // REVENUE, PCI, GDPR, ALL
	BasePriorityScore   float64
	RevenueBonus        float64
	ComplianceBonus     float64
	ExposureMultiplier  float64
	RequiredAction      string
	FixTemplate         string
	SeverityLabel       string // CRITICAL, HIGH, MEDIUM, LOW
	MitigationTimeHours int
}

// Validate checks the rule is usable.
func (r RemediationRule) Validate() error {
	if strings.TrimSpace(r.VulnType) == "" {
		return fmt.Errorf("%w: vuln type is required", shared.ErrValidation)
	}
	if r.BasePriorityScore < 0 {
		return fmt.Errorf("%w: base priority score cannot be negative", shared.ErrValidation)
	}
	switch r.SeverityLabel {
	case "CRITICAL", "HIGH", "MEDIUM", "LOW":
	default:
		return fmt.Errorf("%w: invalid severity label %q", shared.ErrValidation, r.SeverityLabel)
	}
	return nil
}
