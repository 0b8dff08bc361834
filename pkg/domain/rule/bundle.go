package rule

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// bundleFile is the on-disk YAML shape for rule overrides. The matcher list
// order in the file is the evaluation order.
type bundleFile struct {
	Matchers []struct {
		ID                string `yaml:"id"`
		Description       string `yaml:"description"`
		Matcher           string `yaml:"matcher"`
		TechnicalSeverity int    `yaml:"technical_severity"`
		BusinessImpact    string `yaml:"business_impact"`
		Action            string `yaml:"action"`
		Timeframe         string `yaml:"timeframe"`
		Confidence        string `yaml:"confidence"`
	} `yaml:"matchers"`
	Remediations []struct {
		VulnType            string  `yaml:"vuln_type"`
		ContextTrigger      string  `yaml:"context_trigger"`
		BasePriorityScore   float64 `yaml:"base_priority_score"`
		RevenueBonus        float64 `yaml:"revenue_bonus"`
		ComplianceBonus     float64 `yaml:"compliance_bonus"`
		ExposureMultiplier  float64 `yaml:"exposure_multiplier"`
		RequiredAction      string  `yaml:"required_action"`
		FixTemplate         string  `yaml:"fix_template"`
		SeverityLabel       string  `yaml:"severity_label"`
		MitigationTimeHours int     `yaml:"mitigation_time_hours"`
	} `yaml:"remediations"`
}

// Bundle is a loaded rule set: classification matchers plus the
// vulnerability pricing table.
type Bundle struct {
	Matchers     []*MatcherRule
	Remediations []RemediationRule
}

// DefaultBundle returns the built-in rule set.
func DefaultBundle() Bundle {
	return Bundle{
		Matchers:     DefaultMatcherRules(),
		Remediations: DefaultRemediationRules(),
	}
}

// LoadBundle parses a YAML rule bundle. Sections left empty in the file fall
// back to the defaults, so a bundle can override just the matchers.
func LoadBundle(r io.Reader) (Bundle, error) {
	var f bundleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Bundle{}, fmt.Errorf("decode rule bundle: %w", err)
	}

	b := DefaultBundle()
	if len(f.Matchers) > 0 {
		matchers := make([]*MatcherRule, 0, len(f.Matchers))
		for _, m := range f.Matchers {
			impact := BusinessImpact(m.BusinessImpact)
			if !impact.IsValid() {
				return Bundle{}, fmt.Errorf("rule %s: invalid business impact %q", m.ID, m.BusinessImpact)
			}
			matchers = append(matchers, &MatcherRule{
				ID:                m.ID,
				Description:       m.Description,
				Matcher:           m.Matcher,
				TechnicalSeverity: m.TechnicalSeverity,
				BusinessImpact:    impact,
				Action:            m.Action,
				Timeframe:         m.Timeframe,
				Confidence:        m.Confidence,
			})
		}
		b.Matchers = matchers
	}
	if len(f.Remediations) > 0 {
		remediations := make([]RemediationRule, 0, len(f.Remediations))
		for _, r := range f.Remediations {
			rr := RemediationRule{
				VulnType:            r.VulnType,
				ContextTrigger:      r.ContextTrigger,
				BasePriorityScore:   r.BasePriorityScore,
				RevenueBonus:        r.RevenueBonus,
				ComplianceBonus:     r.ComplianceBonus,
				ExposureMultiplier:  r.ExposureMultiplier,
				RequiredAction:      r.RequiredAction,
				FixTemplate:         r.FixTemplate,
				SeverityLabel:       r.SeverityLabel,
				MitigationTimeHours: r.MitigationTimeHours,
			}
			if err := rr.Validate(); err != nil {
				return Bundle{}, err
			}
			remediations = append(remediations, rr)
		}
		b.Remediations = remediations
	}
	return b, nil
}

// LoadBundleFile loads a YAML rule bundle from disk. An empty path returns
// the defaults.
func LoadBundleFile(path string) (Bundle, error) {
	if path == "" {
		return DefaultBundle(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("open rule bundle: %w", err)
	}
	defer f.Close()
	return LoadBundle(f)
}
