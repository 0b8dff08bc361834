package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/rule"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
)

// RemediationService matches open findings to remediation rules and prices
// them against business context. It produces two scores per finding: a
// technical triage class (P0-P4, asset-independent) and, where a rule and
// asset apply, the additive business rank the enforcement gate consumes.
type RemediationService struct {
	findings     finding.Repository
	assets       asset.Repository
	matcher      *rule.Matcher
	remediations []rule.RemediationRule
	logger       *logger.Logger
}

// NewRemediationService creates a RemediationService from a rule bundle.
// The bundle's declared order is preserved so overlapping matchers resolve
// deterministically.
func NewRemediationService(
	findings finding.Repository,
	assets asset.Repository,
	bundle rule.Bundle,
	log *logger.Logger,
) (*RemediationService, error) {
	m, err := rule.NewMatcher(bundle.Matchers)
	if err != nil {
		return nil, fmt.Errorf("compile matcher rules: %w", err)
	}
	for _, r := range bundle.Remediations {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("remediation rule %s: %w", r.VulnType, err)
		}
	}
	return &RemediationService{
		findings:     findings,
		assets:       assets,
		matcher:      m,
		remediations: bundle.Remediations,
		logger:       log.With("service", "remediation"),
	}, nil
}

// PlanItem is one prioritized entry of a remediation plan.
type PlanItem struct {
	FindingID   string          `json:"finding_id"`
	Title       string          `json:"title"`
	Scanner     string          `json:"scanner"`
	Severity    shared.Severity `json:"severity"`
	FirstSeenAt time.Time       `json:"first_seen_at"`

	// Technical triage, computed per finding without asset context.
	MatchedRuleID     string             `json:"matched_rule_id,omitempty"`
	RecommendedAction string             `json:"recommended_action,omitempty"`
	Timeframe         string             `json:"timeframe,omitempty"`
	Confidence        string             `json:"confidence,omitempty"`
	PriorityScore     int                `json:"priority_score"`
	PriorityClass     rule.PriorityClass `json:"priority_class"`

	// Business rank, present only when a remediation rule applies.
	VulnType            string  `json:"vuln_type,omitempty"`
	PriorityRank        float64 `json:"priority_rank,omitempty"`
	HasRank             bool    `json:"has_rank"`
	SeverityLabel       string  `json:"severity_label,omitempty"`
	RequiredAction      string  `json:"required_action,omitempty"`
	RemediationCommand  string  `json:"remediation_command,omitempty"`
	MitigationTimeHours int     `json:"mitigation_sla_hours,omitempty"`

	// Asset context, zero-valued for unmapped findings.
	AssetName             string   `json:"asset_name,omitempty"`
	AssetType             string   `json:"asset_type,omitempty"`
	DataSensitivity       string   `json:"data_sensitivity,omitempty"`
	DowntimeCostPerHour   float64  `json:"downtime_cost_per_hour,omitempty"`
	ComplianceObligations []string `json:"compliance_obligations,omitempty"`
	BusinessImpact        string   `json:"business_impact,omitempty"`
	FinancialRisk         string   `json:"financial_risk,omitempty"`
}

// Plan builds the full remediation plan for a tenant from its open
// findings, sorted worst first: business rank (or triage score for
// unranked findings) descending, then severity, then oldest first.
func (s *RemediationService) Plan(ctx context.Context, tenantID string) ([]PlanItem, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	open, err := s.findings.ListOpenByTenant(ctx, tid)
	if err != nil {
		return nil, fmt.Errorf("load open findings: %w", err)
	}

	items := make([]PlanItem, 0, len(open))
	for _, f := range open {
		item, err := s.evaluate(ctx, tid, f)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sortPlan(items)

	s.logger.Info("remediation plan generated", "tenant_id", tenantID, "items", len(items))
	return items, nil
}

// evaluate scores one finding on both paths.
func (s *RemediationService) evaluate(ctx context.Context, tenantID shared.ID, f *finding.Finding) (PlanItem, error) {
	item := PlanItem{
		FindingID:   f.ID().String(),
		Title:       f.Title(),
		Scanner:     f.Scanner(),
		Severity:    f.Severity(),
		FirstSeenAt: f.FirstSeenAt(),
	}

	// Triage class: first matching rule wins; an unmatched finding still
	// gets a class from its severity alone.
	techSeverity := rule.TechnicalSeverity(f.Severity())
	impact := rule.ImpactLow
	if mr := s.matcher.Match(f.Title(), f.Description()); mr != nil {
		item.MatchedRuleID = mr.ID
		item.RecommendedAction = mr.Action
		item.Timeframe = mr.Timeframe
		item.Confidence = mr.Confidence
		if mr.TechnicalSeverity > 0 {
			techSeverity = mr.TechnicalSeverity
		}
		impact = mr.BusinessImpact
	}
	item.PriorityScore = rule.PriorityScore(techSeverity, 1, impact)
	item.PriorityClass = rule.ClassForScore(item.PriorityScore)

	// Business rank: needs a remediation rule for the vulnerability type.
	rr, ok := s.remediationRuleFor(f)
	if !ok {
		return item, nil
	}
	a, err := s.resolveAsset(ctx, tenantID, f)
	if err != nil {
		return PlanItem{}, err
	}

	item.VulnType = rr.VulnType
	item.PriorityRank = rule.Rank(rr, a)
	item.HasRank = true
	item.SeverityLabel = rr.SeverityLabel
	item.RequiredAction = rr.RequiredAction
	item.MitigationTimeHours = rr.MitigationTimeHours
	item.RemediationCommand = rr.FixTemplate

	if a != nil {
		item.AssetName = a.Name()
		item.AssetType = a.AssetType().String()
		item.DataSensitivity = a.Sensitivity().String()
		item.DowntimeCostPerHour = a.DowntimeCostPerHour()
		item.ComplianceObligations = a.ComplianceFrameworks()
		item.BusinessImpact = describeBusinessImpact(a)
		item.FinancialRisk = describeFinancialRisk(rr.SeverityLabel, a)
		if strings.Contains(rr.FixTemplate, "%s") {
			item.RemediationCommand = fmt.Sprintf(rr.FixTemplate, a.QualifiedName())
		}
	}
	return item, nil
}

// remediationRuleFor resolves the remediation rule for a finding. An
// explicit vuln_type in the finding metadata wins; otherwise the rule's
// type, underscores read as spaces, is matched against the finding text.
func (s *RemediationService) remediationRuleFor(f *finding.Finding) (rule.RemediationRule, bool) {
	meta := f.Metadata()
	if vt, ok := meta["vuln_type"].(string); ok && vt != "" {
		for _, rr := range s.remediations {
			if strings.EqualFold(rr.VulnType, vt) {
				return rr, true
			}
		}
		return rule.RemediationRule{}, false
	}

	text := strings.ToLower(f.Title() + " " + f.Description())
	for _, rr := range s.remediations {
		phrase := strings.ToLower(strings.ReplaceAll(rr.VulnType, "_", " "))
		if strings.Contains(text, phrase) {
			return rr, true
		}
	}
	return rule.RemediationRule{}, false
}

// resolveAsset finds the business asset behind a finding. An unmapped
// finding scores with no asset bonuses, which is the documented default.
func (s *RemediationService) resolveAsset(ctx context.Context, tenantID shared.ID, f *finding.Finding) (*asset.BusinessAsset, error) {
	if id := f.AssetID(); id != nil {
		a, err := s.assets.GetByID(ctx, *id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("load asset %s: %w", id, err)
		}
	}
	if name, ok := f.Metadata()["asset"].(string); ok && name != "" {
		a, err := s.assets.GetByName(ctx, tenantID, name)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("load asset %q: %w", name, err)
		}
	}
	return nil, nil
}

// MaxOpenRank returns the worst business rank among a tenant's open
// findings. The enforcement gate evaluates this number against its bands.
func (s *RemediationService) MaxOpenRank(ctx context.Context, tenantID shared.ID) (float64, *PlanItem, error) {
	open, err := s.findings.ListOpenByTenant(ctx, tenantID)
	if err != nil {
		return 0, nil, fmt.Errorf("load open findings: %w", err)
	}

	var maxRank float64
	var worst *PlanItem
	for _, f := range open {
		item, err := s.evaluate(ctx, tenantID, f)
		if err != nil {
			return 0, nil, err
		}
		if !item.HasRank {
			continue
		}
		if worst == nil || item.PriorityRank > maxRank {
			maxRank = item.PriorityRank
			cp := item
			worst = &cp
		}
	}
	return maxRank, worst, nil
}

// severityLabelRank orders plan severity labels worst first.
var severityLabelRank = map[string]int{
	"CRITICAL": 0,
	"HIGH":     1,
	"MEDIUM":   2,
	"LOW":      3,
}

func sortPlan(items []PlanItem) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := planSortScore(items[i]), planSortScore(items[j])
		if si != sj {
			return si > sj
		}
		li, lj := planLabelRank(items[i]), planLabelRank(items[j])
		if li != lj {
			return li < lj
		}
		return items[i].FirstSeenAt.Before(items[j].FirstSeenAt)
	})
}

func planSortScore(it PlanItem) float64 {
	if it.HasRank {
		return it.PriorityRank
	}
	return float64(it.PriorityScore)
}

func planLabelRank(it PlanItem) int {
	label := it.SeverityLabel
	if label == "" {
		label = strings.ToUpper(string(it.Severity))
	}
	if r, ok := severityLabelRank[label]; ok {
		return r
	}
	return len(severityLabelRank)
}

// TenantSummary is the roll-up view of a tenant's remediation posture.
type TenantSummary struct {
	TenantID string `json:"tenant_id"`

	Summary struct {
		TotalFindings int `json:"total_findings"`
		CriticalCount int `json:"critical_count"`
		HighCount     int `json:"high_count"`
		MediumCount   int `json:"medium_count"`
		LowCount      int `json:"low_count"`
		TotalAssets   int `json:"total_assets"`
	} `json:"summary"`

	Risk struct {
		TotalDowntimeRiskUSD1Hr  float64            `json:"total_downtime_risk_usd_1hr"`
		EstimatedComplianceFines map[string]float64 `json:"estimated_compliance_fines_usd"`
	} `json:"risk"`

	CriticalRemediations []PlanItem `json:"critical_remediations"`

	AssetSummary struct {
		RevenueAssets    int `json:"revenue_assets"`
		PCIAssets        int `json:"pci_assets"`
		ComplianceAssets int `json:"compliance_assets"`
	} `json:"asset_summary"`
}

// maxCriticalRemediations caps the top-priority list in the summary.
const maxCriticalRemediations = 10

// Summary builds the tenant remediation roll-up: plan counts by severity
// label, downtime exposure of critical items over a one-hour SLA, projected
// compliance fines across the tenant's PCI assets, and the top critical
// remediations.
func (s *RemediationService) Summary(ctx context.Context, tenantID string) (*TenantSummary, error) {
	plan, err := s.Plan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	assets, err := s.listAllAssets(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := &TenantSummary{TenantID: tenantID}
	out.Summary.TotalFindings = len(plan)
	out.Summary.TotalAssets = len(assets)

	var critical []PlanItem
	for _, item := range plan {
		switch planLabel(item) {
		case "CRITICAL":
			out.Summary.CriticalCount++
			critical = append(critical, item)
			// One hour of outage per critical item, matching the SLA of the
			// worst rules.
			out.Risk.TotalDowntimeRiskUSD1Hr += item.DowntimeCostPerHour
		case "HIGH":
			out.Summary.HighCount++
		case "MEDIUM":
			out.Summary.MediumCount++
		default:
			out.Summary.LowCount++
		}
	}
	if len(critical) > maxCriticalRemediations {
		critical = critical[:maxCriticalRemediations]
	}
	out.CriticalRemediations = critical

	var pciRecords int64
	for _, a := range assets {
		switch a.AssetType() {
		case asset.TypeRevenue:
			out.AssetSummary.RevenueAssets++
		case asset.TypeCompliance:
			out.AssetSummary.ComplianceAssets++
		}
		if a.Sensitivity() == asset.SensitivityPCI {
			out.AssetSummary.PCIAssets++
			pciRecords += a.MaxExposureRecords()
		}
	}

	out.Risk.EstimatedComplianceFines = make(map[string]float64)
	if out.AssetSummary.PCIAssets > 0 {
		for _, fine := range rule.EstimateFines([]string{"PCI-DSS", "GDPR"}, pciRecords) {
			out.Risk.EstimatedComplianceFines[fine.Framework] = fine.EstimatedFineUSD
		}
	}

	return out, nil
}

// EstimateFines projects regulatory fines for a hypothetical breach.
func (s *RemediationService) EstimateFines(frameworks []string, records int64) []rule.FineEstimate {
	return rule.EstimateFines(frameworks, records)
}

// listAllAssets pages through every asset of the tenant.
func (s *RemediationService) listAllAssets(ctx context.Context, tenantID string) ([]*asset.BusinessAsset, error) {
	var all []*asset.BusinessAsset
	page := 1
	for {
		res, err := s.assets.List(ctx, asset.Filter{TenantID: &tenantID}, pagination.New(page, 100))
		if err != nil {
			return nil, fmt.Errorf("load business assets: %w", err)
		}
		all = append(all, res.Data...)
		if page >= res.TotalPages || len(res.Data) == 0 {
			break
		}
		page++
	}
	return all, nil
}

func planLabel(it PlanItem) string {
	if it.SeverityLabel != "" {
		return it.SeverityLabel
	}
	return strings.ToUpper(string(it.Severity))
}

func describeBusinessImpact(a *asset.BusinessAsset) string {
	return fmt.Sprintf("Risk to %s. Est. downtime cost: $%.0f/hr",
		a.AssetType(), a.DowntimeCostPerHour())
}

func describeFinancialRisk(severityLabel string, a *asset.BusinessAsset) string {
	switch {
	case a.AssetType() == asset.TypeRevenue:
		return severityLabel + ": REVENUE LOSS"
	case a.Sensitivity().IsRegulated():
		return severityLabel + ": REGULATORY EXPOSURE"
	default:
		return severityLabel + ": OPERATIONAL RISK"
	}
}
