package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/forgescan/api/internal/metrics"
	"github.com/forgescan/api/pkg/domain/enforcement"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
	"github.com/forgescan/api/pkg/logger"
)

// Transactor runs a function inside one database transaction. The postgres
// DB wrapper implements it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// EnforcementService evaluates the release gate and manages decisions.
type EnforcementService struct {
	db          Transactor
	tenants     tenant.Repository
	decisions   enforcement.Repository
	evidence    evidence.Repository
	remediation *RemediationService
	logger      *logger.Logger
}

// NewEnforcementService creates a new EnforcementService.
func NewEnforcementService(
	db Transactor,
	tenants tenant.Repository,
	decisions enforcement.Repository,
	evidenceRepo evidence.Repository,
	remediation *RemediationService,
	log *logger.Logger,
) *EnforcementService {
	return &EnforcementService{
		db:          db,
		tenants:     tenants,
		decisions:   decisions,
		evidence:    evidenceRepo,
		remediation: remediation,
		logger:      log.With("service", "enforcement"),
	}
}

// GateInput represents the input for a gate evaluation.
type GateInput struct {
	TenantID   string `validate:"required,uuid"`
	PipelineID string `validate:"max=255"`
}

// GateResult is what a CI pipeline acts on.
type GateResult struct {
	DecisionID       string              `json:"decision_id"`
	MaxPriority      float64             `json:"max_priority"`
	EnforcementLevel enforcement.Level   `json:"enforcement_level"`
	Decision         enforcement.Outcome `json:"decision"`
	Reason           string              `json:"reason"`
	AssetAtRisk      string              `json:"asset_at_risk,omitempty"`
	FinancialRiskUSD float64             `json:"financial_risk_usd,omitempty"`
	RequiredAction   string              `json:"required_action,omitempty"`
	QuotaExhausted   bool                `json:"quota_exhausted"`
	DecidedAt        time.Time           `json:"decided_at"`
}

// Gate evaluates the release gate for a tenant. The worst open business
// rank is mapped to an enforcement band; a HARD_FAIL additionally consumes
// the plan's monthly quota. On an exhausted quota the verdict stays BLOCK
// with a distinct refusal reason, never a silent downgrade. The decision
// and its evidence records commit in one transaction, with the tenant row
// locked so two concurrent pipelines cannot both pass a quota of one.
func (s *EnforcementService) Gate(ctx context.Context, input GateInput) (*GateResult, error) {
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	s.logger.Info("evaluating release gate",
		"tenant_id", input.TenantID, "pipeline_id", input.PipelineID)

	maxRank, worst, err := s.remediation.MaxOpenRank(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	level, outcome, reason := enforcement.Evaluate(maxRank)

	var result *GateResult
	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		t, err := s.tenants.GetByIDForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		quotaExhausted := false
		if level == enforcement.LevelHardFail {
			if quota := t.Plan.HardFailQuota(); quota >= 0 {
				used, err := s.decisions.CountHardFailsInMonth(ctx, tx, tenantID, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("count hard fails: %w", err)
				}
				if used >= quota {
					quotaExhausted = true
					reason = fmt.Sprintf(
						"Quota check failed: plan %s allows %d hard-fail decision(s) per month, %d already used. Risk of max priority %.0f remains unevaluated; upgrade the plan or remediate before re-running.",
						t.Plan, quota, used, maxRank)
				}
			}
		}

		d, err := enforcement.NewDecision(tenantID, input.PipelineID, maxRank, level, outcome, reason)
		if err != nil {
			return err
		}
		if worst != nil {
			d.SetRiskContext(worst.AssetName, worst.DowntimeCostPerHour, worst.RequiredAction)
		}
		if err := s.decisions.CreateInTx(ctx, tx, d); err != nil {
			return fmt.Errorf("persist decision: %w", err)
		}
		if err := s.appendDecisionEvidence(ctx, tx, d, quotaExhausted); err != nil {
			return err
		}

		result = &GateResult{
			DecisionID:       d.ID().String(),
			MaxPriority:      d.MaxPriority(),
			EnforcementLevel: d.Level(),
			Decision:         d.Outcome(),
			Reason:           d.Reason(),
			AssetAtRisk:      d.AssetAtRisk(),
			FinancialRiskUSD: d.FinancialRiskUSD(),
			RequiredAction:   d.RequiredAction(),
			QuotaExhausted:   quotaExhausted,
			DecidedAt:        d.DecidedAt(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GateDecisionsTotal.WithLabelValues(input.TenantID, string(result.Decision)).Inc()
	if result.QuotaExhausted {
		metrics.GateQuotaRefusalsTotal.WithLabelValues(input.TenantID).Inc()
	}

	s.logger.Info("gate decided",
		"tenant_id", input.TenantID,
		"decision_id", result.DecisionID,
		"decision", string(result.Decision),
		"max_priority", result.MaxPriority,
		"quota_exhausted", result.QuotaExhausted)
	return result, nil
}

// appendDecisionEvidence writes the ENFORCEMENT record and the CI_DECISION
// record in the gate transaction, so a decision without its evidence can
// never exist.
func (s *EnforcementService) appendDecisionEvidence(ctx context.Context, tx *sql.Tx, d *enforcement.Decision, quotaExhausted bool) error {
	entity := "decision:" + d.ID().String()

	full, err := evidence.NewRecord(d.TenantID(), evidence.TypeEnforcement, entity, map[string]any{
		"decision_id":        d.ID().String(),
		"pipeline_id":        d.PipelineID(),
		"max_priority":       d.MaxPriority(),
		"enforcement_level":  string(d.Level()),
		"decision":           string(d.Outcome()),
		"reason":             d.Reason(),
		"asset_at_risk":      d.AssetAtRisk(),
		"financial_risk_usd": d.FinancialRiskUSD(),
		"required_action":    d.RequiredAction(),
		"quota_exhausted":    quotaExhausted,
	})
	if err != nil {
		return err
	}
	if err := s.evidence.AppendInTx(ctx, tx, full); err != nil {
		return fmt.Errorf("append enforcement evidence: %w", err)
	}

	ciEntity := entity
	if d.PipelineID() != "" {
		ciEntity = "pipeline:" + d.PipelineID()
	}
	ci, err := evidence.NewRecord(d.TenantID(), evidence.TypeCIDecision, ciEntity, map[string]any{
		"decision_id":       d.ID().String(),
		"decision":          string(d.Outcome()),
		"enforcement_level": string(d.Level()),
		"max_priority":      d.MaxPriority(),
		"reason":            d.Reason(),
	})
	if err != nil {
		return err
	}
	if err := s.evidence.AppendInTx(ctx, tx, ci); err != nil {
		return fmt.Errorf("append CI decision evidence: %w", err)
	}

	metrics.EvidenceAppendsTotal.WithLabelValues(
		d.TenantID().String(), evidence.TypeEnforcement.String()).Inc()
	metrics.EvidenceAppendsTotal.WithLabelValues(
		d.TenantID().String(), evidence.TypeCIDecision.String()).Inc()
	return nil
}

// History retrieves recent gate decisions, newest first.
func (s *EnforcementService) History(ctx context.Context, tenantID string, limit int) ([]*enforcement.Decision, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.decisions.ListByTenant(ctx, tid, limit)
}

// GetDecision retrieves one decision by ID.
func (s *EnforcementService) GetDecision(ctx context.Context, id string) (*enforcement.Decision, error) {
	decisionID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid decision ID", shared.ErrValidation)
	}
	return s.decisions.GetByID(ctx, decisionID)
}

// AcknowledgeInput represents the input for acknowledging a decision.
type AcknowledgeInput struct {
	DecisionID string `validate:"required,uuid"`
	AckedBy    string `validate:"required,uuid"`
}

// Acknowledge marks a SOFT_FAIL decision acknowledged. The entity enforces
// the exactly-once and SOFT_FAIL-only constraints.
func (s *EnforcementService) Acknowledge(ctx context.Context, input AcknowledgeInput) (*enforcement.Decision, error) {
	decisionID, err := shared.IDFromString(input.DecisionID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid decision ID", shared.ErrValidation)
	}
	actorID, err := shared.IDFromString(input.AckedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid actor ID", shared.ErrValidation)
	}

	d, err := s.decisions.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if err := d.Acknowledge(actorID); err != nil {
		return nil, err
	}
	if err := s.decisions.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("persist acknowledgement: %w", err)
	}

	s.logger.Info("decision acknowledged",
		"decision_id", input.DecisionID, "acked_by", input.AckedBy)
	return d, nil
}

// QuotaStatus reports a tenant's remaining hard-fail budget.
type QuotaStatus struct {
	Plan          string `json:"plan"`
	HardFailQuota int    `json:"hard_fail_quota"` // -1 means unlimited
	UsedThisMonth int    `json:"used_this_month"`
	Remaining     int    `json:"remaining"` // -1 means unlimited
	Allowed       bool   `json:"allowed"`
}

// Quota reports whether the tenant can still receive a HARD_FAIL verdict
// this month.
func (s *EnforcementService) Quota(ctx context.Context, tenantID string) (*QuotaStatus, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	var status *QuotaStatus
	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		t, err := s.tenants.GetByIDForUpdate(ctx, tx, tid)
		if err != nil {
			return err
		}
		quota := t.Plan.HardFailQuota()
		used, err := s.decisions.CountHardFailsInMonth(ctx, tx, tid, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("count hard fails: %w", err)
		}

		status = &QuotaStatus{
			Plan:          t.Plan.String(),
			HardFailQuota: quota,
			UsedThisMonth: used,
			Remaining:     -1,
			Allowed:       true,
		}
		if quota >= 0 {
			remaining := quota - used
			if remaining < 0 {
				remaining = 0
			}
			status.Remaining = remaining
			status.Allowed = remaining > 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}
