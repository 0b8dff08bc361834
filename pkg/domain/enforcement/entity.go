// Package enforcement contains the CI/CD release gate decision model. The
// gate turns the worst outstanding priority rank into a deterministic
// pass/fail verdict that pipelines consume.
package enforcement

import (
	"fmt"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Level is the internal enforcement level of a decision.
type Level string

// Enforcement levels.
const (
	LevelHardFail Level = "HARD_FAIL"
	LevelSoftFail Level = "SOFT_FAIL"
	LevelWarn     Level = "WARN"
	LevelInfo     Level = "INFO"
)

// Outcome is the verdict a CI pipeline acts on.
type Outcome string

// Gate outcomes.
const (
	OutcomeBlock        Outcome = "BLOCK"
	OutcomeAllowWithAck Outcome = "ALLOW_WITH_ACK"
	OutcomeWarn         Outcome = "WARN"
	OutcomeAllow        Outcome = "ALLOW"
)

// Gate band thresholds over the business priority rank.
const (
	HardFailThreshold = 100
	SoftFailThreshold = 80
	WarnThreshold     = 60
)

// Evaluate maps the worst outstanding priority rank to an enforcement level
// and outcome. Band edges are inclusive on the lower bound: 100 blocks, 99
// soft-fails, 80 soft-fails, 79 warns, 60 warns, 59 passes.
func Evaluate(maxPriority float64) (Level, Outcome, string) {
	switch {
	case maxPriority >= HardFailThreshold:
		return LevelHardFail, OutcomeBlock,
			fmt.Sprintf("Critical business risk detected: max priority %.0f requires immediate remediation", maxPriority)
	case maxPriority >= SoftFailThreshold:
		return LevelSoftFail, OutcomeAllowWithAck,
			fmt.Sprintf("High business risk detected: max priority %.0f requires explicit acknowledgement", maxPriority)
	case maxPriority >= WarnThreshold:
		return LevelWarn, OutcomeWarn,
			fmt.Sprintf("Elevated risk: max priority %.0f, remediation recommended before release", maxPriority)
	default:
		return LevelInfo, OutcomeAllow, "No blocking risk detected"
	}
}

// Decision is an immutable record of a gate evaluation. Only the
// acknowledgement fields may change after creation, and only once.
type Decision struct {
	id               shared.ID
	tenantID         shared.ID
	pipelineID       string
	maxPriority      float64
	level            Level
	outcome          Outcome
	reason           string
	assetAtRisk      string
	financialRiskUSD float64
	requiredAction   string
	decidedAt        time.Time
	ackedBy          *shared.ID
	ackedAt          *time.Time
}

// NewDecision records a gate evaluation for a tenant.
func NewDecision(
	tenantID shared.ID,
	pipelineID string,
	maxPriority float64,
	level Level,
	outcome Outcome,
	reason string,
) (*Decision, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("%w: tenant ID is required", shared.ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", shared.ErrValidation)
	}
	return &Decision{
		id:          shared.NewID(),
		tenantID:    tenantID,
		pipelineID:  pipelineID,
		maxPriority: maxPriority,
		level:       level,
		outcome:     outcome,
		reason:      reason,
		decidedAt:   time.Now().UTC(),
	}, nil
}

// Reconstitute recreates a Decision from persistence.
func Reconstitute(
	id shared.ID,
	tenantID shared.ID,
	pipelineID string,
	maxPriority float64,
	level Level,
	outcome Outcome,
	reason string,
	assetAtRisk string,
	financialRiskUSD float64,
	requiredAction string,
	decidedAt time.Time,
	ackedBy *shared.ID,
	ackedAt *time.Time,
) *Decision {
	return &Decision{
		id:               id,
		tenantID:         tenantID,
		pipelineID:       pipelineID,
		maxPriority:      maxPriority,
		level:            level,
		outcome:          outcome,
		reason:           reason,
		assetAtRisk:      assetAtRisk,
		financialRiskUSD: financialRiskUSD,
		requiredAction:   requiredAction,
		decidedAt:        decidedAt,
		ackedBy:          ackedBy,
		ackedAt:          ackedAt,
	}
}

// ID returns the decision ID.
func (d *Decision) ID() shared.ID { return d.id }

// TenantID returns the owning tenant ID.
func (d *Decision) TenantID() shared.ID { return d.tenantID }

// PipelineID returns the CI pipeline identifier, empty for ad hoc checks.
func (d *Decision) PipelineID() string { return d.pipelineID }

// MaxPriority returns the worst priority rank the gate saw.
func (d *Decision) MaxPriority() float64 { return d.maxPriority }

// Level returns the enforcement level.
func (d *Decision) Level() Level { return d.level }

// Outcome returns the gate outcome.
func (d *Decision) Outcome() Outcome { return d.outcome }

// Reason returns the human-readable reason.
func (d *Decision) Reason() string { return d.reason }

// AssetAtRisk returns the name of the worst-ranked asset, if recorded.
func (d *Decision) AssetAtRisk() string { return d.assetAtRisk }

// FinancialRiskUSD returns the estimated hourly exposure in USD.
func (d *Decision) FinancialRiskUSD() float64 { return d.financialRiskUSD }

// RequiredAction returns the remediation the gate demands, if any.
func (d *Decision) RequiredAction() string { return d.requiredAction }

// DecidedAt returns when the decision was made.
func (d *Decision) DecidedAt() time.Time { return d.decidedAt }

// AckedBy returns who acknowledged the decision, if anyone.
func (d *Decision) AckedBy() *shared.ID { return d.ackedBy }

// AckedAt returns when the decision was acknowledged, if it was.
func (d *Decision) AckedAt() *time.Time { return d.ackedAt }

// SetRiskContext attaches asset and financial context to the decision.
func (d *Decision) SetRiskContext(assetAtRisk string, financialRiskUSD float64, requiredAction string) {
	d.assetAtRisk = assetAtRisk
	d.financialRiskUSD = financialRiskUSD
	d.requiredAction = requiredAction
}

// IsAcknowledged reports whether the decision has been acknowledged.
func (d *Decision) IsAcknowledged() bool {
	return d.ackedAt != nil
}

// Acknowledge records the one-time acknowledgement of a soft fail.
func (d *Decision) Acknowledge(by shared.ID) error {
	if d.level != LevelSoftFail {
		return fmt.Errorf("%w: only SOFT_FAIL decisions can be acknowledged", shared.ErrValidation)
	}
	if d.IsAcknowledged() {
		return fmt.Errorf("%w: decision already acknowledged", shared.ErrConflict)
	}
	if by.IsZero() {
		return fmt.Errorf("%w: acknowledger is required", shared.ErrValidation)
	}
	now := time.Now().UTC()
	d.ackedBy = &by
	d.ackedAt = &now
	return nil
}
