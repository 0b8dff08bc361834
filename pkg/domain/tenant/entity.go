// Package tenant contains the tenant plan model. Billing and user
// management live elsewhere; this package only knows what each plan is
// allowed to do.
package tenant

import (
	"fmt"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Plan is the subscription tier.
type Plan string

// Plans.
const (
	PlanFree       Plan = "free"
	PlanDeveloper  Plan = "developer"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// IsValid reports whether the plan is known.
func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanDeveloper, PlanTeam, PlanEnterprise:
		return true
	}
	return false
}

func (p Plan) String() string { return string(p) }

// HardFailQuota returns how many HARD_FAIL gate verdicts the plan may issue
// per calendar month. A negative value means unlimited.
func (p Plan) HardFailQuota() int {
	switch p {
	case PlanFree:
		return 1
	default:
		return -1
	}
}

// MaxConcurrentScans returns the scan admission limit for the plan.
func (p Plan) MaxConcurrentScans() int {
	switch p {
	case PlanFree:
		return 1
	case PlanDeveloper:
		return 3
	case PlanTeam:
		return 10
	default:
		return 25
	}
}

// Tenant is a customer account.
type Tenant struct {
	ID       shared.ID
	Name     string
	Plan     Plan
	Settings map[string]any
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an active tenant on the given plan.
func New(name string, plan Plan) (*Tenant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !plan.IsValid() {
		return nil, fmt.Errorf("%w: invalid plan %q", shared.ErrValidation, plan)
	}
	now := time.Now().UTC()
	return &Tenant{
		ID:        shared.NewID(),
		Name:      name,
		Plan:      plan,
		Settings:  make(map[string]any),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ChangePlan moves the tenant to a new plan.
func (t *Tenant) ChangePlan(plan Plan) error {
	if !plan.IsValid() {
		return fmt.Errorf("%w: invalid plan %q", shared.ErrValidation, plan)
	}
	t.Plan = plan
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate disables the tenant.
func (t *Tenant) Deactivate() {
	t.IsActive = false
	t.UpdatedAt = time.Now().UTC()
}
