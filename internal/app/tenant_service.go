package app

import (
	"context"
	"fmt"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
	"github.com/forgescan/api/pkg/logger"
)

// TenantService handles tenant lifecycle and plan management.
type TenantService struct {
	repo   tenant.Repository
	logger *logger.Logger
}

// NewTenantService creates a new TenantService.
func NewTenantService(repo tenant.Repository, log *logger.Logger) *TenantService {
	return &TenantService{
		repo:   repo,
		logger: log.With("service", "tenant"),
	}
}

// CreateTenantInput represents the input for creating a tenant.
type CreateTenantInput struct {
	Name string `validate:"required,min=1,max=255"`
	Plan string `validate:"required"`
}

// CreateTenant creates a new tenant on the given plan.
func (s *TenantService) CreateTenant(ctx context.Context, input CreateTenantInput) (*tenant.Tenant, error) {
	t, err := tenant.New(input.Name, tenant.Plan(input.Plan))
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	s.logger.Info("tenant created", "id", t.ID.String(), "plan", t.Plan.String())
	return t, nil
}

// GetTenant retrieves a tenant by ID.
func (s *TenantService) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	tenantID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, tenantID)
}

// ChangePlan moves a tenant to a new plan.
func (s *TenantService) ChangePlan(ctx context.Context, id, plan string) (*tenant.Tenant, error) {
	tenantID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := t.ChangePlan(tenant.Plan(plan)); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}

	s.logger.Info("tenant plan changed", "id", id, "plan", plan)
	return t, nil
}

// DeactivateTenant disables a tenant. Its gate evaluations fail closed
// from that point on.
func (s *TenantService) DeactivateTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	tenantID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t.Deactivate()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}

	s.logger.Info("tenant deactivated", "id", id)
	return t, nil
}

// ListTenants retrieves all active tenants.
func (s *TenantService) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.repo.List(ctx)
}
