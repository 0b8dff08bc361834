package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
)

func TestPlanLimits(t *testing.T) {
	tests := []struct {
		plan         tenant.Plan
		hardFails    int
		maxConcScans int
	}{
		{tenant.PlanFree, 1, 1},
		{tenant.PlanDeveloper, -1, 3},
		{tenant.PlanTeam, -1, 10},
		{tenant.PlanEnterprise, -1, 25},
	}
	for _, tt := range tests {
		t.Run(tt.plan.String(), func(t *testing.T) {
			assert.Equal(t, tt.hardFails, tt.plan.HardFailQuota())
			assert.Equal(t, tt.maxConcScans, tt.plan.MaxConcurrentScans())
		})
	}
}

func TestNew(t *testing.T) {
	tn, err := tenant.New("Acme Corp", tenant.PlanTeam)
	require.NoError(t, err)
	assert.False(t, tn.ID.IsZero())
	assert.True(t, tn.IsActive)
	assert.Equal(t, tenant.PlanTeam, tn.Plan)
}

func TestNew_Validation(t *testing.T) {
	_, err := tenant.New("  ", tenant.PlanFree)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = tenant.New("Acme Corp", tenant.Plan("platinum"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestChangePlan(t *testing.T) {
	tn, err := tenant.New("Acme Corp", tenant.PlanFree)
	require.NoError(t, err)

	require.NoError(t, tn.ChangePlan(tenant.PlanEnterprise))
	assert.Equal(t, tenant.PlanEnterprise, tn.Plan)

	err = tn.ChangePlan(tenant.Plan("platinum"))
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, tenant.PlanEnterprise, tn.Plan, "plan stays put on invalid input")
}

func TestDeactivate(t *testing.T) {
	tn, err := tenant.New("Acme Corp", tenant.PlanFree)
	require.NoError(t, err)

	tn.Deactivate()
	assert.False(t, tn.IsActive)
}
