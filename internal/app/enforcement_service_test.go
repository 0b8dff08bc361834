package app_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/enforcement"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/rule"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
	"github.com/forgescan/api/pkg/logger"
)

type gateFixture struct {
	tenants   *fakeTenantRepo
	findings  *fakeFindingRepo
	assets    *fakeAssetRepo
	decisions *fakeDecisionRepo
	evidence  *fakeEvidenceRepo
	svc       *app.EnforcementService
	tenantID  shared.ID
}

func newGateFixture(t *testing.T, plan tenant.Plan, bundle rule.Bundle) *gateFixture {
	t.Helper()

	fx := &gateFixture{
		tenants:   newFakeTenantRepo(),
		findings:  newFakeFindingRepo(),
		assets:    newFakeAssetRepo(),
		decisions: newFakeDecisionRepo(),
		evidence:  newFakeEvidenceRepo(),
	}

	tn, err := tenant.New("acme", plan)
	require.NoError(t, err)
	require.NoError(t, fx.tenants.Create(context.Background(), tn))
	fx.tenantID = tn.ID

	log := logger.NewNop()
	remediation, err := app.NewRemediationService(fx.findings, fx.assets, bundle, log)
	require.NoError(t, err)
	fx.svc = app.NewEnforcementService(
		fakeTransactor{}, fx.tenants, fx.decisions, fx.evidence, remediation, log)
	return fx
}

// probeBundle builds a rule set where one vuln type ranks at exactly the
// given score for an unmapped finding.
func probeBundle(base float64) rule.Bundle {
	return rule.Bundle{
		Matchers: rule.DefaultMatcherRules(),
		Remediations: []rule.RemediationRule{{
			VulnType:            "GATE_PROBE",
			ContextTrigger:      "ALL",
			BasePriorityScore:   base,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Fix it",
			SeverityLabel:       "HIGH",
			MitigationTimeHours: 24,
		}},
	}
}

func (fx *gateFixture) addProbeFinding(t *testing.T, vulnType string) *finding.Finding {
	t.Helper()
	f, err := finding.New(fx.tenantID, "web_scanner", "probe.rule", "Probe finding", shared.SeverityHigh)
	require.NoError(t, err)
	f.SetMetadata("vuln_type", vulnType)
	require.NoError(t, fx.findings.Create(context.Background(), f))
	return f
}

func TestEnforcementService_Gate_Bands(t *testing.T) {
	cases := []struct {
		rank    float64
		level   enforcement.Level
		outcome enforcement.Outcome
	}{
		{59, enforcement.LevelInfo, enforcement.OutcomeAllow},
		{60, enforcement.LevelWarn, enforcement.OutcomeWarn},
		{79, enforcement.LevelWarn, enforcement.OutcomeWarn},
		{80, enforcement.LevelSoftFail, enforcement.OutcomeAllowWithAck},
		{99, enforcement.LevelSoftFail, enforcement.OutcomeAllowWithAck},
		{100, enforcement.LevelHardFail, enforcement.OutcomeBlock},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("rank %.0f", tc.rank), func(t *testing.T) {
			fx := newGateFixture(t, tenant.PlanEnterprise, probeBundle(tc.rank))
			fx.addProbeFinding(t, "GATE_PROBE")

			res, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
			require.NoError(t, err)
			assert.Equal(t, tc.level, res.EnforcementLevel)
			assert.Equal(t, tc.outcome, res.Decision)
			assert.Equal(t, tc.rank, res.MaxPriority)
			assert.False(t, res.QuotaExhausted)
			assert.NotEmpty(t, res.DecisionID)
		})
	}
}

func TestEnforcementService_Gate_NoOpenFindings(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanFree, rule.DefaultBundle())

	res, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
	require.NoError(t, err)
	assert.Equal(t, enforcement.OutcomeAllow, res.Decision)
	assert.Equal(t, enforcement.LevelInfo, res.EnforcementLevel)
	assert.Zero(t, res.MaxPriority)
}

func TestEnforcementService_Gate_RLSBypassScenario(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanEnterprise, rule.DefaultBundle())

	a, err := asset.New(fx.tenantID, "tenant1.orders", asset.TypeRevenue, asset.SensitivityPCI)
	require.NoError(t, err)
	a.SetLocation("tenant1", "orders")
	require.NoError(t, a.SetFinancials(50000, 1000000))
	require.NoError(t, fx.assets.Create(context.Background(), a))

	f := fx.addProbeFinding(t, "RLS_BYPASS")
	f.AttachAsset(a.ID())
	require.NoError(t, fx.findings.Update(context.Background(), f))

	res, err := fx.svc.Gate(context.Background(), app.GateInput{
		TenantID:   fx.tenantID.String(),
		PipelineID: "pipe-42",
	})
	require.NoError(t, err)

	// base 100 + revenue 20 + compliance 30
	assert.Equal(t, 150.0, res.MaxPriority)
	assert.Equal(t, enforcement.OutcomeBlock, res.Decision)
	assert.Equal(t, "tenant1.orders", res.AssetAtRisk)
	assert.Equal(t, 50000.0, res.FinancialRiskUSD)
	assert.Equal(t, "Immediate RLS Enforcement & Audit Review", res.RequiredAction)
}

func TestEnforcementService_Gate_WeakMaskingScenario(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanEnterprise, rule.DefaultBundle())

	a, err := asset.New(fx.tenantID, "clinical.patients", asset.TypeCompliance, asset.SensitivityPHI)
	require.NoError(t, err)
	require.NoError(t, fx.assets.Create(context.Background(), a))

	f := fx.addProbeFinding(t, "WEAK_MASKING")
	f.AttachAsset(a.ID())
	require.NoError(t, fx.findings.Update(context.Background(), f))

	res, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
	require.NoError(t, err)

	// base 90 + compliance 35, no revenue bonus on a COMPLIANCE asset
	assert.Equal(t, 125.0, res.MaxPriority)
	assert.Equal(t, enforcement.OutcomeBlock, res.Decision)
}

func TestEnforcementService_Gate_FreeTierQuota(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanFree, probeBundle(150))
	fx.addProbeFinding(t, "GATE_PROBE")

	first, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
	require.NoError(t, err)
	assert.Equal(t, enforcement.OutcomeBlock, first.Decision)
	assert.False(t, first.QuotaExhausted)

	second, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
	require.NoError(t, err)
	assert.True(t, second.QuotaExhausted)
	assert.Contains(t, second.Reason, "Quota check failed")
	// The verdict is refused explicitly, never downgraded to a pass.
	assert.Equal(t, enforcement.OutcomeBlock, second.Decision)
	assert.Equal(t, enforcement.LevelHardFail, second.EnforcementLevel)

	quota, err := fx.svc.Quota(context.Background(), fx.tenantID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, quota.HardFailQuota)
	assert.False(t, quota.Allowed)
	assert.Zero(t, quota.Remaining)
}

func TestEnforcementService_Gate_PaidPlanUnlimited(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanTeam, probeBundle(150))
	fx.addProbeFinding(t, "GATE_PROBE")

	for i := 0; i < 3; i++ {
		res, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
		require.NoError(t, err)
		assert.False(t, res.QuotaExhausted)
		assert.Equal(t, enforcement.OutcomeBlock, res.Decision)
	}

	quota, err := fx.svc.Quota(context.Background(), fx.tenantID.String())
	require.NoError(t, err)
	assert.Equal(t, -1, quota.HardFailQuota)
	assert.True(t, quota.Allowed)
}

func TestEnforcementService_Gate_EvidenceInSameTransaction(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanEnterprise, probeBundle(70))
	fx.addProbeFinding(t, "GATE_PROBE")

	res, err := fx.svc.Gate(context.Background(), app.GateInput{
		TenantID:   fx.tenantID.String(),
		PipelineID: "pipe-7",
	})
	require.NoError(t, err)

	enfRecords := fx.evidence.byType(evidence.TypeEnforcement)
	require.Len(t, enfRecords, 1)
	assert.Equal(t, "decision:"+res.DecisionID, enfRecords[0].RelatedEntity())
	assert.Equal(t, res.Reason, enfRecords[0].Payload()["reason"])

	ciRecords := fx.evidence.byType(evidence.TypeCIDecision)
	require.Len(t, ciRecords, 1)
	assert.Equal(t, "pipeline:pipe-7", ciRecords[0].RelatedEntity())
	assert.Equal(t, string(enforcement.OutcomeWarn), ciRecords[0].Payload()["decision"])
}

func TestEnforcementService_Acknowledge(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanEnterprise, probeBundle(85))
	fx.addProbeFinding(t, "GATE_PROBE")
	actor := shared.NewID()

	res, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
	require.NoError(t, err)
	require.Equal(t, enforcement.OutcomeAllowWithAck, res.Decision)

	t.Run("soft fail acknowledges once", func(t *testing.T) {
		d, err := fx.svc.Acknowledge(context.Background(), app.AcknowledgeInput{
			DecisionID: res.DecisionID,
			AckedBy:    actor.String(),
		})
		require.NoError(t, err)
		assert.True(t, d.IsAcknowledged())
		require.NotNil(t, d.AckedBy())
		assert.True(t, d.AckedBy().Equals(actor))
	})

	t.Run("second acknowledgement fails", func(t *testing.T) {
		_, err := fx.svc.Acknowledge(context.Background(), app.AcknowledgeInput{
			DecisionID: res.DecisionID,
			AckedBy:    actor.String(),
		})
		require.Error(t, err)
	})
}

func TestEnforcementService_Acknowledge_OnlySoftFail(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanEnterprise, probeBundle(30))
	fx.addProbeFinding(t, "GATE_PROBE")

	res, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
	require.NoError(t, err)
	require.Equal(t, enforcement.OutcomeAllow, res.Decision)

	_, err = fx.svc.Acknowledge(context.Background(), app.AcknowledgeInput{
		DecisionID: res.DecisionID,
		AckedBy:    shared.NewID().String(),
	})
	require.Error(t, err)
}

func TestEnforcementService_History(t *testing.T) {
	fx := newGateFixture(t, tenant.PlanEnterprise, probeBundle(65))
	fx.addProbeFinding(t, "GATE_PROBE")

	for i := 0; i < 3; i++ {
		_, err := fx.svc.Gate(context.Background(), app.GateInput{TenantID: fx.tenantID.String()})
		require.NoError(t, err)
	}

	history, err := fx.svc.History(context.Background(), fx.tenantID.String(), 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
