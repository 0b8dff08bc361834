package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
	"github.com/forgescan/api/pkg/logger"
)

// stubPlugin is a controllable scanner for exercising the execution paths.
type stubPlugin struct {
	name     string
	result   *scanner.Result
	scanErr  error
	scans    int
	cleanups int
}

func (p *stubPlugin) Name() string                      { return p.name }
func (p *stubPlugin) Initialize(context.Context) error  { return nil }
func (p *stubPlugin) ValidateTarget(target string) bool { return target != "" }
func (p *stubPlugin) Cleanup() error                    { p.cleanups++; return nil }

func (p *stubPlugin) Scan(_ context.Context, _ scanner.Request) (*scanner.Result, error) {
	p.scans++
	return p.result, p.scanErr
}

type scanFixture struct {
	scans     *fakeScanRepo
	findings  *fakeFindingRepo
	evidence  *fakeEvidenceRepo
	tenants   *fakeTenantRepo
	admission *fakeAdmission
	enqueuer  *fakeEnqueuer
	plugin    *stubPlugin
	svc       *app.ScanService
	tenant    *tenant.Tenant
}

func newScanFixture(t *testing.T, plan tenant.Plan) *scanFixture {
	t.Helper()
	fx := &scanFixture{
		scans:     newFakeScanRepo(),
		findings:  newFakeFindingRepo(),
		evidence:  newFakeEvidenceRepo(),
		tenants:   newFakeTenantRepo(),
		admission: newFakeAdmission(),
		enqueuer:  &fakeEnqueuer{},
		plugin:    &stubPlugin{name: "stub_scanner", result: &scanner.Result{}},
	}

	tn, err := tenant.New("acme", plan)
	require.NoError(t, err)
	require.NoError(t, fx.tenants.Create(context.Background(), tn))
	fx.tenant = tn

	registry := scanner.NewRegistry()
	require.NoError(t, registry.Register(scan.TypeWeb, fx.plugin))

	log := logger.NewNop()
	findingSvc := app.NewFindingService(fx.findings, log)
	evidenceSvc := app.NewEvidenceService(fx.evidence, log)
	fx.svc = app.NewScanService(
		fx.scans, fx.tenants, findingSvc, evidenceSvc,
		registry, fx.admission, fx.enqueuer, time.Minute, log)
	return fx
}

func (fx *scanFixture) createScan(t *testing.T) *scan.Scan {
	t.Helper()
	sc, err := fx.svc.CreateScan(context.Background(), app.CreateScanInput{
		TenantID: fx.tenant.ID.String(),
		Target:   "https://app.example.com",
		ScanType: string(scan.TypeWeb),
	})
	require.NoError(t, err)
	return sc
}

func TestScanService_CreateScan(t *testing.T) {
	t.Run("accepted scan is pending and enqueued", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		sc := fx.createScan(t)

		assert.Equal(t, scan.StatusPending, sc.Status)
		assert.Equal(t, 1, fx.enqueuer.count())
		assert.Equal(t, 1, fx.admission.active(fx.tenant.ID))
	})

	t.Run("free plan admits one concurrent scan", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanFree)
		fx.createScan(t)

		_, err := fx.svc.CreateScan(context.Background(), app.CreateScanInput{
			TenantID: fx.tenant.ID.String(),
			Target:   "https://app.example.com/other",
			ScanType: string(scan.TypeWeb),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
		assert.Equal(t, 1, fx.enqueuer.count())
		assert.Equal(t, 1, fx.admission.active(fx.tenant.ID))
	})

	t.Run("inactive tenant is refused", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		fx.tenant.Deactivate()
		require.NoError(t, fx.tenants.Update(context.Background(), fx.tenant))

		_, err := fx.svc.CreateScan(context.Background(), app.CreateScanInput{
			TenantID: fx.tenant.ID.String(),
			Target:   "https://app.example.com",
			ScanType: string(scan.TypeWeb),
		})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("unregistered scan type is refused", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)

		_, err := fx.svc.CreateScan(context.Background(), app.CreateScanInput{
			TenantID: fx.tenant.ID.String(),
			Target:   "https://app.example.com",
			ScanType: string(scan.TypeSCA),
		})
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Zero(t, fx.admission.active(fx.tenant.ID))
	})

	t.Run("enqueue failure releases the slot and fails the scan", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		fx.enqueuer.fail = true

		_, err := fx.svc.CreateScan(context.Background(), app.CreateScanInput{
			TenantID: fx.tenant.ID.String(),
			Target:   "https://app.example.com",
			ScanType: string(scan.TypeWeb),
		})
		require.Error(t, err)
		assert.Zero(t, fx.admission.active(fx.tenant.ID))
	})
}

func TestScanService_Execute(t *testing.T) {
	t.Run("completes and records findings, summary and evidence", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		fx.plugin.result = &scanner.Result{Findings: []scanner.Finding{
			{Scanner: "stub_scanner", RuleID: "S-001", Title: "Missing CSP header", Severity: shared.SeverityMedium},
			{Scanner: "stub_scanner", RuleID: "S-002", Title: "Reflected XSS in search", Severity: shared.SeverityHigh},
		}}
		sc := fx.createScan(t)

		require.NoError(t, fx.svc.Execute(context.Background(), sc.ID))

		got, err := fx.scans.GetByID(context.Background(), sc.ID)
		require.NoError(t, err)
		assert.Equal(t, scan.StatusCompleted, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, 2, got.Summary.Total)
		assert.Equal(t, 1, got.Summary.High)

		assert.Equal(t, 2, fx.findings.len())
		assert.Zero(t, fx.admission.active(fx.tenant.ID))
		assert.Equal(t, 1, fx.plugin.cleanups)

		records := fx.evidence.byType(evidence.TypeScan)
		require.Len(t, records, 1)
		assert.Equal(t, "scan:"+sc.ID.String(), records[0].RelatedEntity())
		assert.Equal(t, "completed", records[0].Payload()["status"])
	})

	t.Run("plugin failure keeps partial findings", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		fx.plugin.result = &scanner.Result{Findings: []scanner.Finding{
			{Scanner: "stub_scanner", RuleID: "S-001", Title: "Missing CSP header", Severity: shared.SeverityMedium},
		}}
		fx.plugin.scanErr = errors.New("target reset the connection")
		sc := fx.createScan(t)

		err := fx.svc.Execute(context.Background(), sc.ID)
		require.Error(t, err)

		got, getErr := fx.scans.GetByID(context.Background(), sc.ID)
		require.NoError(t, getErr)
		assert.Equal(t, scan.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMessage, "target reset the connection")

		assert.Equal(t, 1, fx.findings.len())
		assert.Zero(t, fx.admission.active(fx.tenant.ID))

		records := fx.evidence.byType(evidence.TypeScan)
		require.Len(t, records, 1)
		assert.Equal(t, "failed", records[0].Payload()["status"])
	})

	t.Run("terminal scan is skipped", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		sc := fx.createScan(t)
		_, err := fx.svc.CancelScan(context.Background(), sc.ID.String())
		require.NoError(t, err)

		require.NoError(t, fx.svc.Execute(context.Background(), sc.ID))
		assert.Zero(t, fx.plugin.scans)
	})

	t.Run("unknown scan", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		err := fx.svc.Execute(context.Background(), shared.NewID())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestScanService_CancelScan(t *testing.T) {
	fx := newScanFixture(t, tenant.PlanTeam)
	sc := fx.createScan(t)

	got, err := fx.svc.CancelScan(context.Background(), sc.ID.String())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, got.Status)
	assert.Zero(t, fx.admission.active(fx.tenant.ID))

	t.Run("terminal scan cannot be cancelled again", func(t *testing.T) {
		_, err := fx.svc.CancelScan(context.Background(), sc.ID.String())
		assert.ErrorIs(t, err, shared.ErrConflict)
	})
}

func TestScanService_TriggerDueScans(t *testing.T) {
	newSchedule := func(t *testing.T, fx *scanFixture) *scan.Scan {
		t.Helper()
		template, err := scan.NewScan(fx.tenant.ID, "https://app.example.com", scan.TypeWeb)
		require.NoError(t, err)
		require.NoError(t, template.SetSchedule(scan.ScheduleDaily, ""))
		past := time.Now().Add(-time.Hour)
		template.NextRunAt = &past
		require.NoError(t, fx.scans.Create(context.Background(), template))
		return template
	}

	t.Run("due schedule spawns a run and advances", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		template := newSchedule(t, fx)

		now := time.Now()
		triggered, err := fx.svc.TriggerDueScans(context.Background(), now, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, triggered)
		assert.Equal(t, 1, fx.enqueuer.count())

		got, err := fx.scans.GetByID(context.Background(), template.ID)
		require.NoError(t, err)
		require.NotNil(t, got.NextRunAt)
		assert.True(t, got.NextRunAt.After(now))
	})

	t.Run("saturated tenant skips the run but still advances", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanFree)
		fx.createScan(t) // the free plan's single slot
		template := newSchedule(t, fx)

		now := time.Now()
		triggered, err := fx.svc.TriggerDueScans(context.Background(), now, 10)
		require.NoError(t, err)
		assert.Zero(t, triggered)
		assert.Equal(t, 1, fx.enqueuer.count())

		got, err := fx.scans.GetByID(context.Background(), template.ID)
		require.NoError(t, err)
		assert.True(t, got.NextRunAt.After(now))
	})

	t.Run("nothing due", func(t *testing.T) {
		fx := newScanFixture(t, tenant.PlanTeam)
		triggered, err := fx.svc.TriggerDueScans(context.Background(), time.Now(), 10)
		require.NoError(t, err)
		assert.Zero(t, triggered)
	})
}
