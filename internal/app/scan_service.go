package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgescan/api/internal/metrics"
	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
)

// AdmissionController limits concurrent scans per tenant. The redis
// implementation backs it in production.
type AdmissionController interface {
	// Acquire tries to take a scan slot. It reports whether the slot was
	// granted and how many slots remain.
	Acquire(ctx context.Context, tenantID, scanID shared.ID, limit int) (bool, int, error)

	// Release frees a scan slot.
	Release(ctx context.Context, tenantID, scanID shared.ID) error
}

// ScanEnqueuer hands accepted scans to the background worker queue.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, scanID, tenantID shared.ID) error
}

// ScanService handles scan admission, orchestration and lifecycle.
type ScanService struct {
	repo        scan.Repository
	tenants     tenant.Repository
	findings    *FindingService
	evidence    *EvidenceService
	registry    *scanner.Registry
	admission   AdmissionController
	enqueuer    ScanEnqueuer
	scanTimeout time.Duration
	logger      *logger.Logger
}

// NewScanService creates a new ScanService.
func NewScanService(
	repo scan.Repository,
	tenants tenant.Repository,
	findings *FindingService,
	evidenceSvc *EvidenceService,
	registry *scanner.Registry,
	admission AdmissionController,
	enqueuer ScanEnqueuer,
	scanTimeout time.Duration,
	log *logger.Logger,
) *ScanService {
	return &ScanService{
		repo:        repo,
		tenants:     tenants,
		findings:    findings,
		evidence:    evidenceSvc,
		registry:    registry,
		admission:   admission,
		enqueuer:    enqueuer,
		scanTimeout: scanTimeout,
		logger:      log.With("service", "scan"),
	}
}

// CreateScanInput represents the input for submitting a scan.
type CreateScanInput struct {
	TenantID string `validate:"required,uuid"`

	Target       string         `validate:"required,min=1,max=2000"`
	ScanType     string         `validate:"required,scan_type"`
	Config       map[string]any `validate:"omitempty"`
	ScheduleType string         `validate:"omitempty,schedule_type"`
	ScheduleCron string         `validate:"max=100"`
}

// CreateScan validates, admits and enqueues a scan run. Admission is
// checked against the tenant plan's concurrency limit before the scan is
// persisted, so a refused scan leaves no trace beyond the metric.
func (s *ScanService) CreateScan(ctx context.Context, input CreateScanInput) (*scan.Scan, error) {
	s.logger.Info("creating scan", "target", input.Target, "type", input.ScanType)

	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, shared.NewDomainError("TENANT_INACTIVE", "tenant is deactivated", shared.ErrForbidden)
	}

	sc, err := scan.NewScan(tenantID, input.Target, scan.Type(input.ScanType))
	if err != nil {
		return nil, err
	}
	if input.Config != nil {
		sc.SetConfig(input.Config)
	}
	if input.ScheduleType != "" {
		if err := sc.SetSchedule(scan.ScheduleType(input.ScheduleType), input.ScheduleCron); err != nil {
			return nil, err
		}
	}

	if _, err := s.registry.Resolve(sc.ScanType, sc.Target); err != nil {
		return nil, fmt.Errorf("%w: no scanner accepts target %q", shared.ErrValidation, sc.Target)
	}

	granted, remaining, err := s.admission.Acquire(ctx, tenantID, sc.ID, t.Plan.MaxConcurrentScans())
	if err != nil {
		return nil, fmt.Errorf("scan admission: %w", err)
	}
	if !granted {
		metrics.ScanAdmissionRejectedTotal.WithLabelValues(tenantID.String()).Inc()
		return nil, shared.NewDomainError("SCAN_LIMIT_REACHED",
			fmt.Sprintf("plan %s allows %d concurrent scans", t.Plan, t.Plan.MaxConcurrentScans()),
			shared.ErrQuotaExceeded)
	}

	if err := s.repo.Create(ctx, sc); err != nil {
		_ = s.admission.Release(ctx, tenantID, sc.ID)
		return nil, fmt.Errorf("create scan: %w", err)
	}
	if err := s.enqueuer.EnqueueScan(ctx, sc.ID, tenantID); err != nil {
		_ = s.admission.Release(ctx, tenantID, sc.ID)
		_ = sc.Fail("failed to enqueue scan for execution")
		_ = s.repo.Update(ctx, sc)
		return nil, fmt.Errorf("enqueue scan: %w", err)
	}

	metrics.ScansStartedTotal.WithLabelValues(tenantID.String(), sc.ScanType.String()).Inc()
	s.logger.Info("scan accepted",
		"id", sc.ID.String(), "type", sc.ScanType.String(), "slots_remaining", remaining)
	return sc, nil
}

// GetScan retrieves a scan by ID.
func (s *ScanService) GetScan(ctx context.Context, id string) (*scan.Scan, error) {
	scanID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, scanID)
}

// ListScansInput represents the input for listing scans.
type ListScansInput struct {
	TenantID string `validate:"required,uuid"`
	Statuses []string
	Types    []string `validate:"dive,scan_type"`
	Page     int
	PerPage  int
}

// ListScans retrieves scans with filtering and pagination.
func (s *ScanService) ListScans(ctx context.Context, input ListScansInput) (pagination.Result[*scan.Scan], error) {
	var empty pagination.Result[*scan.Scan]

	if _, err := shared.IDFromString(input.TenantID); err != nil {
		return empty, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	filter := scan.Filter{TenantID: &input.TenantID}
	for _, st := range input.Statuses {
		filter.Statuses = append(filter.Statuses, scan.Status(st))
	}
	for _, t := range input.Types {
		filter.Types = append(filter.Types, scan.Type(t))
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage))
}

// CancelScan cancels a pending or running scan and frees its slot.
func (s *ScanService) CancelScan(ctx context.Context, id string) (*scan.Scan, error) {
	scanID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan ID", shared.ErrValidation)
	}

	sc, err := s.repo.GetByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if err := sc.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return nil, fmt.Errorf("update cancelled scan: %w", err)
	}
	if err := s.admission.Release(ctx, sc.TenantID, sc.ID); err != nil {
		s.logger.Warn("failed to release scan slot", "scan_id", id, "error", err)
	}

	metrics.ScansCompletedTotal.WithLabelValues(
		sc.TenantID.String(), sc.ScanType.String(), sc.Status.String()).Inc()
	s.logger.Info("scan cancelled", "id", id)
	return sc, nil
}

// Execute runs a scan to completion. The worker calls this for every
// dequeued scan task. Partial findings are persisted even when the plugin
// fails, and the admission slot is released on every path.
func (s *ScanService) Execute(ctx context.Context, scanID shared.ID) error {
	sc, err := s.repo.GetByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", scanID, err)
	}
	if sc.Status.IsTerminal() {
		s.logger.Info("skipping scan in terminal state",
			"id", scanID.String(), "status", sc.Status.String())
		return nil
	}

	defer func() {
		if err := s.admission.Release(ctx, sc.TenantID, sc.ID); err != nil {
			s.logger.Warn("failed to release scan slot",
				"scan_id", scanID.String(), "error", err)
		}
	}()

	if err := sc.Start(); err != nil {
		return fmt.Errorf("start scan %s: %w", scanID, err)
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return fmt.Errorf("mark scan running: %w", err)
	}

	started := time.Now()
	runErr := s.run(ctx, sc)
	if runErr != nil {
		if failErr := sc.Fail(runErr.Error()); failErr != nil {
			s.logger.Error("cannot mark scan failed",
				"id", scanID.String(), "error", failErr)
		}
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return fmt.Errorf("persist scan result: %w", err)
	}

	metrics.ScansCompletedTotal.WithLabelValues(
		sc.TenantID.String(), sc.ScanType.String(), sc.Status.String()).Inc()
	metrics.ScanDuration.WithLabelValues(
		sc.TenantID.String(), sc.ScanType.String()).Observe(time.Since(started).Seconds())

	s.recordScanEvidence(ctx, sc)

	if runErr != nil {
		s.logger.Error("scan failed",
			"id", scanID.String(), "target", sc.Target, "error", runErr)
		return runErr
	}
	s.logger.Info("scan completed",
		"id", scanID.String(), "target", sc.Target,
		"findings", sc.Summary.Total, "risk_score", sc.Summary.RiskScore)
	return nil
}

// run resolves the plugin, executes it under the scan timeout and persists
// whatever findings came back.
func (s *ScanService) run(ctx context.Context, sc *scan.Scan) error {
	plugin, err := s.registry.Resolve(sc.ScanType, sc.Target)
	if err != nil {
		return fmt.Errorf("resolve scanner: %w", err)
	}
	if err := plugin.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s: %w", plugin.Name(), err)
	}
	defer func() {
		if err := plugin.Cleanup(); err != nil {
			s.logger.Warn("scanner cleanup failed", "scanner", plugin.Name(), "error", err)
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, s.scanTimeout)
	defer cancel()

	sc.SetProgress(10)
	result, scanErr := plugin.Scan(scanCtx, scanner.Request{
		ScanID:   sc.ID,
		TenantID: sc.TenantID,
		Target:   sc.Target,
		Options:  sc.Config,
	})

	// Findings gathered before a failure still count.
	var raw []scanner.Finding
	if result != nil {
		raw = result.Findings
	}
	if len(raw) > 0 {
		if _, err := s.findings.Ingest(ctx, sc.TenantID, sc.ID, raw); err != nil {
			return fmt.Errorf("persist findings: %w", err)
		}
	}

	if scanErr != nil {
		if errors.Is(scanErr, context.DeadlineExceeded) {
			return fmt.Errorf("scan timed out after %s: %w", s.scanTimeout, scanErr)
		}
		return scanErr
	}

	return sc.Complete(scanner.Summarize(raw))
}

// recordScanEvidence appends the scan outcome to the audit ledger. Evidence
// failures are logged, not fatal: the scan result itself already committed.
func (s *ScanService) recordScanEvidence(ctx context.Context, sc *scan.Scan) {
	payload := map[string]any{
		"scan_id":   sc.ID.String(),
		"target":    sc.Target,
		"scan_type": sc.ScanType.String(),
		"status":    sc.Status.String(),
	}
	if sc.Summary != nil {
		payload["total_findings"] = sc.Summary.Total
		payload["risk_score"] = sc.Summary.RiskScore
	}
	if sc.ErrorMessage != "" {
		payload["error"] = sc.ErrorMessage
	}

	entity := "scan:" + sc.ID.String()
	if _, err := s.evidence.Record(ctx, sc.TenantID, evidence.TypeScan, entity, payload); err != nil {
		s.logger.Error("cannot append scan evidence", "scan_id", sc.ID.String(), "error", err)
	}
}

// TriggerDueScans finds scheduled scans whose next run has arrived, spawns
// a fresh run for each and advances the schedule. The scheduler loop calls
// this on an interval. An admission refusal skips the run; the schedule
// still advances so a saturated tenant does not pile up a backlog.
func (s *ScanService) TriggerDueScans(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due scans: %w", err)
	}

	triggered := 0
	for _, template := range due {
		template.AdvanceSchedule(now)
		if err := s.repo.Update(ctx, template); err != nil {
			return triggered, fmt.Errorf("advance schedule for %s: %w", template.ID, err)
		}

		run, err := s.spawnScheduledRun(ctx, template)
		if err != nil {
			if errors.Is(err, shared.ErrQuotaExceeded) {
				s.logger.Info("scheduled scan skipped, no free slot",
					"schedule_id", template.ID.String())
				continue
			}
			s.logger.Error("cannot trigger scheduled scan",
				"schedule_id", template.ID.String(), "error", err)
			continue
		}
		triggered++
		s.logger.Info("scheduled scan triggered",
			"schedule_id", template.ID.String(), "run_id", run.ID.String())
	}
	return triggered, nil
}

// spawnScheduledRun creates a one-off run copying the schedule's target and
// configuration.
func (s *ScanService) spawnScheduledRun(ctx context.Context, template *scan.Scan) (*scan.Scan, error) {
	t, err := s.tenants.GetByID(ctx, template.TenantID)
	if err != nil {
		return nil, err
	}

	run, err := scan.NewScan(template.TenantID, template.Target, template.ScanType)
	if err != nil {
		return nil, err
	}
	run.SetConfig(template.Config)

	granted, _, err := s.admission.Acquire(ctx, t.ID, run.ID, t.Plan.MaxConcurrentScans())
	if err != nil {
		return nil, fmt.Errorf("scan admission: %w", err)
	}
	if !granted {
		metrics.ScanAdmissionRejectedTotal.WithLabelValues(t.ID.String()).Inc()
		return nil, shared.ErrQuotaExceeded
	}

	if err := s.repo.Create(ctx, run); err != nil {
		_ = s.admission.Release(ctx, t.ID, run.ID)
		return nil, fmt.Errorf("create scheduled run: %w", err)
	}
	if err := s.enqueuer.EnqueueScan(ctx, run.ID, t.ID); err != nil {
		_ = s.admission.Release(ctx, t.ID, run.ID)
		return nil, fmt.Errorf("enqueue scheduled run: %w", err)
	}

	metrics.ScansStartedTotal.WithLabelValues(t.ID.String(), run.ScanType.String()).Inc()
	return run, nil
}
