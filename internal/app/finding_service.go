package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgescan/api/internal/metrics"
	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
)

// FindingService handles finding normalization, deduplication and lifecycle.
type FindingService struct {
	repo   finding.Repository
	logger *logger.Logger
}

// NewFindingService creates a new FindingService.
func NewFindingService(repo finding.Repository, log *logger.Logger) *FindingService {
	return &FindingService{
		repo:   repo,
		logger: log.With("service", "finding"),
	}
}

// IngestResult reports what happened to one batch of raw scanner findings.
type IngestResult struct {
	Created int
	Deduped int
	Skipped int
}

// Ingest normalizes raw scanner findings and upserts them by fingerprint. A
// re-detected open finding gains an occurrence instead of a duplicate row,
// so ingesting the same scan output twice leaves the store unchanged apart
// from occurrence counts. Invalid raw findings are skipped, not fatal.
func (s *FindingService) Ingest(ctx context.Context, tenantID, scanID shared.ID, raw []scanner.Finding) (IngestResult, error) {
	var res IngestResult
	for _, rf := range raw {
		f, err := s.normalize(tenantID, scanID, rf)
		if err != nil {
			s.logger.Warn("skipping unnormalizable finding",
				"scanner", rf.Scanner, "rule_id", rf.RuleID, "error", err)
			res.Skipped++
			continue
		}

		existing, err := s.repo.GetOpenByFingerprint(ctx, tenantID, f.Fingerprint())
		switch {
		case err == nil:
			existing.MarkSeen()
			existing.AttachScan(scanID)
			if err := s.repo.Update(ctx, existing); err != nil {
				return res, fmt.Errorf("update re-detected finding: %w", err)
			}
			metrics.FindingsDedupedTotal.WithLabelValues(tenantID.String(), f.Scanner()).Inc()
			res.Deduped++
		case errors.Is(err, shared.ErrNotFound):
			if err := s.repo.Create(ctx, f); err != nil {
				return res, fmt.Errorf("create finding: %w", err)
			}
			metrics.FindingsDetectedTotal.WithLabelValues(
				tenantID.String(), f.Scanner(), string(f.Severity())).Inc()
			res.Created++
		default:
			return res, fmt.Errorf("lookup fingerprint: %w", err)
		}
	}

	s.logger.Info("ingested scan findings",
		"scan_id", scanID.String(),
		"created", res.Created, "deduped", res.Deduped, "skipped", res.Skipped)
	return res, nil
}

// normalize converts a raw scanner observation into a domain finding.
func (s *FindingService) normalize(tenantID, scanID shared.ID, rf scanner.Finding) (*finding.Finding, error) {
	f, err := finding.New(tenantID, rf.Scanner, rf.RuleID, rf.Title, rf.Severity)
	if err != nil {
		return nil, err
	}
	f.SetLocation(rf.File, rf.Line)
	if rf.Description != "" {
		f.SetDescription(rf.Description)
	}
	f.SetClassification(rf.CWE, rf.OWASP)
	f.SetRemediation(rf.Remediation, rf.References)
	f.AttachScan(scanID)
	if rf.URL != "" {
		f.SetMetadata("url", rf.URL)
	}
	if rf.Parameter != "" {
		f.SetMetadata("parameter", rf.Parameter)
	}
	if rf.Evidence != "" {
		f.SetMetadata("evidence", rf.Evidence)
	}
	for k, v := range rf.Metadata {
		f.SetMetadata(k, v)
	}
	return f, nil
}

// GetFinding retrieves a finding by ID.
func (s *FindingService) GetFinding(ctx context.Context, id string) (*finding.Finding, error) {
	findingID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid finding ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, findingID)
}

// ListFindingsInput represents the input for listing findings.
type ListFindingsInput struct {
	TenantID   string `validate:"required,uuid"`
	ScanID     string `validate:"omitempty,uuid"`
	AssetID    string `validate:"omitempty,uuid"`
	Scanners   []string
	Severities []string `validate:"dive,severity"`
	Statuses   []string `validate:"dive,finding_status"`
	Search     string   `validate:"max=200"`
	Page       int
	PerPage    int
}

// ListFindings retrieves findings with filtering and pagination.
func (s *FindingService) ListFindings(ctx context.Context, input ListFindingsInput) (pagination.Result[*finding.Finding], error) {
	var empty pagination.Result[*finding.Finding]

	if _, err := shared.IDFromString(input.TenantID); err != nil {
		return empty, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	filter := finding.Filter{TenantID: &input.TenantID}
	if input.ScanID != "" {
		filter.ScanID = &input.ScanID
	}
	if input.AssetID != "" {
		filter.AssetID = &input.AssetID
	}
	filter.Scanners = input.Scanners
	for _, sev := range input.Severities {
		filter.Severities = append(filter.Severities, shared.Severity(sev))
	}
	for _, st := range input.Statuses {
		filter.Statuses = append(filter.Statuses, finding.Status(st))
	}
	if input.Search != "" {
		filter.Search = &input.Search
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage))
}

// UpdateStatusInput represents the input for a finding status transition.
type UpdateStatusInput struct {
	FindingID string `validate:"required,uuid"`
	Status    string `validate:"required,finding_status"`
}

// UpdateStatus moves a finding through its lifecycle.
func (s *FindingService) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*finding.Finding, error) {
	findingID, err := shared.IDFromString(input.FindingID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid finding ID", shared.ErrValidation)
	}

	f, err := s.repo.GetByID(ctx, findingID)
	if err != nil {
		return nil, err
	}
	if err := f.TransitionStatus(finding.Status(input.Status)); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("update finding status: %w", err)
	}

	s.logger.Info("finding status updated", "id", f.ID().String(), "status", input.Status)
	return f, nil
}

// CountBySeverity returns open finding counts grouped by severity.
func (s *FindingService) CountBySeverity(ctx context.Context, tenantID string) (map[shared.Severity]int64, error) {
	id, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	return s.repo.CountBySeverity(ctx, id)
}
