package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/forgescan/api/internal/metrics"
	"github.com/forgescan/api/pkg/canonjson"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
)

// EvidenceService handles the append-only audit evidence ledger.
type EvidenceService struct {
	repo   evidence.Repository
	logger *logger.Logger
}

// NewEvidenceService creates a new EvidenceService.
func NewEvidenceService(repo evidence.Repository, log *logger.Logger) *EvidenceService {
	return &EvidenceService{
		repo:   repo,
		logger: log.With("service", "evidence"),
	}
}

// Record hashes and appends a ledger entry. Other services call this after
// their own state changes commit; callers that need the append inside the
// same transaction go through the repository directly.
func (s *EvidenceService) Record(ctx context.Context, tenantID shared.ID, evidenceType evidence.Type, relatedEntity string, payload map[string]any) (*evidence.Record, error) {
	rec, err := evidence.NewRecord(tenantID, evidenceType, relatedEntity, payload)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append evidence: %w", err)
	}

	metrics.EvidenceAppendsTotal.WithLabelValues(tenantID.String(), evidenceType.String()).Inc()
	s.logger.Info("evidence appended",
		"id", rec.ID().String(), "type", evidenceType.String(), "entity", relatedEntity)
	return rec, nil
}

// AppendInput represents the input for appending an evidence record.
type AppendInput struct {
	TenantID      string         `validate:"required,uuid"`
	EvidenceType  string         `validate:"required"`
	RelatedEntity string         `validate:"required,max=255"`
	Payload       map[string]any `validate:"omitempty"`
}

// Append validates and appends a caller-supplied evidence record.
func (s *EvidenceService) Append(ctx context.Context, input AppendInput) (*evidence.Record, error) {
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	return s.Record(ctx, tenantID, evidence.Type(input.EvidenceType), input.RelatedEntity, input.Payload)
}

// GetRecord retrieves a ledger record by ID.
func (s *EvidenceService) GetRecord(ctx context.Context, id string) (*evidence.Record, error) {
	recordID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid evidence ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, recordID)
}

// ListEvidenceInput represents the input for querying the ledger.
type ListEvidenceInput struct {
	TenantID     string `validate:"required,uuid"`
	EvidenceType string `validate:"omitempty"`
	EntityPrefix string `validate:"max=255"`
	Page         int
	PerPage      int
}

// ListEvidence queries the ledger, newest first.
func (s *EvidenceService) ListEvidence(ctx context.Context, input ListEvidenceInput) (pagination.Result[*evidence.Record], error) {
	var empty pagination.Result[*evidence.Record]

	if _, err := shared.IDFromString(input.TenantID); err != nil {
		return empty, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	filter := evidence.Filter{TenantID: &input.TenantID}
	if input.EvidenceType != "" {
		t := evidence.Type(input.EvidenceType)
		if !t.IsValid() {
			return empty, fmt.Errorf("%w: invalid evidence type %q", shared.ErrValidation, input.EvidenceType)
		}
		filter.EvidenceType = &t
	}
	if input.EntityPrefix != "" {
		filter.EntityPrefix = &input.EntityPrefix
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage))
}

// VerificationResult is the outcome of one record verification.
type VerificationResult struct {
	Record       *evidence.Record `json:"record"`
	Valid        bool             `json:"valid"`
	StoredHash   string           `json:"stored_hash"`
	ComputedHash string           `json:"computed_hash"`
}

// Verify recomputes a record's payload hash and compares it to the stored
// one. A mismatch means the stored payload was altered after the append.
func (s *EvidenceService) Verify(ctx context.Context, tenantID, recordID string) (*VerificationResult, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	rid, err := shared.IDFromString(recordID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid evidence ID", shared.ErrValidation)
	}

	rec, err := s.repo.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !rec.TenantID().Equals(tid) {
		return nil, shared.NewDomainError("EVIDENCE_NOT_FOUND", "evidence record not found", shared.ErrNotFound)
	}

	valid, err := rec.Verify()
	if err != nil {
		return nil, fmt.Errorf("verify evidence %s: %w", recordID, err)
	}
	computed, err := canonjson.Hash(rec.Payload())
	if err != nil {
		return nil, fmt.Errorf("hash evidence payload: %w", err)
	}
	if !valid {
		s.logger.Warn("evidence hash mismatch", "id", recordID)
	}

	result := "valid"
	if !valid {
		result = "tampered"
	}
	metrics.EvidenceVerificationsTotal.WithLabelValues(tenantID, result).Inc()

	return &VerificationResult{
		Record:       rec,
		Valid:        valid,
		StoredHash:   rec.PayloadHash(),
		ComputedHash: computed,
	}, nil
}

// VerifySupplied checks an externally held copy of a payload against the
// stored hash. Auditors use this to prove a document they archived matches
// what the ledger recorded.
func (s *EvidenceService) VerifySupplied(ctx context.Context, tenantID, recordID string, payload map[string]any) (*VerificationResult, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	rid, err := shared.IDFromString(recordID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid evidence ID", shared.ErrValidation)
	}

	rec, err := s.repo.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !rec.TenantID().Equals(tid) {
		return nil, shared.NewDomainError("EVIDENCE_NOT_FOUND", "evidence record not found", shared.ErrNotFound)
	}

	computed, err := canonjson.Hash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash supplied payload: %w", err)
	}
	valid := computed == rec.PayloadHash()

	result := "valid"
	if !valid {
		result = "tampered"
	}
	metrics.EvidenceVerificationsTotal.WithLabelValues(tenantID, result).Inc()

	return &VerificationResult{
		Record:       rec,
		Valid:        valid,
		StoredHash:   rec.PayloadHash(),
		ComputedHash: computed,
	}, nil
}

// Timeline retrieves every ledger record for an entity, oldest first.
func (s *EvidenceService) Timeline(ctx context.Context, tenantID, relatedEntity string) ([]*evidence.Record, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	if relatedEntity == "" {
		return nil, fmt.Errorf("%w: related entity is required", shared.ErrValidation)
	}
	return s.repo.Timeline(ctx, tid, relatedEntity)
}

// ExportInput represents the input for an audit trail export.
type ExportInput struct {
	TenantID string    `validate:"required,uuid"`
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtfield=From"`
}

// exportedRecord is one line of the audit trail export. Verification status
// is computed at export time so auditors see tampering without a second pass.
type exportedRecord struct {
	ID            string         `json:"id"`
	EvidenceType  string         `json:"evidence_type"`
	RelatedEntity string         `json:"related_entity"`
	Payload       map[string]any `json:"payload"`
	PayloadHash   string         `json:"payload_hash"`
	HashValid     bool           `json:"hash_valid"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ExportAuditTrail streams every record in [from, to) as gzip-compressed
// JSON lines, oldest first. Returns the number of records exported.
func (s *EvidenceService) ExportAuditTrail(ctx context.Context, w io.Writer, input ExportInput) (int, error) {
	tid, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}
	if !input.To.After(input.From) {
		return 0, fmt.Errorf("%w: export range is empty", shared.ErrValidation)
	}

	records, err := s.repo.ListByDateRange(ctx, tid, input.From, input.To)
	if err != nil {
		return 0, fmt.Errorf("load audit trail: %w", err)
	}

	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		valid, verr := rec.Verify()
		if verr != nil {
			valid = false
		}
		line := exportedRecord{
			ID:            rec.ID().String(),
			EvidenceType:  rec.EvidenceType().String(),
			RelatedEntity: rec.RelatedEntity(),
			Payload:       rec.Payload(),
			PayloadHash:   rec.PayloadHash(),
			HashValid:     valid,
			CreatedAt:     rec.CreatedAt(),
		}
		if err := enc.Encode(line); err != nil {
			_ = gz.Close()
			return 0, fmt.Errorf("encode audit record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("flush audit export: %w", err)
	}

	s.logger.Info("audit trail exported",
		"tenant_id", input.TenantID, "records", len(records),
		"from", input.From.Format(time.RFC3339), "to", input.To.Format(time.RFC3339))
	return len(records), nil
}
