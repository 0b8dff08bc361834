package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
	"github.com/forgescan/api/pkg/validator"
)

// EvidenceHandler handles HTTP requests for the audit evidence ledger.
type EvidenceHandler struct {
	service   *app.EvidenceService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler.
func NewEvidenceHandler(service *app.EvidenceService, v *validator.Validator, log *logger.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "evidence"),
	}
}

// AppendEvidenceRequest represents the request body for appending a
// ledger record.
type AppendEvidenceRequest struct {
	TenantID      string         `json:"tenant_id" validate:"required,uuid"`
	EvidenceType  string         `json:"evidence_type" validate:"required,evidence_type"`
	RelatedEntity string         `json:"related_entity" validate:"required,max=255"`
	Payload       map[string]any `json:"payload"`
}

// VerifyEvidenceRequest represents the optional request body for
// verification. When a payload is supplied it is checked against the
// stored hash instead of the stored payload.
type VerifyEvidenceRequest struct {
	Payload map[string]any `json:"payload"`
}

// EvidenceResponse represents the response for a ledger record.
type EvidenceResponse struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	EvidenceType  string         `json:"evidence_type"`
	RelatedEntity string         `json:"related_entity"`
	Payload       map[string]any `json:"payload,omitempty"`
	PayloadHash   string         `json:"payload_hash"`
	CreatedAt     time.Time      `json:"created_at"`
}

// VerifyEvidenceResponse represents the response for a verification.
type VerifyEvidenceResponse struct {
	Record       *EvidenceResponse `json:"record"`
	Valid        bool              `json:"valid"`
	StoredHash   string            `json:"stored_hash"`
	ComputedHash string            `json:"computed_hash"`
}

func toEvidenceResponse(rec *evidence.Record) *EvidenceResponse {
	return &EvidenceResponse{
		ID:            rec.ID().String(),
		TenantID:      rec.TenantID().String(),
		EvidenceType:  string(rec.EvidenceType()),
		RelatedEntity: rec.RelatedEntity(),
		Payload:       rec.Payload(),
		PayloadHash:   rec.PayloadHash(),
		CreatedAt:     rec.CreatedAt(),
	}
}

// AppendEvidence handles POST /api/v1/evidence.
func (h *EvidenceHandler) AppendEvidence(w http.ResponseWriter, r *http.Request) {
	var req AppendEvidenceRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	rec, err := h.service.Append(r.Context(), app.AppendInput{
		TenantID:      req.TenantID,
		EvidenceType:  req.EvidenceType,
		RelatedEntity: req.RelatedEntity,
		Payload:       req.Payload,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toEvidenceResponse(rec))
}

// ListEvidence handles GET /api/v1/evidence.
func (h *EvidenceHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	input := app.ListEvidenceInput{
		TenantID:     r.URL.Query().Get("tenant_id"),
		EvidenceType: r.URL.Query().Get("evidence_type"),
		EntityPrefix: r.URL.Query().Get("entity_prefix"),
		Page:         queryInt(r, "page", 1),
		PerPage:      queryInt(r, "per_page", 20),
	}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	result, err := h.service.ListEvidence(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]*EvidenceResponse, len(result.Data))
	for i, rec := range result.Data {
		responses[i] = toEvidenceResponse(rec)
	}
	respondJSON(w, http.StatusOK, pagination.NewResult(responses, result.Total, pagination.New(result.Page, result.PerPage)))
}

// GetEvidence handles GET /api/v1/evidence/{id}.
func (h *EvidenceHandler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toEvidenceResponse(rec))
}

// VerifyEvidence handles POST /api/v1/evidence/{id}/verify. The body is
// optional: without one the stored payload is re-hashed, with one the
// caller's copy is checked against the stored hash.
func (h *EvidenceHandler) VerifyEvidence(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}
	recordID := chi.URLParam(r, "id")

	var req VerifyEvidenceRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			apierror.BadRequest("Invalid request body").WriteJSON(w)
			return
		}
	}

	var (
		result *app.VerificationResult
		err    error
	)
	if req.Payload != nil {
		result, err = h.service.VerifySupplied(r.Context(), tenantID, recordID, req.Payload)
	} else {
		result, err = h.service.Verify(r.Context(), tenantID, recordID)
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, &VerifyEvidenceResponse{
		Record:       toEvidenceResponse(result.Record),
		Valid:        result.Valid,
		StoredHash:   result.StoredHash,
		ComputedHash: result.ComputedHash,
	})
}

// Timeline handles GET /api/v1/evidence/entity/{entity_id}.
func (h *EvidenceHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}

	records, err := h.service.Timeline(r.Context(), tenantID, chi.URLParam(r, "entity_id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]*EvidenceResponse, len(records))
	for i, rec := range records {
		responses[i] = toEvidenceResponse(rec)
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": responses})
}

// ExportAuditTrail handles GET /api/v1/evidence/export/audit-trail. The
// export streams gzip-compressed JSON lines; every record carries its
// verification status.
func (h *EvidenceHandler) ExportAuditTrail(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("date_from"))
	if err != nil {
		apierror.BadRequest("Invalid date_from, expected RFC 3339").WriteJSON(w)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("date_to"))
	if err != nil {
		apierror.BadRequest("Invalid date_to, expected RFC 3339").WriteJSON(w)
		return
	}

	input := app.ExportInput{TenantID: tenantID, From: from, To: to}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	filename := fmt.Sprintf("audit-trail-%s-%s.jsonl.gz",
		from.Format("20060102"), to.Format("20060102"))
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	// Headers are committed once the first compressed block flushes, so
	// errors past this point can only be logged.
	count, err := h.service.ExportAuditTrail(r.Context(), w, input)
	if err != nil {
		h.logger.Error("audit trail export failed", "tenant_id", tenantID, "error", err)
		return
	}
	h.logger.Info("audit trail exported", "tenant_id", tenantID, "records", count)
}
