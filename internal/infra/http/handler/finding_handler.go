package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
	"github.com/forgescan/api/pkg/validator"
)

// FindingHandler handles HTTP requests for findings.
type FindingHandler struct {
	service   *app.FindingService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewFindingHandler creates a new FindingHandler.
func NewFindingHandler(service *app.FindingService, v *validator.Validator, log *logger.Logger) *FindingHandler {
	return &FindingHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "finding"),
	}
}

// UpdateFindingStatusRequest represents the request body for a status change.
type UpdateFindingStatusRequest struct {
	Status string `json:"status" validate:"required,finding_status"`
}

// FindingResponse represents the response for a finding.
type FindingResponse struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	ScanID        *string        `json:"scan_id,omitempty"`
	AssetID       *string        `json:"asset_id,omitempty"`
	Scanner       string         `json:"scanner"`
	RuleID        string         `json:"rule_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Severity      string         `json:"severity"`
	Status        string         `json:"status"`
	FilePath      string         `json:"file_path,omitempty"`
	LineNumber    int            `json:"line_number,omitempty"`
	CWE           string         `json:"cwe,omitempty"`
	OWASPCategory string         `json:"owasp_category,omitempty"`
	Remediation   string         `json:"remediation,omitempty"`
	References    []string       `json:"references,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Fingerprint   string         `json:"fingerprint"`
	Occurrences   int            `json:"occurrences"`
	FirstSeenAt   time.Time      `json:"first_seen_at"`
	LastSeenAt    time.Time      `json:"last_seen_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toFindingResponse(f *finding.Finding) *FindingResponse {
	resp := &FindingResponse{
		ID:            f.ID().String(),
		TenantID:      f.TenantID().String(),
		Scanner:       f.Scanner(),
		RuleID:        f.RuleID(),
		Title:         f.Title(),
		Description:   f.Description(),
		Severity:      string(f.Severity()),
		Status:        string(f.Status()),
		FilePath:      f.FilePath(),
		LineNumber:    f.LineNumber(),
		CWE:           f.CWE(),
		OWASPCategory: f.OWASPCategory(),
		Remediation:   f.Remediation(),
		References:    f.References(),
		Metadata:      f.Metadata(),
		Fingerprint:   f.Fingerprint(),
		Occurrences:   f.Occurrences(),
		FirstSeenAt:   f.FirstSeenAt(),
		LastSeenAt:    f.LastSeenAt(),
		ResolvedAt:    f.ResolvedAt(),
		CreatedAt:     f.CreatedAt(),
		UpdatedAt:     f.UpdatedAt(),
	}
	if id := f.ScanID(); id != nil {
		s := id.String()
		resp.ScanID = &s
	}
	if id := f.AssetID(); id != nil {
		s := id.String()
		resp.AssetID = &s
	}
	return resp
}

// ListFindings handles GET /api/v1/findings.
func (h *FindingHandler) ListFindings(w http.ResponseWriter, r *http.Request) {
	input := app.ListFindingsInput{
		TenantID:   r.URL.Query().Get("tenant_id"),
		ScanID:     r.URL.Query().Get("scan_id"),
		AssetID:    r.URL.Query().Get("asset_id"),
		Scanners:   queryList(r, "scanner"),
		Severities: queryList(r, "severity"),
		Statuses:   queryList(r, "status"),
		Search:     r.URL.Query().Get("search"),
		Page:       queryInt(r, "page", 1),
		PerPage:    queryInt(r, "per_page", 20),
	}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	result, err := h.service.ListFindings(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]*FindingResponse, len(result.Data))
	for i, f := range result.Data {
		responses[i] = toFindingResponse(f)
	}
	respondJSON(w, http.StatusOK, pagination.NewResult(responses, result.Total, pagination.New(result.Page, result.PerPage)))
}

// GetFinding handles GET /api/v1/findings/{id}.
func (h *FindingHandler) GetFinding(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.GetFinding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toFindingResponse(f))
}

// UpdateStatus handles PATCH /api/v1/findings/{id}/status.
func (h *FindingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateFindingStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	f, err := h.service.UpdateStatus(r.Context(), app.UpdateStatusInput{
		FindingID: chi.URLParam(r, "id"),
		Status:    req.Status,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toFindingResponse(f))
}
