package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
	"github.com/forgescan/api/pkg/validator"
)

// ScanHandler handles HTTP requests for scan runs.
type ScanHandler struct {
	service   *app.ScanService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(service *app.ScanService, v *validator.Validator, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "scan"),
	}
}

// CreateScanRequest represents the request body for creating a scan.
type CreateScanRequest struct {
	TenantID     string         `json:"tenant_id" validate:"required,uuid"`
	Target       string         `json:"target" validate:"required,min=1,max=2000"`
	ScanType     string         `json:"scan_type" validate:"required,scan_type"`
	Config       map[string]any `json:"config"`
	ScheduleType string         `json:"schedule_type" validate:"omitempty,schedule_type"`
	ScheduleCron string         `json:"schedule_cron" validate:"max=100"`
}

// ScanResponse represents the response for a scan run.
type ScanResponse struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Target       string         `json:"target"`
	ScanType     string         `json:"scan_type"`
	Config       map[string]any `json:"config,omitempty"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ScheduleType string         `json:"schedule_type"`
	ScheduleCron string         `json:"schedule_cron,omitempty"`
	NextRunAt    *time.Time     `json:"next_run_at,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Summary      *scan.Summary  `json:"summary,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toScanResponse(s *scan.Scan) *ScanResponse {
	return &ScanResponse{
		ID:           s.ID.String(),
		TenantID:     s.TenantID.String(),
		Target:       s.Target,
		ScanType:     string(s.ScanType),
		Config:       s.Config,
		Status:       string(s.Status),
		Progress:     s.Progress,
		ErrorMessage: s.ErrorMessage,
		ScheduleType: string(s.ScheduleType),
		ScheduleCron: s.ScheduleCron,
		NextRunAt:    s.NextRunAt,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		Summary:      s.Summary,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// CreateScan handles POST /api/v1/scans.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req CreateScanRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	s, err := h.service.CreateScan(r.Context(), app.CreateScanInput{
		TenantID:     req.TenantID,
		Target:       req.Target,
		ScanType:     req.ScanType,
		Config:       req.Config,
		ScheduleType: req.ScheduleType,
		ScheduleCron: req.ScheduleCron,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toScanResponse(s))
}

// GetScan handles GET /api/v1/scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toScanResponse(s))
}

// ListScans handles GET /api/v1/scans.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	input := app.ListScansInput{
		TenantID: r.URL.Query().Get("tenant_id"),
		Statuses: queryList(r, "status"),
		Types:    queryList(r, "scan_type"),
		Page:     queryInt(r, "page", 1),
		PerPage:  queryInt(r, "per_page", 20),
	}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	result, err := h.service.ListScans(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]*ScanResponse, len(result.Data))
	for i, s := range result.Data {
		responses[i] = toScanResponse(s)
	}
	respondJSON(w, http.StatusOK, pagination.NewResult(responses, result.Total, pagination.New(result.Page, result.PerPage)))
}

// CancelScan handles POST /api/v1/scans/{id}/cancel.
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.CancelScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toScanResponse(s))
}
