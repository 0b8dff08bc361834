package handler

import (
	"net/http"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/validator"
)

// RemediationHandler handles HTTP requests for prioritized remediation.
type RemediationHandler struct {
	service   *app.RemediationService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewRemediationHandler creates a new RemediationHandler.
func NewRemediationHandler(service *app.RemediationService, v *validator.Validator, log *logger.Logger) *RemediationHandler {
	return &RemediationHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "remediation"),
	}
}

// EstimateFineRequest represents the request body for a fine projection.
type EstimateFineRequest struct {
	Frameworks []string `json:"frameworks" validate:"required,min=1,max=20"`
	Records    int64    `json:"records" validate:"gte=0"`
}

// Plan handles GET /api/v1/remediation/plan. Items come back ordered by
// business rank, worst first.
func (h *RemediationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}

	items, err := h.service.Plan(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []app.PlanItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": items})
}

// Summary handles GET /api/v1/remediation/summary.
func (h *RemediationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}

	summary, err := h.service.Summary(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// EstimateFine handles POST /api/v1/remediation/estimate-fine.
func (h *RemediationHandler) EstimateFine(w http.ResponseWriter, r *http.Request) {
	var req EstimateFineRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	estimates := h.service.EstimateFines(req.Frameworks, req.Records)
	respondJSON(w, http.StatusOK, map[string]any{"data": estimates})
}
