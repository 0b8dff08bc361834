package handler

import (
	"net/http"
	"time"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/domain/enforcement"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/validator"
)

// EnforcementHandler handles HTTP requests for the release gate.
type EnforcementHandler struct {
	service   *app.EnforcementService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewEnforcementHandler creates a new EnforcementHandler.
func NewEnforcementHandler(service *app.EnforcementService, v *validator.Validator, log *logger.Logger) *EnforcementHandler {
	return &EnforcementHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "enforcement"),
	}
}

// AcknowledgeRequest represents the request body for acknowledging a
// SOFT_FAIL decision.
type AcknowledgeRequest struct {
	DecisionID string `json:"decision_id" validate:"required,uuid"`
	AckedBy    string `json:"acked_by" validate:"required,uuid"`
}

// DecisionResponse represents the response for a recorded gate decision.
type DecisionResponse struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	PipelineID       string     `json:"pipeline_id,omitempty"`
	MaxPriority      float64    `json:"max_priority"`
	EnforcementLevel string     `json:"enforcement_level"`
	Decision         string     `json:"decision"`
	Reason           string     `json:"reason"`
	AssetAtRisk      string     `json:"asset_at_risk,omitempty"`
	FinancialRiskUSD float64    `json:"financial_risk_usd,omitempty"`
	RequiredAction   string     `json:"required_action,omitempty"`
	Acknowledged     bool       `json:"acknowledged"`
	AckedBy          *string    `json:"acked_by,omitempty"`
	AckedAt          *time.Time `json:"acked_at,omitempty"`
	DecidedAt        time.Time  `json:"decided_at"`
}

func toDecisionResponse(d *enforcement.Decision) *DecisionResponse {
	resp := &DecisionResponse{
		ID:               d.ID().String(),
		TenantID:         d.TenantID().String(),
		PipelineID:       d.PipelineID(),
		MaxPriority:      d.MaxPriority(),
		EnforcementLevel: string(d.Level()),
		Decision:         string(d.Outcome()),
		Reason:           d.Reason(),
		AssetAtRisk:      d.AssetAtRisk(),
		FinancialRiskUSD: d.FinancialRiskUSD(),
		RequiredAction:   d.RequiredAction(),
		Acknowledged:     d.IsAcknowledged(),
		AckedAt:          d.AckedAt(),
		DecidedAt:        d.DecidedAt(),
	}
	if by := d.AckedBy(); by != nil {
		s := by.String()
		resp.AckedBy = &s
	}
	return resp
}

// Gate handles GET /api/v1/enforcement/gate. CI pipelines poll this before
// a release; an exhausted quota turns the response into a 403 so a plain
// exit-on-non-2xx CI step fails closed.
func (h *EnforcementHandler) Gate(w http.ResponseWriter, r *http.Request) {
	input := app.GateInput{
		TenantID:   r.URL.Query().Get("tenant_id"),
		PipelineID: r.URL.Query().Get("pipeline_id"),
	}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	result, err := h.service.Gate(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.QuotaExhausted {
		status = http.StatusForbidden
	}
	respondJSON(w, status, result)
}

// History handles GET /api/v1/enforcement/history.
func (h *EnforcementHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}

	decisions, err := h.service.History(r.Context(), tenantID, queryInt(r, "limit", 20))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]*DecisionResponse, len(decisions))
	for i, d := range decisions {
		responses[i] = toDecisionResponse(d)
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": responses})
}

// Acknowledge handles POST /api/v1/enforcement/acknowledge.
func (h *EnforcementHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	d, err := h.service.Acknowledge(r.Context(), app.AcknowledgeInput{
		DecisionID: req.DecisionID,
		AckedBy:    req.AckedBy,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toDecisionResponse(d))
}

// Quota handles GET /api/v1/enforcement/quota.
func (h *EnforcementHandler) Quota(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		apierror.BadRequest("tenant_id is required").WriteJSON(w)
		return
	}

	status, err := h.service.Quota(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
