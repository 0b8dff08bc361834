package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/apierror"
	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
	"github.com/forgescan/api/pkg/validator"
)

// AssetHandler handles HTTP requests for business assets.
type AssetHandler struct {
	service   *app.AssetService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(service *app.AssetService, v *validator.Validator, log *logger.Logger) *AssetHandler {
	return &AssetHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "asset"),
	}
}

// CreateAssetRequest represents the request body for registering an asset.
type CreateAssetRequest struct {
	TenantID             string   `json:"tenant_id" validate:"required,uuid"`
	Name                 string   `json:"name" validate:"required,min=1,max=255"`
	SchemaName           string   `json:"schema_name" validate:"max=255"`
	TableName            string   `json:"table_name" validate:"max=255"`
	AssetType            string   `json:"asset_type" validate:"required,asset_type"`
	Sensitivity          string   `json:"sensitivity" validate:"required,data_sensitivity"`
	DowntimeCostPerHour  float64  `json:"downtime_cost_per_hour" validate:"gte=0"`
	MaxExposureRecords   int64    `json:"max_exposure_records" validate:"gte=0"`
	CriticalityScore     int      `json:"criticality_score" validate:"gte=0,lte=10"`
	ComplianceFrameworks []string `json:"compliance_frameworks" validate:"max=20"`
	DataOwner            string   `json:"data_owner" validate:"max=255"`
	Description          string   `json:"description" validate:"max=2000"`
}

// UpdateAssetRequest represents the request body for updating an asset.
// Absent fields are left unchanged.
type UpdateAssetRequest struct {
	SchemaName           *string  `json:"schema_name" validate:"omitempty,max=255"`
	TableName            *string  `json:"table_name" validate:"omitempty,max=255"`
	AssetType            *string  `json:"asset_type" validate:"omitempty,asset_type"`
	Sensitivity          *string  `json:"sensitivity" validate:"omitempty,data_sensitivity"`
	DowntimeCostPerHour  *float64 `json:"downtime_cost_per_hour" validate:"omitempty,gte=0"`
	MaxExposureRecords   *int64   `json:"max_exposure_records" validate:"omitempty,gte=0"`
	CriticalityScore     *int     `json:"criticality_score" validate:"omitempty,gte=0,lte=10"`
	ComplianceFrameworks []string `json:"compliance_frameworks" validate:"max=20"`
	DataOwner            *string  `json:"data_owner" validate:"omitempty,max=255"`
	Description          *string  `json:"description" validate:"omitempty,max=2000"`
}

// AssetResponse represents the response for a business asset.
type AssetResponse struct {
	ID                   string    `json:"id"`
	TenantID             string    `json:"tenant_id"`
	Name                 string    `json:"name"`
	QualifiedName        string    `json:"qualified_name"`
	SchemaName           string    `json:"schema_name,omitempty"`
	TableName            string    `json:"table_name,omitempty"`
	AssetType            string    `json:"asset_type"`
	Sensitivity          string    `json:"sensitivity"`
	IsRegulated          bool      `json:"is_regulated"`
	DowntimeCostPerHour  float64   `json:"downtime_cost_per_hour"`
	MaxExposureRecords   int64     `json:"max_exposure_records"`
	CriticalityScore     int       `json:"criticality_score"`
	ComplianceFrameworks []string  `json:"compliance_frameworks,omitempty"`
	DataOwner            string    `json:"data_owner,omitempty"`
	Description          string    `json:"description,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func toAssetResponse(a *asset.BusinessAsset) *AssetResponse {
	return &AssetResponse{
		ID:                   a.ID().String(),
		TenantID:             a.TenantID().String(),
		Name:                 a.Name(),
		QualifiedName:        a.QualifiedName(),
		SchemaName:           a.SchemaName(),
		TableName:            a.TableName(),
		AssetType:            string(a.AssetType()),
		Sensitivity:          string(a.Sensitivity()),
		IsRegulated:          a.Sensitivity().IsRegulated(),
		DowntimeCostPerHour:  a.DowntimeCostPerHour(),
		MaxExposureRecords:   a.MaxExposureRecords(),
		CriticalityScore:     a.CriticalityScore(),
		ComplianceFrameworks: a.ComplianceFrameworks(),
		DataOwner:            a.DataOwner(),
		Description:          a.Description(),
		CreatedAt:            a.CreatedAt(),
		UpdatedAt:            a.UpdatedAt(),
	}
}

// CreateAsset handles POST /api/v1/assets.
func (h *AssetHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	a, err := h.service.CreateAsset(r.Context(), app.CreateAssetInput{
		TenantID:             req.TenantID,
		Name:                 req.Name,
		SchemaName:           req.SchemaName,
		TableName:            req.TableName,
		AssetType:            req.AssetType,
		Sensitivity:          req.Sensitivity,
		DowntimeCostPerHour:  req.DowntimeCostPerHour,
		MaxExposureRecords:   req.MaxExposureRecords,
		CriticalityScore:     req.CriticalityScore,
		ComplianceFrameworks: req.ComplianceFrameworks,
		DataOwner:            req.DataOwner,
		Description:          req.Description,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, toAssetResponse(a))
}

// GetAsset handles GET /api/v1/assets/{id}.
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAsset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toAssetResponse(a))
}

// ListAssets handles GET /api/v1/assets.
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	input := app.ListAssetsInput{
		TenantID:      r.URL.Query().Get("tenant_id"),
		AssetTypes:    queryList(r, "asset_type"),
		Sensitivities: queryList(r, "sensitivity"),
		Search:        r.URL.Query().Get("search"),
		Page:          queryInt(r, "page", 1),
		PerPage:       queryInt(r, "per_page", 20),
	}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	result, err := h.service.ListAssets(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]*AssetResponse, len(result.Data))
	for i, a := range result.Data {
		responses[i] = toAssetResponse(a)
	}
	respondJSON(w, http.StatusOK, pagination.NewResult(responses, result.Total, pagination.New(result.Page, result.PerPage)))
}

// UpdateAsset handles PUT /api/v1/assets/{id}.
func (h *AssetHandler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req UpdateAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	a, err := h.service.UpdateAsset(r.Context(), app.UpdateAssetInput{
		AssetID:              chi.URLParam(r, "id"),
		SchemaName:           req.SchemaName,
		TableName:            req.TableName,
		AssetType:            req.AssetType,
		Sensitivity:          req.Sensitivity,
		DowntimeCostPerHour:  req.DowntimeCostPerHour,
		MaxExposureRecords:   req.MaxExposureRecords,
		CriticalityScore:     req.CriticalityScore,
		ComplianceFrameworks: req.ComplianceFrameworks,
		DataOwner:            req.DataOwner,
		Description:          req.Description,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, toAssetResponse(a))
}

// DeleteAsset handles DELETE /api/v1/assets/{id}.
func (h *AssetHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAsset(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
