package app

import (
	"context"
	"fmt"

	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
	"github.com/forgescan/api/pkg/pagination"
)

// AssetService handles business asset operations.
type AssetService struct {
	repo   asset.Repository
	logger *logger.Logger
}

// NewAssetService creates a new AssetService.
func NewAssetService(repo asset.Repository, log *logger.Logger) *AssetService {
	return &AssetService{
		repo:   repo,
		logger: log.With("service", "asset"),
	}
}

// CreateAssetInput represents the input for registering a business asset.
type CreateAssetInput struct {
	TenantID string `validate:"required,uuid"`

	Name                 string   `validate:"required,min=1,max=255"`
	SchemaName           string   `validate:"max=255"`
	TableName            string   `validate:"max=255"`
	AssetType            string   `validate:"required"`
	Sensitivity          string   `validate:"required"`
	DowntimeCostPerHour  float64  `validate:"gte=0"`
	MaxExposureRecords   int64    `validate:"gte=0"`
	CriticalityScore     int      `validate:"gte=0,lte=10"`
	ComplianceFrameworks []string `validate:"max=20"`
	DataOwner            string   `validate:"max=255"`
	Description          string   `validate:"max=2000"`
}

// CreateAsset registers a business asset used for risk scoring.
func (s *AssetService) CreateAsset(ctx context.Context, input CreateAssetInput) (*asset.BusinessAsset, error) {
	s.logger.Info("creating business asset", "name", input.Name, "type", input.AssetType)

	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	a, err := asset.New(tenantID, input.Name, asset.Type(input.AssetType), asset.Sensitivity(input.Sensitivity))
	if err != nil {
		return nil, err
	}

	if input.SchemaName != "" || input.TableName != "" {
		a.SetLocation(input.SchemaName, input.TableName)
	}
	if err := a.SetFinancials(input.DowntimeCostPerHour, input.MaxExposureRecords); err != nil {
		return nil, err
	}
	if input.CriticalityScore > 0 {
		if err := a.SetCriticality(input.CriticalityScore); err != nil {
			return nil, err
		}
	}
	a.SetCompliance(input.ComplianceFrameworks, input.DataOwner)
	if input.Description != "" {
		a.SetDescription(input.Description)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create business asset: %w", err)
	}

	s.logger.Info("business asset created", "id", a.ID().String(), "name", a.Name())
	return a, nil
}

// GetAsset retrieves a business asset by ID.
func (s *AssetService) GetAsset(ctx context.Context, id string) (*asset.BusinessAsset, error) {
	assetID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid asset ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, assetID)
}

// UpdateAssetInput represents the input for updating a business asset.
// Pointer fields are applied only when set.
type UpdateAssetInput struct {
	AssetID string `validate:"required,uuid"`

	SchemaName           *string
	TableName            *string
	AssetType            *string
	Sensitivity          *string
	DowntimeCostPerHour  *float64
	MaxExposureRecords   *int64
	CriticalityScore     *int
	ComplianceFrameworks []string
	DataOwner            *string
	Description          *string
}

// UpdateAsset applies a partial update to a business asset.
func (s *AssetService) UpdateAsset(ctx context.Context, input UpdateAssetInput) (*asset.BusinessAsset, error) {
	assetID, err := shared.IDFromString(input.AssetID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid asset ID", shared.ErrValidation)
	}

	a, err := s.repo.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if input.SchemaName != nil || input.TableName != nil {
		schemaName, tableName := a.SchemaName(), a.TableName()
		if input.SchemaName != nil {
			schemaName = *input.SchemaName
		}
		if input.TableName != nil {
			tableName = *input.TableName
		}
		a.SetLocation(schemaName, tableName)
	}
	if input.AssetType != nil || input.Sensitivity != nil {
		assetType, sensitivity := a.AssetType(), a.Sensitivity()
		if input.AssetType != nil {
			assetType = asset.Type(*input.AssetType)
		}
		if input.Sensitivity != nil {
			sensitivity = asset.Sensitivity(*input.Sensitivity)
		}
		if err := a.Reclassify(assetType, sensitivity); err != nil {
			return nil, err
		}
	}
	if input.DowntimeCostPerHour != nil || input.MaxExposureRecords != nil {
		cost, records := a.DowntimeCostPerHour(), a.MaxExposureRecords()
		if input.DowntimeCostPerHour != nil {
			cost = *input.DowntimeCostPerHour
		}
		if input.MaxExposureRecords != nil {
			records = *input.MaxExposureRecords
		}
		if err := a.SetFinancials(cost, records); err != nil {
			return nil, err
		}
	}
	if input.CriticalityScore != nil {
		if err := a.SetCriticality(*input.CriticalityScore); err != nil {
			return nil, err
		}
	}
	if input.ComplianceFrameworks != nil || input.DataOwner != nil {
		frameworks, owner := a.ComplianceFrameworks(), a.DataOwner()
		if input.ComplianceFrameworks != nil {
			frameworks = input.ComplianceFrameworks
		}
		if input.DataOwner != nil {
			owner = *input.DataOwner
		}
		a.SetCompliance(frameworks, owner)
	}
	if input.Description != nil {
		a.SetDescription(*input.Description)
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update business asset: %w", err)
	}

	s.logger.Info("business asset updated", "id", a.ID().String())
	return a, nil
}

// DeleteAsset removes a business asset.
func (s *AssetService) DeleteAsset(ctx context.Context, id string) error {
	assetID, err := shared.IDFromString(id)
	if err != nil {
		return fmt.Errorf("%w: invalid asset ID", shared.ErrValidation)
	}
	if err := s.repo.Delete(ctx, assetID); err != nil {
		return err
	}
	s.logger.Info("business asset deleted", "id", id)
	return nil
}

// ListAssetsInput represents the input for listing business assets.
type ListAssetsInput struct {
	TenantID      string `validate:"required,uuid"`
	AssetTypes    []string
	Sensitivities []string
	Search        string `validate:"max=200"`
	Page          int
	PerPage       int
}

// ListAssets retrieves business assets with filtering and pagination.
func (s *AssetService) ListAssets(ctx context.Context, input ListAssetsInput) (pagination.Result[*asset.BusinessAsset], error) {
	var empty pagination.Result[*asset.BusinessAsset]

	if _, err := shared.IDFromString(input.TenantID); err != nil {
		return empty, fmt.Errorf("%w: invalid tenant ID", shared.ErrValidation)
	}

	filter := asset.Filter{TenantID: &input.TenantID}
	for _, t := range input.AssetTypes {
		filter.AssetTypes = append(filter.AssetTypes, asset.Type(t))
	}
	for _, sv := range input.Sensitivities {
		filter.Sensitivities = append(filter.Sensitivities, asset.Sensitivity(sv))
	}
	if input.Search != "" {
		filter.Search = &input.Search
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage))
}
