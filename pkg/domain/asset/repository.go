package asset

import (
	"context"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// Filter defines the filtering options for listing business assets.
type Filter struct {
	TenantID      *string
	AssetTypes    []Type
	Sensitivities []Sensitivity
	Search        *string
}

// Repository defines the interface for business asset persistence.
type Repository interface {
	// Create persists a new business asset.
	Create(ctx context.Context, a *BusinessAsset) error

	// GetByID retrieves a business asset by its ID.
	GetByID(ctx context.Context, id shared.ID) (*BusinessAsset, error)

	// GetByName retrieves a business asset by name within a tenant, or
	// shared.ErrNotFound. Scoring falls back to defaults on not found.
	GetByName(ctx context.Context, tenantID shared.ID, name string) (*BusinessAsset, error)

	// Update updates an existing business asset.
	Update(ctx context.Context, a *BusinessAsset) error

	// Delete removes a business asset by its ID.
	Delete(ctx context.Context, id shared.ID) error

	// List retrieves business assets with filtering and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*BusinessAsset], error)
}
