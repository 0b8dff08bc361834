package scan

import (
	"context"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// Filter defines the filtering options for listing scans.
type Filter struct {
	TenantID *string
	Statuses []Status
	Types    []Type
}

// Repository defines the interface for scan persistence.
type Repository interface {
	// Create persists a new scan.
	Create(ctx context.Context, s *Scan) error

	// GetByID retrieves a scan by its ID.
	GetByID(ctx context.Context, id shared.ID) (*Scan, error)

	// Update updates an existing scan.
	Update(ctx context.Context, s *Scan) error

	// List retrieves scans with filtering and pagination, newest first.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Scan], error)

	// ListDue retrieves scheduled scans whose next run is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Scan, error)

	// CountActiveByTenant counts pending or running scans for a tenant.
	CountActiveByTenant(ctx context.Context, tenantID shared.ID) (int, error)
}
