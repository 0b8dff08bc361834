package tenant

import (
	"context"
	"database/sql"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Repository defines the interface for tenant persistence.
type Repository interface {
	// Create persists a new tenant.
	Create(ctx context.Context, t *Tenant) error

	// GetByID retrieves a tenant by its ID.
	GetByID(ctx context.Context, id shared.ID) (*Tenant, error)

	// GetByIDForUpdate retrieves a tenant inside tx with its row locked.
	// The enforcement gate uses this to serialize quota checks.
	GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id shared.ID) (*Tenant, error)

	// Update updates an existing tenant.
	Update(ctx context.Context, t *Tenant) error

	// List retrieves all active tenants.
	List(ctx context.Context) ([]*Tenant, error)
}
