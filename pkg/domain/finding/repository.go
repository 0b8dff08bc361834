package finding

import (
	"context"
	"database/sql"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// Filter defines the filtering options for listing findings.
type Filter struct {
	TenantID   *string
	ScanID     *string
	AssetID    *string
	Scanners   []string
	Severities []shared.Severity
	Statuses   []Status
	Search     *string
}

// Repository defines the interface for finding persistence.
type Repository interface {
	// Create persists a new finding.
	Create(ctx context.Context, f *Finding) error

	// CreateInTx persists a new finding within an existing transaction.
	CreateInTx(ctx context.Context, tx *sql.Tx, f *Finding) error

	// GetByID retrieves a finding by its ID.
	GetByID(ctx context.Context, id shared.ID) (*Finding, error)

	// GetOpenByFingerprint retrieves the open finding with the given
	// fingerprint within a tenant, or shared.ErrNotFound.
	GetOpenByFingerprint(ctx context.Context, tenantID shared.ID, fingerprint string) (*Finding, error)

	// Update updates an existing finding.
	Update(ctx context.Context, f *Finding) error

	// List retrieves findings with filtering and pagination, newest first.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Finding], error)

	// ListByScan retrieves all findings observed by a scan.
	ListByScan(ctx context.Context, scanID shared.ID) ([]*Finding, error)

	// ListOpenByTenant retrieves every open finding for a tenant, used to
	// build remediation plans.
	ListOpenByTenant(ctx context.Context, tenantID shared.ID) ([]*Finding, error)

	// CountBySeverity returns open finding counts grouped by severity.
	CountBySeverity(ctx context.Context, tenantID shared.ID) (map[shared.Severity]int64, error)
}
