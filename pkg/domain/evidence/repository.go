package evidence

import (
	"context"
	"database/sql"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// Filter defines the filtering options for querying the ledger.
type Filter struct {
	TenantID     *string
	EvidenceType *Type
	EntityPrefix *string // matches related_entity by prefix, e.g. "scan:"
}

// Repository defines the interface for the append-only evidence ledger.
// There is deliberately no Update or Delete.
type Repository interface {
	// Append persists a new record.
	Append(ctx context.Context, r *Record) error

	// AppendInTx persists a new record within an existing transaction.
	AppendInTx(ctx context.Context, tx *sql.Tx, r *Record) error

	// GetByID retrieves a record by its ID.
	GetByID(ctx context.Context, id shared.ID) (*Record, error)

	// List queries the ledger, newest first.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Record], error)

	// Timeline retrieves all records for a related entity, oldest first.
	Timeline(ctx context.Context, tenantID shared.ID, relatedEntity string) ([]*Record, error)

	// ListByDateRange retrieves all records for a tenant in [from, to),
	// oldest first. Used by the audit trail export.
	ListByDateRange(ctx context.Context, tenantID shared.ID, from, to time.Time) ([]*Record, error)
}
