package enforcement

import (
	"context"
	"database/sql"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Repository defines the interface for enforcement decision persistence.
type Repository interface {
	// Create persists a new decision.
	Create(ctx context.Context, d *Decision) error

	// CreateInTx persists a new decision within an existing transaction, so
	// the decision and its evidence commit or roll back together.
	CreateInTx(ctx context.Context, tx *sql.Tx, d *Decision) error

	// GetByID retrieves a decision by its ID.
	GetByID(ctx context.Context, id shared.ID) (*Decision, error)

	// Update persists acknowledgement changes.
	Update(ctx context.Context, d *Decision) error

	// ListByTenant retrieves recent decisions, newest first.
	ListByTenant(ctx context.Context, tenantID shared.ID, limit int) ([]*Decision, error)

	// CountHardFailsInMonth counts HARD_FAIL decisions for a tenant in the
	// calendar month containing at. Runs inside the gate transaction with
	// the tenant row locked, so concurrent gates cannot both pass a quota
	// of one.
	CountHardFailsInMonth(ctx context.Context, tx *sql.Tx, tenantID shared.ID, at time.Time) (int, error)
}
