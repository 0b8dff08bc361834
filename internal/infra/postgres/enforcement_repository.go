package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgescan/api/pkg/domain/enforcement"
	"github.com/forgescan/api/pkg/domain/shared"
)

// EnforcementRepository implements enforcement.Repository using PostgreSQL.
type EnforcementRepository struct {
	db *DB
}

// NewEnforcementRepository creates a new EnforcementRepository.
func NewEnforcementRepository(db *DB) *EnforcementRepository {
	return &EnforcementRepository{db: db}
}

const decisionInsertQuery = `
	INSERT INTO enforcement_decisions (
		id, tenant_id, pipeline_id, max_priority, enforcement_level,
		outcome, reason, asset_at_risk, financial_risk_usd, required_action,
		decided_at, acked_by, acked_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

func decisionInsertArgs(d *enforcement.Decision) []any {
	return []any{
		d.ID().String(),
		d.TenantID().String(),
		nullString(d.PipelineID()),
		d.MaxPriority(),
		string(d.Level()),
		string(d.Outcome()),
		d.Reason(),
		nullString(d.AssetAtRisk()),
		d.FinancialRiskUSD(),
		nullString(d.RequiredAction()),
		d.DecidedAt(),
		nullIDPtr(d.AckedBy()),
		nullTime(d.AckedAt()),
	}
}

// Create persists a new decision.
func (r *EnforcementRepository) Create(ctx context.Context, d *enforcement.Decision) error {
	if _, err := r.db.ExecContext(ctx, decisionInsertQuery, decisionInsertArgs(d)...); err != nil {
		return fmt.Errorf("failed to create enforcement decision: %w", err)
	}
	return nil
}

// CreateInTx persists a new decision within an existing transaction.
func (r *EnforcementRepository) CreateInTx(ctx context.Context, tx *sql.Tx, d *enforcement.Decision) error {
	if _, err := tx.ExecContext(ctx, decisionInsertQuery, decisionInsertArgs(d)...); err != nil {
		return fmt.Errorf("failed to create enforcement decision in tx: %w", err)
	}
	return nil
}

// GetByID retrieves a decision by its ID.
func (r *EnforcementRepository) GetByID(ctx context.Context, id shared.ID) (*enforcement.Decision, error) {
	query := r.selectQuery() + " WHERE id = $1"

	d, err := r.doScan(r.db.QueryRowContext(ctx, query, id.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("DECISION_NOT_FOUND",
				fmt.Sprintf("enforcement decision %s not found", id), shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan enforcement decision: %w", err)
	}
	return d, nil
}

// Update persists acknowledgement changes.
func (r *EnforcementRepository) Update(ctx context.Context, d *enforcement.Decision) error {
	query := `UPDATE enforcement_decisions SET acked_by = $2, acked_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		d.ID().String(), nullIDPtr(d.AckedBy()), nullTime(d.AckedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to update enforcement decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("DECISION_NOT_FOUND",
			fmt.Sprintf("enforcement decision %s not found", d.ID()), shared.ErrNotFound)
	}
	return nil
}

// ListByTenant retrieves recent decisions, newest first.
func (r *EnforcementRepository) ListByTenant(ctx context.Context, tenantID shared.ID, limit int) ([]*enforcement.Decision, error) {
	query := r.selectQuery() + " WHERE tenant_id = $1 ORDER BY decided_at DESC, id LIMIT $2"

	rows, err := r.db.QueryContext(ctx, query, tenantID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query enforcement decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*enforcement.Decision
	for rows.Next() {
		d, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enforcement decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enforcement decisions: %w", err)
	}
	return decisions, nil
}

// CountHardFailsInMonth counts HARD_FAIL decisions for a tenant in the
// calendar month containing at. Must run inside the gate transaction.
func (r *EnforcementRepository) CountHardFailsInMonth(ctx context.Context, tx *sql.Tx, tenantID shared.ID, at time.Time) (int, error) {
	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	query := `
		SELECT COUNT(*) FROM enforcement_decisions
		WHERE tenant_id = $1 AND enforcement_level = $2
		  AND decided_at >= $3 AND decided_at < $4
	`

	var count int
	err := tx.QueryRowContext(ctx, query,
		tenantID.String(), string(enforcement.LevelHardFail), monthStart, monthEnd,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count hard fails: %w", err)
	}
	return count, nil
}

func (r *EnforcementRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, pipeline_id, max_priority, enforcement_level,
		       outcome, reason, asset_at_risk, financial_risk_usd, required_action,
		       decided_at, acked_by, acked_at
		FROM enforcement_decisions
	`
}

func (r *EnforcementRepository) doScan(scan func(dest ...any) error) (*enforcement.Decision, error) {
	var (
		idStr            string
		tenantIDStr      string
		pipelineID       sql.NullString
		maxPriority      float64
		level            string
		outcome          string
		reason           string
		assetAtRisk      sql.NullString
		financialRiskUSD float64
		requiredAction   sql.NullString
		decidedAt        time.Time
		ackedByStr       sql.NullString
		ackedAt          sql.NullTime
	)

	err := scan(
		&idStr, &tenantIDStr, &pipelineID, &maxPriority, &level,
		&outcome, &reason, &assetAtRisk, &financialRiskUSD, &requiredAction,
		&decidedAt, &ackedByStr, &ackedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}
	tenantID, err := shared.IDFromString(tenantIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant id: %w", err)
	}

	return enforcement.Reconstitute(
		id,
		tenantID,
		nullStringValue(pipelineID),
		maxPriority,
		enforcement.Level(level),
		enforcement.Outcome(outcome),
		reason,
		nullStringValue(assetAtRisk),
		financialRiskUSD,
		nullStringValue(requiredAction),
		decidedAt,
		parseNullID(ackedByStr),
		nullTimeValue(ackedAt),
	), nil
}
