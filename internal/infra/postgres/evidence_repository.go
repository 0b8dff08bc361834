package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// EvidenceRepository implements evidence.Repository using PostgreSQL. The
// evidence_records table is insert-only; this type has no update or delete
// statements on purpose.
type EvidenceRepository struct {
	db *DB
}

// NewEvidenceRepository creates a new EvidenceRepository.
func NewEvidenceRepository(db *DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

const evidenceInsertQuery = `
	INSERT INTO evidence_records (
		id, tenant_id, evidence_type, related_entity, payload, payload_hash, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func evidenceInsertArgs(rec *evidence.Record) ([]any, error) {
	payload, err := toJSONB(rec.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return []any{
		rec.ID().String(),
		rec.TenantID().String(),
		rec.EvidenceType().String(),
		rec.RelatedEntity(),
		payload,
		rec.PayloadHash(),
		rec.CreatedAt(),
	}, nil
}

// Append persists a new record.
func (r *EvidenceRepository) Append(ctx context.Context, rec *evidence.Record) error {
	args, err := evidenceInsertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, evidenceInsertQuery, args...); err != nil {
		return fmt.Errorf("failed to append evidence record: %w", err)
	}
	return nil
}

// AppendInTx persists a new record within an existing transaction.
func (r *EvidenceRepository) AppendInTx(ctx context.Context, tx *sql.Tx, rec *evidence.Record) error {
	args, err := evidenceInsertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, evidenceInsertQuery, args...); err != nil {
		return fmt.Errorf("failed to append evidence record in tx: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID.
func (r *EvidenceRepository) GetByID(ctx context.Context, id shared.ID) (*evidence.Record, error) {
	query := r.selectQuery() + " WHERE id = $1"

	rec, err := r.doScan(r.db.QueryRowContext(ctx, query, id.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("EVIDENCE_NOT_FOUND",
				fmt.Sprintf("evidence record %s not found", id), shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan evidence record: %w", err)
	}
	return rec, nil
}

// List queries the ledger, newest first.
func (r *EvidenceRepository) List(ctx context.Context, filter evidence.Filter, page pagination.Pagination) (pagination.Result[*evidence.Record], error) {
	baseQuery := r.selectQuery()
	countQuery := `SELECT COUNT(*) FROM evidence_records`

	whereClause, args := r.buildWhereClause(filter)
	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	baseQuery += " ORDER BY created_at DESC, id"
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*evidence.Record]{}, fmt.Errorf("failed to count evidence records: %w", err)
	}

	records, err := r.queryMany(ctx, baseQuery, args...)
	if err != nil {
		return pagination.Result[*evidence.Record]{}, err
	}
	return pagination.NewResult(records, total, page), nil
}

// Timeline retrieves all records for a related entity, oldest first.
func (r *EvidenceRepository) Timeline(ctx context.Context, tenantID shared.ID, relatedEntity string) ([]*evidence.Record, error) {
	query := r.selectQuery() + " WHERE tenant_id = $1 AND related_entity = $2 ORDER BY created_at, id"
	return r.queryMany(ctx, query, tenantID.String(), relatedEntity)
}

// ListByDateRange retrieves all records for a tenant in [from, to), oldest first.
func (r *EvidenceRepository) ListByDateRange(ctx context.Context, tenantID shared.ID, from, to time.Time) ([]*evidence.Record, error) {
	query := r.selectQuery() + " WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at, id"
	return r.queryMany(ctx, query, tenantID.String(), from, to)
}

func (r *EvidenceRepository) queryMany(ctx context.Context, query string, args ...any) ([]*evidence.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence records: %w", err)
	}
	defer rows.Close()

	var records []*evidence.Record
	for rows.Next() {
		rec, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evidence records: %w", err)
	}
	return records, nil
}

func (r *EvidenceRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, evidence_type, related_entity, payload, payload_hash, created_at
		FROM evidence_records
	`
}

func (r *EvidenceRepository) doScan(scan func(dest ...any) error) (*evidence.Record, error) {
	var (
		idStr         string
		tenantIDStr   string
		evidenceType  string
		relatedEntity string
		payload       []byte
		payloadHash   string
		createdAt     time.Time
	)

	if err := scan(&idStr, &tenantIDStr, &evidenceType, &relatedEntity, &payload, &payloadHash, &createdAt); err != nil {
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

	var payloadMap map[string]any
	if err := fromJSONB(payload, &payloadMap); err != nil {
		payloadMap = make(map[string]any)
	}

	return evidence.Reconstitute(
		id,
		tenantID,
		evidence.Type(evidenceType),
		relatedEntity,
		payloadMap,
		payloadHash,
		createdAt,
	), nil
}

func (r *EvidenceRepository) buildWhereClause(filter evidence.Filter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.TenantID != nil && *filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, *filter.TenantID)
		argIndex++
	}

	if filter.EvidenceType != nil && *filter.EvidenceType != "" {
		conditions = append(conditions, fmt.Sprintf("evidence_type = $%d", argIndex))
		args = append(args, filter.EvidenceType.String())
		argIndex++
	}

	if filter.EntityPrefix != nil && *filter.EntityPrefix != "" {
		conditions = append(conditions, fmt.Sprintf("related_entity LIKE $%d", argIndex))
		args = append(args, *filter.EntityPrefix+"%")
		argIndex++
	}

	return strings.Join(conditions, " AND "), args
}
