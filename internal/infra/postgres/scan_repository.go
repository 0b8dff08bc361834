package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create persists a new scan.
func (r *ScanRepository) Create(ctx context.Context, s *scan.Scan) error {
	config, err := toJSONB(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	summary, err := toJSONB(s.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := `
		INSERT INTO scans (
			id, tenant_id, target, scan_type, config, status, progress,
			error_message, schedule_type, schedule_cron, next_run_at,
			started_at, completed_at, summary, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		s.ID.String(),
		s.TenantID.String(),
		s.Target,
		s.ScanType.String(),
		config,
		s.Status.String(),
		s.Progress,
		nullString(s.ErrorMessage),
		s.ScheduleType.String(),
		nullString(s.ScheduleCron),
		nullTime(s.NextRunAt),
		nullTime(s.StartedAt),
		nullTime(s.CompletedAt),
		summary,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

// GetByID retrieves a scan by its ID.
func (r *ScanRepository) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	query := r.selectQuery() + " WHERE id = $1"

	s, err := r.doScan(r.db.QueryRowContext(ctx, query, id.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("SCAN_NOT_FOUND",
				fmt.Sprintf("scan %s not found", id), shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan scan row: %w", err)
	}
	return s, nil
}

// Update updates an existing scan.
func (r *ScanRepository) Update(ctx context.Context, s *scan.Scan) error {
	config, err := toJSONB(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	summary, err := toJSONB(s.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := `
		UPDATE scans SET
			target = $2, scan_type = $3, config = $4, status = $5,
			progress = $6, error_message = $7, schedule_type = $8,
			schedule_cron = $9, next_run_at = $10, started_at = $11,
			completed_at = $12, summary = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		s.ID.String(),
		s.Target,
		s.ScanType.String(),
		config,
		s.Status.String(),
		s.Progress,
		nullString(s.ErrorMessage),
		s.ScheduleType.String(),
		nullString(s.ScheduleCron),
		nullTime(s.NextRunAt),
		nullTime(s.StartedAt),
		nullTime(s.CompletedAt),
		summary,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("SCAN_NOT_FOUND",
			fmt.Sprintf("scan %s not found", s.ID), shared.ErrNotFound)
	}
	return nil
}

// List retrieves scans with filtering and pagination, newest first.
func (r *ScanRepository) List(ctx context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	baseQuery := r.selectQuery()
	countQuery := `SELECT COUNT(*) FROM scans`

	whereClause, args := r.buildWhereClause(filter)
	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	baseQuery += " ORDER BY created_at DESC, id"
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*scan.Scan]{}, fmt.Errorf("failed to count scans: %w", err)
	}

	scans, err := r.queryMany(ctx, baseQuery, args...)
	if err != nil {
		return pagination.Result[*scan.Scan]{}, err
	}
	return pagination.NewResult(scans, total, page), nil
}

// ListDue retrieves scheduled scans whose next run is at or before now.
func (r *ScanRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*scan.Scan, error) {
	query := r.selectQuery() + `
		WHERE schedule_type != 'manual' AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
	`
	return r.queryMany(ctx, query, now, limit)
}

// CountActiveByTenant counts pending or running scans for a tenant.
func (r *ScanRepository) CountActiveByTenant(ctx context.Context, tenantID shared.ID) (int, error) {
	query := `SELECT COUNT(*) FROM scans WHERE tenant_id = $1 AND status IN ('pending', 'running')`

	var count int
	if err := r.db.QueryRowContext(ctx, query, tenantID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active scans: %w", err)
	}
	return count, nil
}

func (r *ScanRepository) queryMany(ctx context.Context, query string, args ...any) ([]*scan.Scan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []*scan.Scan
	for rows.Next() {
		s, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scans: %w", err)
	}
	return scans, nil
}

func (r *ScanRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, target, scan_type, config, status, progress,
		       error_message, schedule_type, schedule_cron, next_run_at,
		       started_at, completed_at, summary, created_at, updated_at
		FROM scans
	`
}

func (r *ScanRepository) doScan(scanRow func(dest ...any) error) (*scan.Scan, error) {
	var (
		idStr        string
		tenantIDStr  string
		target       string
		scanType     string
		config       []byte
		status       string
		progress     int
		errorMessage sql.NullString
		scheduleType string
		scheduleCron sql.NullString
		nextRunAt    sql.NullTime
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		summaryRaw   []byte
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := scanRow(
		&idStr, &tenantIDStr, &target, &scanType, &config, &status, &progress,
		&errorMessage, &scheduleType, &scheduleCron, &nextRunAt,
		&startedAt, &completedAt, &summaryRaw, &createdAt, &updatedAt,
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

	var configMap map[string]any
	if err := fromJSONB(config, &configMap); err != nil {
		configMap = make(map[string]any)
	}
	var summary *scan.Summary
	if len(summaryRaw) > 0 {
		summary = &scan.Summary{}
		if err := fromJSONB(summaryRaw, summary); err != nil {
			summary = nil
		}
	}

	return &scan.Scan{
		ID:           id,
		TenantID:     tenantID,
		Target:       target,
		ScanType:     scan.Type(scanType),
		Config:       configMap,
		Status:       scan.Status(status),
		Progress:     progress,
		ErrorMessage: nullStringValue(errorMessage),
		ScheduleType: scan.ScheduleType(scheduleType),
		ScheduleCron: nullStringValue(scheduleCron),
		NextRunAt:    nullTimeValue(nextRunAt),
		StartedAt:    nullTimeValue(startedAt),
		CompletedAt:  nullTimeValue(completedAt),
		Summary:      summary,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func (r *ScanRepository) buildWhereClause(filter scan.Filter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.TenantID != nil && *filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, *filter.TenantID)
		argIndex++
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, t.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("scan_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	return strings.Join(conditions, " AND "), args
}
